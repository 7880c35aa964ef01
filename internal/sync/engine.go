package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
	"github.com/ahmed11551/namazpro24/internal/telemetry"
)

const (
	stateIdle int32 = iota
	stateRunning
)

// SkipReason explains why a run did nothing.
type SkipReason string

const (
	SkipOffline        SkipReason = "offline"
	SkipAlreadyRunning SkipReason = "already_running"
)

// DefaultDispatchTimeout bounds a single remote call.
const DefaultDispatchTimeout = 10 * time.Second

// RunResult summarizes one sync run.
type RunResult struct {
	Skipped    bool       `json:"skipped"`
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Completed is false when the run was skipped, could not list events,
	// or was cancelled part way.
	Completed bool `json:"completed"`

	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`

	// Pending is the unsynced count re-read after the run, -1 if unknown.
	Pending int `json:"pending"`

	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the run took.
func (r RunResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatchTimeout sets the per-event remote call timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.dispatchTimeout = d }
}

// WithMaxRetries sets how many failed attempts retire an event.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine drains unsynced events to the remote service, one run at a time.
type Engine struct {
	store      EventStore
	dispatcher Dispatcher
	conn       Connectivity

	dispatchTimeout time.Duration
	maxRetries      int
	now             func() time.Time

	state atomic.Int32

	mu       gosync.RWMutex
	handler  SyncEventHandler
	lastSync *time.Time
}

// NewEngine creates a new Engine.
func NewEngine(store EventStore, dispatcher Dispatcher, conn Connectivity, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		dispatcher:      dispatcher,
		conn:            conn,
		dispatchTimeout: DefaultDispatchTimeout,
		maxRetries:      models.MaxRetries,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetEventHandler sets the event handler for sync notifications. nil removes it.
func (e *Engine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// IsRunning reports whether a run is in progress.
func (e *Engine) IsRunning() bool {
	return e.state.Load() == stateRunning
}

// LastSync returns the completion time of the last completed run.
func (e *Engine) LastSync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastSync == nil {
		return nil
	}
	t := *e.lastSync
	return &t
}

func (e *Engine) emitEvent(event SyncEvent) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()

	if handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	handler.OnSyncEvent(event)
}

// Run performs one sync run. A run already in progress or an OFFLINE monitor
// makes it a no-op. Failures are recorded in the store and the result; Run
// itself never fails.
func (e *Engine) Run(ctx context.Context) RunResult {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return RunResult{Skipped: true, SkipReason: SkipAlreadyRunning, Pending: -1}
	}
	defer e.state.Store(stateIdle)

	if !e.conn.IsOnline() {
		return RunResult{Skipped: true, SkipReason: SkipOffline, Pending: -1}
	}

	ctx, span := telemetry.StartSpan(ctx, "sync.run")
	defer span.End()

	result := RunResult{StartedAt: e.now(), Pending: -1}
	e.emitEvent(SyncEvent{Type: SyncEventStarted, Timestamp: result.StartedAt})

	e.drain(ctx, &result)

	if result.Completed {
		result.CompletedAt = e.now()
		e.mu.Lock()
		completed := result.CompletedAt
		e.lastSync = &completed
		e.mu.Unlock()
	}

	span.SetAttributes(
		attribute.Int("sync.attempted", result.Attempted),
		attribute.Int("sync.delivered", result.Delivered),
		attribute.Int("sync.failed", result.Failed),
		attribute.Int("sync.abandoned", result.Abandoned),
		attribute.Int("sync.pending", result.Pending),
	)

	logging.Info("sync run finished", map[string]interface{}{
		"component": "sync",
		"completed": result.Completed,
		"attempted": result.Attempted,
		"delivered": result.Delivered,
		"failed":    result.Failed,
		"abandoned": result.Abandoned,
		"pending":   result.Pending,
	})

	final := result
	e.emitEvent(SyncEvent{Type: SyncEventCompleted, Result: &final})
	return result
}

func (e *Engine) drain(ctx context.Context, result *RunResult) {
	events, err := e.store.ListUnsynced(ctx)
	if err != nil {
		// No run possible this trigger; nothing was touched.
		result.Error = err.Error()
		logging.ErrorWithCode("sync run aborted: cannot list unsynced events", string(apperrors.CodeOf(err)), err, map[string]interface{}{
			"component": "sync",
		})
		return
	}

	for _, event := range events {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			logging.Warn("sync run cancelled", map[string]interface{}{
				"component": "sync",
				"remaining": len(events) - result.Attempted,
			})
			result.Pending = e.pendingCount(ctx)
			return
		}
		result.Attempted++
		e.process(ctx, event, result)
	}

	result.Pending = e.pendingCount(ctx)
	result.Completed = true
}

// process dispatches one event and records the outcome before returning, so
// the next event is never dispatched ahead of this one's bookkeeping.
func (e *Engine) process(ctx context.Context, event *models.OfflineEvent, result *RunResult) {
	id := event.ID.String()
	fields := map[string]interface{}{
		"component":  "sync",
		"event_id":   id,
		"event_type": string(event.Type),
	}

	dispatchErr := e.dispatch(ctx, event)
	if dispatchErr == nil {
		if err := e.store.MarkSynced(ctx, id); err != nil {
			// Delivered but not recorded: the event will be sent again and
			// the server drops it by X-Offline-Event-Id.
			logging.Error("failed to mark event synced", err, fields)
		}
		result.Delivered++
		e.emitEvent(SyncEvent{Type: SyncEventDelivered, EventID: id, EventType: event.Type})
		return
	}

	result.Failed++
	retries, err := e.store.IncrementRetry(ctx, id)
	if err != nil {
		logging.Error("failed to record retry", err, fields)
		e.emitEvent(SyncEvent{Type: SyncEventFailed, EventID: id, EventType: event.Type, Error: dispatchErr.Error()})
		return
	}

	logging.Warn("event dispatch failed", mergeFields(fields, map[string]interface{}{
		"retry_count": retries,
		"error_code":  string(apperrors.CodeOf(dispatchErr)),
		"error":       dispatchErr.Error(),
	}))
	e.emitEvent(SyncEvent{Type: SyncEventFailed, EventID: id, EventType: event.Type, RetryCount: retries, Error: dispatchErr.Error()})

	// retries == 0 means the record vanished (purged) during the run.
	if retries == 0 || retries < e.maxRetries {
		return
	}

	if err := e.store.MarkSynced(ctx, id); err != nil {
		logging.Error("failed to retire event", err, fields)
		return
	}
	result.Abandoned++
	logging.Warn("event abandoned after max retries", mergeFields(fields, map[string]interface{}{
		"retry_count": retries,
	}))
	e.emitEvent(SyncEvent{Type: SyncEventAbandoned, EventID: id, EventType: event.Type, RetryCount: retries, Error: dispatchErr.Error()})
}

// dispatch calls the dispatcher under a timeout and converts a panic into an error.
func (e *Engine) dispatch(ctx context.Context, event *models.OfflineEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.dispatch")
	span.SetAttributes(
		attribute.String("event.id", event.ID.String()),
		attribute.String("event.type", string(event.Type)),
		attribute.Int("event.retry_count", event.RetryCount),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	dctx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.DispatchError(fmt.Sprintf("dispatch panicked: %v", r), nil)
		}
	}()

	err = e.dispatcher.Dispatch(dctx, event)
	if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperrors.Wrap(apperrors.ErrSyncTimeout, fmt.Sprintf("dispatch exceeded %s", e.dispatchTimeout), err)
	}
	return err
}

func (e *Engine) pendingCount(ctx context.Context) int {
	n, err := e.store.PendingCount(ctx)
	if err != nil {
		logging.Error("failed to count pending events", err, map[string]interface{}{"component": "sync"})
		return -1
	}
	return n
}

func mergeFields(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
