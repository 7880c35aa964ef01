// Package status is the single observable surface over the offline queue:
// connectivity, pending count and sync activity, plus the manual trigger.
package status

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/db"
	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
	"github.com/ahmed11551/namazpro24/internal/sync/queue"
	"github.com/ahmed11551/namazpro24/internal/sync/scheduler"
)

// Status is what the UI shows.
type Status struct {
	IsOnline            bool       `json:"is_online"`
	PendingEvents       int        `json:"pending_events"`
	IsSyncing           bool       `json:"is_syncing"`
	LastSyncCompletedAt *time.Time `json:"last_sync_completed_at,omitempty"`
}

type options struct {
	syncInterval    time.Duration
	dispatchTimeout time.Duration
	maxRetries      int
	retention       time.Duration
	now             func() time.Time
	handler         syncpkg.SyncEventHandler
}

// Option configures a Facade.
type Option func(*options)

// WithSyncInterval sets the periodic trigger interval.
func WithSyncInterval(d time.Duration) Option { return func(o *options) { o.syncInterval = d } }

// WithDispatchTimeout sets the per-event remote call timeout.
func WithDispatchTimeout(d time.Duration) Option { return func(o *options) { o.dispatchTimeout = d } }

// WithMaxRetries sets the retry ceiling.
func WithMaxRetries(n int) Option { return func(o *options) { o.maxRetries = n } }

// WithRetention sets how old an event must be before Init purges it.
func WithRetention(d time.Duration) Option { return func(o *options) { o.retention = d } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithEventHandler forwards engine notifications after the facade has
// applied them to its own state.
func WithEventHandler(h syncpkg.SyncEventHandler) Option { return func(o *options) { o.handler = h } }

// Facade composes the store, the monitor, the engine and its scheduler.
type Facade struct {
	store     *queue.Store
	monitor   *connectivity.Monitor
	engine    *syncpkg.Engine
	scheduler *scheduler.Scheduler
	retention time.Duration
	now       func() time.Time
	forward   syncpkg.SyncEventHandler

	mu          sync.Mutex
	status      Status
	subs        map[int]chan Status
	nextSub     int
	stopMonitor func()
}

// New wires a Facade. The store and monitor are owned by the caller.
func New(store *queue.Store, monitor *connectivity.Monitor, dispatcher syncpkg.Dispatcher, opts ...Option) *Facade {
	o := options{
		syncInterval:    scheduler.DefaultSchedulerConfig().SyncInterval,
		dispatchTimeout: syncpkg.DefaultDispatchTimeout,
		maxRetries:      models.MaxRetries,
		retention:       models.RetentionWindow,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Facade{
		store:     store,
		monitor:   monitor,
		retention: o.retention,
		now:       o.now,
		forward:   o.handler,
		subs:      make(map[int]chan Status),
		status:    Status{IsOnline: monitor.IsOnline()},
	}
	f.engine = syncpkg.NewEngine(store, dispatcher, monitor,
		syncpkg.WithDispatchTimeout(o.dispatchTimeout),
		syncpkg.WithMaxRetries(o.maxRetries),
		syncpkg.WithClock(o.now),
	)
	f.engine.SetEventHandler(f)
	f.stopMonitor = monitor.OnChange(f.onConnectivity)
	f.scheduler = scheduler.NewScheduler(f.engine, store, monitor, &scheduler.SchedulerConfig{
		SyncInterval: o.syncInterval,
	})
	return f
}

// Init opens the store, reads the pending count and runs the retention
// purge once.
func (f *Facade) Init(ctx context.Context) error {
	if err := f.store.Initialize(ctx); err != nil {
		return err
	}
	f.RefreshPendingCount(ctx)

	n, err := f.Purge(ctx)
	if err != nil {
		logging.ErrorWithCode("Retention purge failed", string(apperrors.CodeOf(err)), err, map[string]interface{}{
			"component": "status",
		})
		return nil
	}
	if n > 0 {
		f.RefreshPendingCount(ctx)
	}
	return nil
}

// Purge deletes events older than the retention window.
func (f *Facade) Purge(ctx context.Context) (int64, error) {
	return f.store.PurgeOlderThan(ctx, f.now().Add(-f.retention))
}

// Start runs the background triggers: reconnect, timer and pending count.
func (f *Facade) Start(ctx context.Context) {
	f.scheduler.Start(ctx)
}

// Stop halts the background triggers and waits for a run they started.
func (f *Facade) Stop() {
	f.scheduler.Stop()
}

// Close stops the triggers and detaches from the monitor. The store is left
// open for its owner to close.
func (f *Facade) Close() {
	f.Stop()

	f.mu.Lock()
	stop := f.stopMonitor
	f.stopMonitor = nil
	f.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Status returns the current state.
func (f *Facade) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *Facade) snapshot() Status {
	s := f.status
	if s.LastSyncCompletedAt != nil {
		t := *s.LastSyncCompletedAt
		s.LastSyncCompletedAt = &t
	}
	return s
}

// TriggerSync runs a sync now, subject to the engine's guards, and returns
// the state afterwards. It never fails.
func (f *Facade) TriggerSync(ctx context.Context) Status {
	result := f.engine.Run(ctx)
	if result.Skipped {
		logging.Debug("Manual sync skipped", map[string]interface{}{
			"component": "status",
			"reason":    string(result.SkipReason),
		})
		if result.SkipReason == syncpkg.SkipOffline {
			f.RefreshPendingCount(ctx)
		}
	}
	return f.Status()
}

// RefreshPendingCount re-reads the number of unsynced events without
// starting a run. On a store error the last known count is kept.
func (f *Facade) RefreshPendingCount(ctx context.Context) int {
	n, err := f.store.PendingCount(ctx)
	if err != nil {
		logging.Warn("Cannot refresh pending count", map[string]interface{}{
			"component": "status",
			"error":     err.Error(),
		})
		return f.Status().PendingEvents
	}

	f.update(func(s *Status) { s.PendingEvents = n })
	if n > 0 {
		f.scheduler.Notify()
	}
	return n
}

// Enqueue records a user action locally and returns its id. It never waits
// on the network.
func (f *Facade) Enqueue(ctx context.Context, eventType models.EventType, payload json.RawMessage, createdAt int64) (string, error) {
	if !eventType.IsValid() {
		return "", apperrors.New(apperrors.ErrValidation, "unknown event type: "+string(eventType))
	}
	id, err := f.store.Append(ctx, models.NewOfflineEvent{
		Type:      eventType,
		Payload:   payload,
		CreatedAt: createdAt,
	})
	if err != nil {
		return "", err
	}
	f.RefreshPendingCount(ctx)
	return id, nil
}

// Caches exposes the auxiliary key-value caches kept next to the queue.
func (f *Facade) Caches(ctx context.Context) (db.CacheRepository, error) {
	return f.store.Caches(ctx)
}

// SetSyncInterval changes the periodic trigger interval.
func (f *Facade) SetSyncInterval(d time.Duration) {
	f.scheduler.SetInterval(d)
}

// SyncInterval returns the periodic trigger interval.
func (f *Facade) SyncInterval() time.Duration {
	return f.scheduler.Interval()
}

// Subscribe returns a channel that receives the current state and then every
// change. Slow readers only miss intermediate states, never the latest one.
func (f *Facade) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	ch <- f.snapshot()
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

// OnSyncEvent applies engine notifications to the status.
func (f *Facade) OnSyncEvent(event syncpkg.SyncEvent) {
	switch event.Type {
	case syncpkg.SyncEventStarted:
		f.update(func(s *Status) { s.IsSyncing = true })
	case syncpkg.SyncEventCompleted:
		last := f.engine.LastSync()
		f.update(func(s *Status) {
			s.IsSyncing = false
			if event.Result != nil && event.Result.Pending >= 0 {
				s.PendingEvents = event.Result.Pending
			}
			if last != nil {
				s.LastSyncCompletedAt = last
			}
		})
	}

	if f.forward != nil {
		f.forward.OnSyncEvent(event)
	}
}

func (f *Facade) onConnectivity(online bool) {
	f.update(func(s *Status) { s.IsOnline = online })
}

func (f *Facade) update(fn func(s *Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before := f.status
	fn(&f.status)
	if statusEqual(before, f.status) {
		return
	}

	snap := f.snapshot()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread value with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func statusEqual(a, b Status) bool {
	if a.IsOnline != b.IsOnline || a.PendingEvents != b.PendingEvents || a.IsSyncing != b.IsSyncing {
		return false
	}
	if (a.LastSyncCompletedAt == nil) != (b.LastSyncCompletedAt == nil) {
		return false
	}
	return a.LastSyncCompletedAt == nil || a.LastSyncCompletedAt.Equal(*b.LastSyncCompletedAt)
}
