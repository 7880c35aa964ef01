// Package sync drains the offline event queue to the remote service.
package sync

import (
	"context"
	"time"

	"github.com/ahmed11551/namazpro24/internal/models"
)

// EventStore is the part of the durable queue the engine needs.
type EventStore interface {
	ListUnsynced(ctx context.Context) ([]*models.OfflineEvent, error)
	MarkSynced(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) (int, error)
	PendingCount(ctx context.Context) (int, error)
}

// Dispatcher delivers one event to the remote service.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.OfflineEvent) error
}

// Connectivity reports whether the remote is believed reachable.
type Connectivity interface {
	IsOnline() bool
}

// SyncEngineInterface defines the interface for sync engine operations.
// This interface allows for mocking in tests and alternative implementations.
type SyncEngineInterface interface {
	// Run performs one sync run. It never fails; the outcome is in the result.
	Run(ctx context.Context) RunResult

	// SetEventHandler sets the event handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)

	// IsRunning reports whether a run is in progress.
	IsRunning() bool

	// LastSync returns the completion time of the last completed run.
	LastSync() *time.Time
}

// SyncEventType names a notification emitted during a run.
type SyncEventType string

const (
	SyncEventStarted   SyncEventType = "run.started"
	SyncEventCompleted SyncEventType = "run.completed"
	SyncEventDelivered SyncEventType = "event.delivered"
	SyncEventFailed    SyncEventType = "event.failed"
	SyncEventAbandoned SyncEventType = "event.abandoned"
)

// SyncEvent is one notification. Event fields are set for per-event types,
// Result for run.completed.
type SyncEvent struct {
	Type       SyncEventType    `json:"type"`
	EventID    string           `json:"event_id,omitempty"`
	EventType  models.EventType `json:"event_type,omitempty"`
	RetryCount int              `json:"retry_count,omitempty"`
	Error      string           `json:"error,omitempty"`
	Result     *RunResult       `json:"result,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// SyncEventHandler receives run notifications. Handlers are called
// synchronously on the run's goroutine and must not block or start a run.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// SyncEventHandlerFunc adapts a function to SyncEventHandler.
type SyncEventHandlerFunc func(event SyncEvent)

func (f SyncEventHandlerFunc) OnSyncEvent(event SyncEvent) { f(event) }

// Ensure *Engine implements the interface at compile time.
var _ SyncEngineInterface = (*Engine)(nil)
