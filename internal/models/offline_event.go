package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of user action an offline event records.
// It also selects the remote endpoint the event is dispatched to.
type EventType string

const (
	EventTypeDhikrTap         EventType = "dhikr_tap"
	EventTypeGoalUpdate       EventType = "goal_update"
	EventTypePrayerDebtUpdate EventType = "prayer_debt_update"
)

// EventTypes lists every known event type.
var EventTypes = []EventType{
	EventTypeDhikrTap,
	EventTypeGoalUpdate,
	EventTypePrayerDebtUpdate,
}

// IsValid reports whether t belongs to the closed set of event types.
func (t EventType) IsValid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	// MaxRetries is the failed-dispatch count after which an event is retired
	// from the queue even though it was never delivered.
	MaxRetries = 5

	// RetentionWindow is how long events are kept, synced or not.
	RetentionWindow = 30 * 24 * time.Hour
)

// OfflineEvent is a user action recorded locally and not yet confirmed by the
// remote service.
type OfflineEvent struct {
	ID         UUID            `db:"id" json:"id"`
	Type       EventType       `db:"type" json:"type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"` // unix milliseconds
	Synced     bool            `db:"synced" json:"synced"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for OfflineEvent.
func (OfflineEvent) TableName() string {
	return "offline_events"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (e *OfflineEvent) CreatedAtTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// NewOfflineEvent is the caller-supplied part of an OfflineEvent.
// The store assigns ID, Synced and RetryCount.
type NewOfflineEvent struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at,omitempty"` // zero means now
}
