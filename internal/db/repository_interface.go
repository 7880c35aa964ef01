package db

import (
	"context"
	"encoding/json"

	"github.com/ahmed11551/namazpro24/internal/models"
)

// EventRepository defines the persistence operations behind the offline event queue.
type EventRepository interface {
	InsertEvent(ctx context.Context, e *models.OfflineEvent) error
	GetEvent(ctx context.Context, id string) (*models.OfflineEvent, error)
	ListUnsyncedEvents(ctx context.Context) ([]*models.OfflineEvent, error)
	CountUnsyncedEvents(ctx context.Context) (int, error)
	MarkEventSynced(ctx context.Context, id string) error
	IncrementEventRetry(ctx context.Context, id string) (int, error)
	DeleteEventsBefore(ctx context.Context, cutoffMillis int64) (int64, error)
}

// CacheRepository defines the read-through caches used while offline.
type CacheRepository interface {
	CacheGoals(ctx context.Context, goals []models.Goal) error
	CachedGoals(ctx context.Context) ([]models.Goal, error)

	SaveTasbihSession(ctx context.Context, s *models.TasbihSession) error
	LastTasbihSession(ctx context.Context) (*models.TasbihSession, error)

	SavePrayerDebt(ctx context.Context, userID string, snapshot json.RawMessage) error
	PrayerDebt(ctx context.Context, userID string) (*models.CachedPrayerDebt, error)
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ EventRepository = (*Repository)(nil)
	_ CacheRepository = (*Repository)(nil)
)
