// Package queue provides the durable offline event queue.
//
// Every user action is appended here before any network attempt, and it stays
// until the sync engine confirms delivery, retires it after repeated failures,
// or the retention purge removes it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/db"
	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/models"
	"github.com/ahmed11551/namazpro24/internal/uuid"
)

// ErrClosed is wrapped by every operation on a closed Store.
var ErrClosed = errors.New("event store is closed")

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for default created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the SQLite-backed offline event queue. One instance per process;
// it is safe for concurrent use.
type Store struct {
	dataDir string
	now     func() time.Time

	mu     sync.Mutex
	db     *db.DB
	repo   *db.Repository
	closed bool
}

// NewStore creates a Store for dataDir. Nothing is opened until Initialize
// (or the first operation) runs.
func NewStore(dataDir string, opts ...Option) *Store {
	s := &Store{
		dataDir: dataDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens the database and applies migrations. It is idempotent and
// safe for concurrent callers. A failed attempt leaves nothing open, so a
// later call can retry.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.StorageError("initialize", ErrClosed)
	}
	if s.repo != nil {
		return nil
	}

	conn, err := db.Open(s.dataDir)
	if err != nil {
		return apperrors.StorageError("open event store", err)
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return apperrors.StorageError("migrate event store", err)
	}

	s.db = conn
	s.repo = db.NewRepository(conn.DB)
	logging.Debug("event store initialized", map[string]interface{}{
		"component": "queue",
		"path":      conn.Path(),
	})
	return nil
}

func (s *Store) repository(ctx context.Context) (*db.Repository, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.StorageError("use event store", ErrClosed)
	}
	return s.repo, nil
}

// Append persists a new event and returns its id. The event is durable when
// Append returns nil.
func (s *Store) Append(ctx context.Context, ev models.NewOfflineEvent) (string, error) {
	if ev.Type == "" {
		return "", apperrors.New(apperrors.ErrValidation, "event type is required")
	}
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return "", apperrors.New(apperrors.ErrValidation, "event payload must be valid JSON")
	}

	repo, err := s.repository(ctx)
	if err != nil {
		return "", err
	}

	createdAt := ev.CreatedAt
	if createdAt <= 0 {
		createdAt = s.now().UnixMilli()
	}

	event := &models.OfflineEvent{
		ID:         uuid.NewEventID(),
		Type:       ev.Type,
		Payload:    payload,
		CreatedAt:  createdAt,
		Synced:     false,
		RetryCount: 0,
	}
	if err := repo.InsertEvent(ctx, event); err != nil {
		return "", apperrors.StorageError("append event", err)
	}

	logging.Debug("event appended", map[string]interface{}{
		"component": "queue",
		"event_id":  event.ID.String(),
		"type":      string(event.Type),
	})
	return event.ID.String(), nil
}

// ListUnsynced returns a snapshot of every unsynced event, oldest first.
func (s *Store) ListUnsynced(ctx context.Context) ([]*models.OfflineEvent, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return nil, err
	}
	events, err := repo.ListUnsyncedEvents(ctx)
	if err != nil {
		return nil, apperrors.StorageError("list unsynced events", err)
	}
	return events, nil
}

// PendingCount returns the number of unsynced events.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return 0, err
	}
	n, err := repo.CountUnsyncedEvents(ctx)
	if err != nil {
		return 0, apperrors.StorageError("count unsynced events", err)
	}
	return n, nil
}

// Get returns one event by id.
func (s *Store) Get(ctx context.Context, id string) (*models.OfflineEvent, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return nil, err
	}
	event, err := repo.GetEvent(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "event "+id+" not found")
	}
	if err != nil {
		return nil, apperrors.StorageError("get event", err)
	}
	return event, nil
}

// MarkSynced flags the event as delivered. Unknown ids are a no-op.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	repo, err := s.repository(ctx)
	if err != nil {
		return err
	}
	if err := repo.MarkEventSynced(ctx, id); err != nil {
		return apperrors.StorageError("mark event synced", err)
	}
	return nil
}

// IncrementRetry adds one to the event's retry count and returns the new
// value. Unknown ids return (0, nil).
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return 0, err
	}
	n, err := repo.IncrementEventRetry(ctx, id)
	if err != nil {
		return 0, apperrors.StorageError("increment retry count", err)
	}
	return n, nil
}

// PurgeOlderThan deletes every event created before cutoff, synced or not.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return 0, err
	}
	n, err := repo.DeleteEventsBefore(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, apperrors.StorageError("purge events", err)
	}
	if n > 0 {
		logging.Info("purged expired events", map[string]interface{}{
			"component": "queue",
			"purged":    n,
			"cutoff":    cutoff.UTC().Format(time.RFC3339),
		})
	}
	return n, nil
}

// Caches exposes the offline caches kept in the same database file.
func (s *Store) Caches(ctx context.Context) (db.CacheRepository, error) {
	repo, err := s.repository(ctx)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Close releases the database. Further operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.repo == nil {
		return nil
	}
	s.repo.Close()
	err := s.db.Close()
	s.repo, s.db = nil, nil
	return err
}
