package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahmed11551/namazpro24/internal/models"
)

// Repository provides the SQL for offline events and the auxiliary caches.
// Frequently used statements are prepared once and cached.
type Repository struct {
	db  *sql.DB
	now func() time.Time

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have won the race; keep theirs.
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements. The *sql.DB is left open.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// =====================================================
// Offline event operations
// =====================================================

const eventColumns = `id, type, payload, created_at, synced, retry_count`

func scanEvent(row interface{ Scan(...any) error }) (*models.OfflineEvent, error) {
	var e models.OfflineEvent
	var payload string
	if err := row.Scan(&e.ID, &e.Type, &payload, &e.CreatedAt, &e.Synced, &e.RetryCount); err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// InsertEvent persists a fully populated event in one statement.
func (r *Repository) InsertEvent(ctx context.Context, e *models.OfflineEvent) error {
	stmt, err := r.PrepareStmt(ctx, `INSERT INTO offline_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, e.ID, e.Type, string(e.Payload), e.CreatedAt, e.Synced, e.RetryCount)
	return err
}

// GetEvent returns sql.ErrNoRows when the id is unknown.
func (r *Repository) GetEvent(ctx context.Context, id string) (*models.OfflineEvent, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT `+eventColumns+` FROM offline_events WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanEvent(stmt.QueryRowContext(ctx, id))
}

// ListUnsyncedEvents returns unsynced events oldest first.
func (r *Repository) ListUnsyncedEvents(ctx context.Context) ([]*models.OfflineEvent, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT `+eventColumns+` FROM offline_events WHERE synced = 0 ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.OfflineEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CountUnsyncedEvents counts events with synced = 0.
func (r *Repository) CountUnsyncedEvents(ctx context.Context) (int, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT COUNT(*) FROM offline_events WHERE synced = 0`)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.QueryRowContext(ctx).Scan(&n)
	return n, err
}

// MarkEventSynced sets synced = 1. An unknown id affects no rows and is not an error.
func (r *Repository) MarkEventSynced(ctx context.Context, id string) error {
	stmt, err := r.PrepareStmt(ctx, `UPDATE offline_events SET synced = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, id)
	return err
}

// IncrementEventRetry bumps retry_count in a single statement and returns the
// new value. An unknown id returns (0, nil).
func (r *Repository) IncrementEventRetry(ctx context.Context, id string) (int, error) {
	stmt, err := r.PrepareStmt(ctx, `UPDATE offline_events SET retry_count = retry_count + 1 WHERE id = ? RETURNING retry_count`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, id).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// DeleteEventsBefore removes every event created strictly before cutoffMillis,
// synced or not, and returns how many were removed.
func (r *Repository) DeleteEventsBefore(ctx context.Context, cutoffMillis int64) (int64, error) {
	stmt, err := r.PrepareStmt(ctx, `DELETE FROM offline_events WHERE created_at < ?`)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, cutoffMillis)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =====================================================
// Goals cache
// =====================================================

// CacheGoals replaces the cached goal list with goals, stamping cached_at.
func (r *Repository) CacheGoals(ctx context.Context, goals []models.Goal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM goals_cache`); err != nil {
		return err
	}

	cachedAt := r.now().UnixMilli()
	query := `
	INSERT INTO goals_cache (id, user_id, category, item_id, goal_type, target_count, progress,
		status, linked_counter_type, created_at, completed_at, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range goals {
		g := &goals[i]
		g.CachedAt = cachedAt
		if _, err := tx.ExecContext(ctx, query, g.ID, g.UserID, g.Category, nullString(g.ItemID),
			g.GoalType, g.TargetCount, g.Progress, g.Status, nullString(g.LinkedCounterType),
			g.CreatedAt, nullString(g.CompletedAt), g.CachedAt); err != nil {
			return fmt.Errorf("failed to cache goal %s: %w", g.ID, err)
		}
	}
	return tx.Commit()
}

// CachedGoals returns the cached goals in insertion order.
func (r *Repository) CachedGoals(ctx context.Context) ([]models.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, category, item_id, goal_type, target_count, progress,
		   status, linked_counter_type, created_at, completed_at, cached_at
	FROM goals_cache ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := []models.Goal{}
	for rows.Next() {
		var g models.Goal
		var itemID, linked, completedAt sql.NullString
		if err := rows.Scan(&g.ID, &g.UserID, &g.Category, &itemID, &g.GoalType, &g.TargetCount,
			&g.Progress, &g.Status, &linked, &g.CreatedAt, &completedAt, &g.CachedAt); err != nil {
			return nil, err
		}
		g.ItemID = itemID.String
		g.LinkedCounterType = linked.String
		g.CompletedAt = completedAt.String
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// =====================================================
// Tasbih sessions
// =====================================================

// SaveTasbihSession upserts the session and stamps saved_at.
func (r *Repository) SaveTasbihSession(ctx context.Context, s *models.TasbihSession) error {
	s.SavedAt = r.now().UnixMilli()
	query := `
	INSERT OR REPLACE INTO tasbih_sessions (id, user_id, goal_id, category, count, target,
		is_reverse, prayer_segment, started_at, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.UserID, nullString(s.GoalID), s.Category,
		s.Count, s.Target, s.IsReverse, nullString(string(s.PrayerSegment)), nullString(s.StartedAt), s.SavedAt)
	return err
}

// LastTasbihSession returns the most recently saved session, or nil when there is none.
func (r *Repository) LastTasbihSession(ctx context.Context) (*models.TasbihSession, error) {
	var s models.TasbihSession
	var goalID, segment, startedAt sql.NullString
	err := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, goal_id, category, count, target, is_reverse, prayer_segment, started_at, saved_at
	FROM tasbih_sessions ORDER BY saved_at DESC, rowid DESC LIMIT 1
	`).Scan(&s.ID, &s.UserID, &goalID, &s.Category, &s.Count, &s.Target, &s.IsReverse,
		&segment, &startedAt, &s.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.GoalID = goalID.String
	s.PrayerSegment = models.PrayerSegment(segment.String)
	s.StartedAt = startedAt.String
	return &s, nil
}

// =====================================================
// Prayer debt cache
// =====================================================

// SavePrayerDebt stores the latest snapshot for a user, replacing any previous one.
func (r *Repository) SavePrayerDebt(ctx context.Context, userID string, snapshot json.RawMessage) error {
	if !json.Valid(snapshot) {
		return fmt.Errorf("prayer debt snapshot for %s is not valid JSON", userID)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO prayer_debt_cache (user_id, snapshot, cached_at) VALUES (?, ?, ?)`,
		userID, string(snapshot), r.now().UnixMilli())
	return err
}

// PrayerDebt returns the cached snapshot for userID, or nil when none is cached.
func (r *Repository) PrayerDebt(ctx context.Context, userID string) (*models.CachedPrayerDebt, error) {
	var c models.CachedPrayerDebt
	var snapshot string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, snapshot, cached_at FROM prayer_debt_cache WHERE user_id = ?`, userID,
	).Scan(&c.UserID, &snapshot, &c.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Snapshot = json.RawMessage(snapshot)
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
