package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteRepository implements Repository on the light_history and lights
// tables. Timestamps are stored as Unix milliseconds.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository.
//
// Parameters:
//   - db: Open, migrated SQLite connection
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordChange inserts one change. Old and new values are stored as JSON.
// A zero At is replaced by the current time.
func (r *SQLiteRepository) RecordChange(ctx context.Context, c Change) error {
	if c.LightID == "" {
		return ErrLightIDRequired
	}
	if c.At.IsZero() {
		c.At = r.now()
	}

	oldJSON, err := json.Marshal(c.Old)
	if err != nil {
		return fmt.Errorf("marshalling old value: %w", err)
	}
	newJSON, err := json.Marshal(c.New)
	if err != nil {
		return fmt.Errorf("marshalling new value: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO light_history (light_id, property, old_value, new_value, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.LightID, c.Property, string(oldJSON), string(newJSON), c.At.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting light history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries for a light, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - lightID: Light identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: History entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) GetHistory(ctx context.Context, lightID string, limit int) ([]Entry, error) {
	if lightID == "" {
		return nil, ErrLightIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, light_id, property, old_value, new_value, recorded_at
		 FROM light_history
		 WHERE light_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		lightID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying light history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e        Entry
			oldValue sql.NullString
			newValue sql.NullString
			millis   int64
		)
		if err := rows.Scan(&e.ID, &e.LightID, &e.Property, &oldValue, &newValue, &millis); err != nil {
			return nil, fmt.Errorf("scanning light history: %w", err)
		}
		e.OldValue = rawJSON(oldValue)
		e.NewValue = rawJSON(newValue)
		e.RecordedAt = time.UnixMilli(millis).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating light history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().Add(-olderThan).UTC().UnixMilli()
	result, err := r.db.ExecContext(ctx, "DELETE FROM light_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting light history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// UpsertLight inserts a registry row or refreshes label, address, product
// and last_seen_at. first_seen_at is kept from the first insert.
func (r *SQLiteRepository) UpsertLight(ctx context.Context, rec LightRecord) error {
	if rec.LightID == "" {
		return ErrLightIDRequired
	}
	if rec.LastSeenAt.IsZero() {
		rec.LastSeenAt = r.now()
	}
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = rec.LastSeenAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lights (light_id, label, address, product_id, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(light_id) DO UPDATE SET
		   label = excluded.label,
		   address = excluded.address,
		   product_id = excluded.product_id,
		   last_seen_at = excluded.last_seen_at`,
		rec.LightID, rec.Label, rec.Address, rec.ProductID,
		rec.FirstSeenAt.UTC().UnixMilli(), rec.LastSeenAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting light: %w", err)
	}
	return nil
}

// ListLights returns every registry row ordered by light id.
func (r *SQLiteRepository) ListLights(ctx context.Context) ([]LightRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT light_id, label, address, product_id, first_seen_at, last_seen_at
		 FROM lights ORDER BY light_id`)
	if err != nil {
		return nil, fmt.Errorf("querying lights: %w", err)
	}
	defer rows.Close()

	var out []LightRecord
	for rows.Next() {
		var (
			rec         LightRecord
			first, last int64
		)
		if err := rows.Scan(&rec.LightID, &rec.Label, &rec.Address, &rec.ProductID, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning light: %w", err)
		}
		rec.FirstSeenAt = time.UnixMilli(first).UTC()
		rec.LastSeenAt = time.UnixMilli(last).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lights: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s.String)
}
