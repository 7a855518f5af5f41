package history

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one recorded property change.
type Entry struct {
	ID         int64           `json:"id"`
	LightID    string          `json:"light_id"`
	Property   string          `json:"property"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Change is a property transition waiting to be written.
type Change struct {
	LightID  string
	Property string
	Old      any
	New      any
	At       time.Time
}

// LightRecord is a row of the light registry.
type LightRecord struct {
	LightID     string    `json:"light_id"`
	Label       string    `json:"label"`
	Address     string    `json:"address"`
	ProductID   uint32    `json:"product_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Repository stores and retrieves change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordChange appends one change.
	RecordChange(ctx context.Context, c Change) error

	// GetHistory returns the newest entries for a light, newest first.
	// limit defaults to 50 and is capped at 200.
	GetHistory(ctx context.Context, lightID string, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	// UpsertLight records that a light was seen.
	UpsertLight(ctx context.Context, rec LightRecord) error

	// ListLights returns the registry ordered by light id.
	ListLights(ctx context.Context) ([]LightRecord, error)
}
