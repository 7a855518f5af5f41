package history

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/migrations"
)

// setupRepository opens a migrated database in a temp directory.
func setupRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecordChange(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	err := repo.RecordChange(ctx, Change{
		LightID:  "d073d5010203",
		Property: "color",
		Old:      protocol.HSBK{Kelvin: 3500},
		New:      protocol.HSBK{Hue: 100, Kelvin: 2700},
	})
	if err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "d073d5010203", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Property != "color" || e.ID == 0 {
		t.Errorf("entry = %+v", e)
	}
	var got protocol.HSBK
	if err := json.Unmarshal(e.NewValue, &got); err != nil {
		t.Fatalf("unmarshal new value: %v", err)
	}
	if got != (protocol.HSBK{Hue: 100, Kelvin: 2700}) {
		t.Errorf("new value = %+v", got)
	}
	if time.Since(e.RecordedAt) > time.Minute {
		t.Errorf("RecordedAt = %v, want about now", e.RecordedAt)
	}
}

func TestRecordChangeRequiresLightID(t *testing.T) {
	repo := setupRepository(t)
	if err := repo.RecordChange(context.Background(), Change{Property: "label"}); !errors.Is(err, ErrLightIDRequired) {
		t.Errorf("RecordChange() error = %v, want ErrLightIDRequired", err)
	}
	if _, err := repo.GetHistory(context.Background(), "", 1); !errors.Is(err, ErrLightIDRequired) {
		t.Errorf("GetHistory() error = %v, want ErrLightIDRequired", err)
	}
}

func TestGetHistoryNewestFirstAndLimit(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		err := repo.RecordChange(ctx, Change{
			LightID:  "a",
			Property: "label",
			New:      string(rune('a' + i)),
			At:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}
	if err := repo.RecordChange(ctx, Change{LightID: "b", Property: "label", At: base}); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "a", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if string(entries[0].NewValue) != `"e"` || string(entries[2].NewValue) != `"c"` {
		t.Errorf("order = %s, %s", entries[0].NewValue, entries[2].NewValue)
	}
	if !entries[0].RecordedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("RecordedAt = %v", entries[0].RecordedAt)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultHistoryLimit},
		{-1, defaultHistoryLimit},
		{10, 10},
		{1000, maxHistoryLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPrune(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	for _, age := range []time.Duration{time.Hour, 48 * time.Hour, 72 * time.Hour} {
		if err := repo.RecordChange(ctx, Change{LightID: "a", Property: "power", At: now.Add(-age)}); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}
	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestUpsertLight(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	if err := repo.UpsertLight(ctx, LightRecord{LightID: "a", Label: "Old", LastSeenAt: first}); err != nil {
		t.Fatalf("UpsertLight() error = %v", err)
	}
	if err := repo.UpsertLight(ctx, LightRecord{LightID: "a", Label: "New", ProductID: 31, LastSeenAt: later}); err != nil {
		t.Fatalf("UpsertLight() error = %v", err)
	}

	lights, err := repo.ListLights(ctx)
	if err != nil {
		t.Fatalf("ListLights() error = %v", err)
	}
	if len(lights) != 1 {
		t.Fatalf("lights = %d, want 1", len(lights))
	}
	got := lights[0]
	if got.Label != "New" || got.ProductID != 31 {
		t.Errorf("record = %+v", got)
	}
	if !got.FirstSeenAt.Equal(first) || !got.LastSeenAt.Equal(later) {
		t.Errorf("seen = %v..%v, want %v..%v", got.FirstSeenAt, got.LastSeenAt, first, later)
	}
}
