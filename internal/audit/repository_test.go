package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
	"github.com/nerrad567/starlink-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/starlink-mqtt-bridge/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func strPtr(s string) *string { return &s }

func TestRecordCommand(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := field.Result{Requested: "on", Applied: strPtr("on"), Success: true}
	if err := repo.RecordCommand(ctx, "dish_config.snow_melt_mode", ok, at); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	failed := field.Failed("x", errors.New("path error: unknown field bogus"))
	if err := repo.RecordCommand(ctx, "bogus", failed, at.Add(time.Second)); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 || len(res.Logs) != 2 {
		t.Fatalf("Total=%d len=%d, want 2/2", res.Total, len(res.Logs))
	}

	latest := res.Logs[0]
	if latest.Field != "bogus" || latest.Success || latest.Applied != nil {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Message == nil || *latest.Message != "path error: unknown field bogus" {
		t.Errorf("latest message = %v", latest.Message)
	}

	first := res.Logs[1]
	if first.Field != "dish_config.snow_melt_mode" || !first.Success || first.Applied == nil || *first.Applied != "on" {
		t.Errorf("first = %+v", first)
	}
	if first.Message != nil {
		t.Errorf("first message = %q, want nil", *first.Message)
	}
	if !first.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, at)
	}
	if first.ID == "" || first.ID == latest.ID {
		t.Errorf("IDs = %q, %q", first.ID, latest.ID)
	}
}

func TestListFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, path := range []string{"a", "b", "a", "a"} {
		result := field.Result{Requested: "1", Applied: strPtr("1"), Success: i%2 == 0}
		if err := repo.RecordCommand(ctx, path, result, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordCommand() error = %v", err)
		}
	}

	success := true
	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"all", Filter{}, 4, 4},
		{"by field", Filter{Field: "a"}, 3, 3},
		{"successes", Filter{Success: &success}, 2, 2},
		{"field and success", Filter{Field: "a", Success: &success}, 2, 2},
		{"paged", Filter{Limit: 1, Offset: 1}, 4, 1},
		{"past end", Filter{Offset: 10}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Logs) != tt.wantLen {
				t.Errorf("Total=%d len=%d, want %d/%d", res.Total, len(res.Logs), tt.wantTotal, tt.wantLen)
			}
		})
	}
}

func TestListClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit=%d Offset=%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
	if res.Logs == nil {
		t.Error("Logs = nil, want empty slice")
	}
}
