package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/metrics"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "vigil_sqlite_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestMetricsStore_SaveBatch(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))

	ctx := context.Background()
	now := time.Now()

	points := []metrics.DataPoint{
		metrics.NewDataPointAt(now.Add(-2*time.Second), 1.0),
		metrics.NewDataPointAt(now.Add(-1*time.Second), 2.0),
		metrics.NewDataPointAt(now, 3.0),
	}

	if err := store.SaveBatch(ctx, "batch_metric", points); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	count, err := store.Count(ctx, "batch_metric")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestMetricsStore_SaveBatch_Empty(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))

	if err := store.SaveBatch(context.Background(), "empty", nil); err != nil {
		t.Fatalf("SaveBatch with no points failed: %v", err)
	}
}

func TestMetricsStore_SaveBatch_SkipsInvalid(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))
	ctx := context.Background()

	points := []metrics.DataPoint{
		metrics.NewDataPointAt(time.Now(), 1.0),
		{}, // invalid, skipped
	}

	if err := store.SaveBatch(ctx, "mixed", points); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	count, err := store.Count(ctx, "mixed")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestMetricsStore_GetHistory(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	points := []metrics.DataPoint{
		metrics.NewDataPointAt(now.Add(-time.Hour), 1.0),
		metrics.NewDataPointAt(now.Add(-time.Minute), 2.0),
		metrics.NewDataPointAt(now, 3.0),
	}
	if err := store.SaveBatch(ctx, "hist", points); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	got, err := store.GetHistory(ctx, "hist", now.Add(-5*time.Minute), 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Value != 2.0 || got[1].Value != 3.0 {
		t.Errorf("expected [2 3] in chronological order, got [%v %v]", got[0].Value, got[1].Value)
	}
}

func TestMetricsStore_GetLatest(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))
	ctx := context.Background()

	if _, ok, err := store.GetLatest(ctx, "none"); err != nil || ok {
		t.Fatalf("expected no latest for unknown metric, ok=%v err=%v", ok, err)
	}

	now := time.Now()
	points := []metrics.DataPoint{
		metrics.NewDataPointAt(now.Add(-time.Second), 1.0),
		metrics.NewDataPointAt(now, 2.0),
	}
	if err := store.SaveBatch(ctx, "latest", points); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	dp, ok, err := store.GetLatest(ctx, "latest")
	if err != nil || !ok {
		t.Fatalf("GetLatest failed: ok=%v err=%v", ok, err)
	}
	if dp.Value != 2.0 {
		t.Errorf("expected latest 2.0, got %v", dp.Value)
	}
}

func TestMetricsStore_Prune(t *testing.T) {
	store := NewMetricsStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	points := []metrics.DataPoint{
		metrics.NewDataPointAt(now.AddDate(0, 0, -10), 1.0),
		metrics.NewDataPointAt(now, 2.0),
	}
	if err := store.SaveBatch(ctx, "prunable", points); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	deleted, err := store.Prune(ctx, 7)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted)
	}

	count, err := store.Count(ctx, "prunable")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row remaining, got %d", count)
	}
}
