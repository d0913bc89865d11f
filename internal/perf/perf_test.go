package perf

import (
	"errors"
	"testing"
	"time"
)

type recorded struct {
	category string
	name     string
	value    float64
}

type fakeRecorder struct {
	points []recorded
}

func (r *fakeRecorder) RecordIn(category, name string, value float64) {
	r.points = append(r.points, recorded{category: category, name: name, value: value})
}

func (r *fakeRecorder) find(name string) (recorded, bool) {
	for _, p := range r.points {
		if p.name == name {
			return p, true
		}
	}
	return recorded{}, false
}

func TestTracker_StartSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	tracker := NewTracker(rec, WithClock(func() time.Time { return current }))

	stop := tracker.Start("db_query")
	current = base.Add(250 * time.Millisecond)
	stop(true)

	duration, ok := rec.find("db_query_duration")
	if !ok {
		t.Fatal("expected duration metric")
	}
	if duration.value != 250 {
		t.Errorf("expected 250ms, got %v", duration.value)
	}
	if duration.category != DefaultCategory {
		t.Errorf("expected category %q, got %q", DefaultCategory, duration.category)
	}

	if _, ok := rec.find("db_query_success"); !ok {
		t.Error("expected success counter")
	}
	if _, ok := rec.find("db_query_failure"); ok {
		t.Error("did not expect failure counter")
	}
}

func TestTracker_StartFailure(t *testing.T) {
	rec := &fakeRecorder{}
	tracker := NewTracker(rec)

	tracker.Start("upload")(false)

	if _, ok := rec.find("upload_failure"); !ok {
		t.Error("expected failure counter")
	}
	if _, ok := rec.find("upload_success"); ok {
		t.Error("did not expect success counter")
	}
}

func TestTracker_Do(t *testing.T) {
	rec := &fakeRecorder{}
	tracker := NewTracker(rec, WithCategory("tasks"))

	wantErr := errors.New("boom")
	err := tracker.Do("job", func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("expected error passthrough, got %v", err)
	}

	failure, ok := rec.find("job_failure")
	if !ok {
		t.Fatal("expected failure counter")
	}
	if failure.category != "tasks" {
		t.Errorf("expected category tasks, got %q", failure.category)
	}

	if err := tracker.Do("job", func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := rec.find("job_success"); !ok {
		t.Error("expected success counter")
	}
}
