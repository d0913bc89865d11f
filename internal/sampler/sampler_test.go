package sampler

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu     sync.Mutex
	series map[string]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{series: make(map[string]float64)}
}

func (r *fakeRecorder) RecordIn(category, name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[category+"."+name] = value
}

func (r *fakeRecorder) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.series[key]
	return ok
}

func (r *fakeRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

func TestSampler_Collect(t *testing.T) {
	rec := newFakeRecorder()
	s := New(rec)

	s.Collect(context.Background())

	if rec.len() == 0 {
		t.Fatal("expected at least one sampled metric")
	}
	if !rec.has("system.memory_percent") {
		t.Error("expected system.memory_percent to be sampled")
	}
	if !rec.has("system.disk_root_percent") {
		t.Error("expected system.disk_root_percent to be sampled")
	}
}

func TestSampler_NetworkRatesNeedTwoSamples(t *testing.T) {
	rec := newFakeRecorder()
	s := New(rec)

	s.Collect(context.Background())
	if rec.has("system.net_sent_bytes_per_sec") {
		t.Error("rates need a previous sample to delta against")
	}

	time.Sleep(20 * time.Millisecond)
	s.Collect(context.Background())
	if !rec.has("system.net_sent_bytes_per_sec") {
		t.Error("expected network rate after a second sample")
	}
}

func TestSampler_StartStop(t *testing.T) {
	rec := newFakeRecorder()
	s := New(rec, WithInterval(time.Second))

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op

	// The loop primes an immediate first sample
	deadline := time.Now().Add(2 * time.Second)
	for rec.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.len() == 0 {
		t.Fatal("expected the loop to record an initial sample")
	}

	s.Stop()
	s.Stop() // no-op
}
