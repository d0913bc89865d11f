// Package perf records operation timing and outcome metrics, feeding the
// same store the alert rules read.
package perf

import (
	"time"
)

// DefaultCategory is where operation metrics land unless overridden.
const DefaultCategory = "performance"

// Recorder is the slice of the metric store the tracker writes to.
type Recorder interface {
	RecordIn(category, name string, value float64)
}

// Tracker times named operations and records duration and outcome counters.
// For an operation "db_query" it records "db_query_duration" (milliseconds)
// plus a "db_query_success" or "db_query_failure" count of 1 per call.
type Tracker struct {
	recorder Recorder
	category string
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCategory sets the category operation metrics are recorded under.
func WithCategory(category string) Option {
	return func(t *Tracker) {
		if category != "" {
			t.category = category
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker writing into recorder.
func NewTracker(recorder Recorder, opts ...Option) *Tracker {
	t := &Tracker{
		recorder: recorder,
		category: DefaultCategory,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins timing the named operation. The returned stop function
// records the elapsed milliseconds and the outcome; call it exactly once.
func (t *Tracker) Start(name string) func(success bool) {
	started := t.now()
	return func(success bool) {
		elapsed := t.now().Sub(started)
		t.recorder.RecordIn(t.category, name+"_duration", float64(elapsed)/float64(time.Millisecond))
		if success {
			t.recorder.RecordIn(t.category, name+"_success", 1)
		} else {
			t.recorder.RecordIn(t.category, name+"_failure", 1)
		}
	}
}

// Do runs fn as the named operation, recording its duration and outcome.
// The error is passed through.
func (t *Tracker) Do(name string, fn func() error) error {
	stop := t.Start(name)
	err := fn()
	stop(err == nil)
	return err
}
