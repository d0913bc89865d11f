// Package metrics provides time-series metrics collection and storage.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/logger"
)

// Common metric names recorded throughout the process.
const (
	MetricCPUPercent    = "system.cpu_percent"
	MetricMemoryPercent = "system.memory_percent"
	MetricDiskPercent   = "system.disk_root_percent"
	MetricErrorRate     = "log_levels.ERROR"
	MetricTaskFailures  = "tasks.failed"
	MetricAPILatency    = "api.response_time"
)

// PersistentStore defines the interface for optional metric persistence.
type PersistentStore interface {
	SaveBatch(ctx context.Context, metricName string, points []DataPoint) error
	GetHistory(ctx context.Context, metricName string, since time.Time, limit int) ([]DataPoint, error)
	Prune(ctx context.Context, retentionDays int) (int64, error)
}

// ObserverFunc receives (series name, value) for every new point on a series.
type ObserverFunc func(name string, value float64)

// ObserverHandle identifies a registered observer for O(1) removal.
type ObserverHandle string

type observer struct {
	id ObserverHandle
	fn ObserverFunc
}

// Series represents a named time-series of data points.
type Series struct {
	Name       string
	Buffer     *CircularBuffer
	LastUpdate time.Time
}

// Store is the thread-safe rolling time-series store. Producers record
// points, consumers query bounded history and windowed averages, and
// observers get called synchronously on every new point.
type Store struct {
	mu        sync.RWMutex
	series    map[string]*Series
	observers map[string][]observer
	handles   map[ObserverHandle]string // handle -> series name

	store    PersistentStore
	capacity int
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	persistInterval time.Duration
	pruneInterval   time.Duration
	retentionDays   int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCapacity sets the buffer capacity for each metric series.
func WithCapacity(capacity int) StoreOption {
	return func(s *Store) {
		s.capacity = capacity
	}
}

// WithPersistence sets the persistent storage backend.
func WithPersistence(ps PersistentStore) StoreOption {
	return func(s *Store) {
		s.store = ps
	}
}

// WithPersistInterval sets how often to persist data to storage.
func WithPersistInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		s.persistInterval = d
	}
}

// WithPruneInterval sets how often to prune old data.
func WithPruneInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		s.pruneInterval = d
	}
}

// WithRetentionDays sets the data retention period.
func WithRetentionDays(days int) StoreOption {
	return func(s *Store) {
		s.retentionDays = days
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new metric store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		series:          make(map[string]*Series),
		observers:       make(map[string][]observer),
		handles:         make(map[ObserverHandle]string),
		capacity:        DefaultBufferCapacity,
		now:             time.Now,
		persistInterval: 10 * time.Second,
		pruneInterval:   time.Hour,
		retentionDays:   7,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Record adds a new data point for a metric. Never fails; an unknown series
// is created on first use. Thread-safe.
func (s *Store) Record(name string, value float64) {
	s.record(name, NewDataPointAt(s.now(), value))
}

// RecordIn records a point under the "category.name" series key. An empty
// category behaves like Record.
func (s *Store) RecordIn(category, name string, value float64) {
	s.record(SeriesKey(category, name), NewDataPointAt(s.now(), value))
}

// RecordAt adds a data point with a specific timestamp.
func (s *Store) RecordAt(name string, timestamp time.Time, value float64) {
	s.record(name, NewDataPointAt(timestamp, value))
}

// SeriesKey builds the series name from an optional category.
func SeriesKey(category, name string) string {
	if category == "" {
		return name
	}
	return category + "." + name
}

func (s *Store) record(name string, dp DataPoint) {
	if !dp.IsValid() {
		return
	}

	s.mu.Lock()
	series, ok := s.series[name]
	if !ok {
		series = &Series{
			Name:   name,
			Buffer: NewCircularBuffer(s.capacity),
		}
		s.series[name] = series
	}
	series.Buffer.Push(dp)
	series.LastUpdate = dp.Timestamp

	obs := make([]observer, len(s.observers[name]))
	copy(obs, s.observers[name])
	s.mu.Unlock()

	// Observers run synchronously on the producer's goroutine, in
	// registration order, outside the store lock so they can query back
	// into the store.
	for _, o := range obs {
		s.invoke(o, name, dp.Value)
	}
}

func (s *Store) invoke(o observer, name string, value float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("metric observer panicked", "series", name, "panic", r)
		}
	}()
	o.fn(name, value)
}

// Observe registers fn to be called for every new point on the exact series
// name. The returned handle removes the registration via Unobserve.
func (s *Store) Observe(name string, fn ObserverFunc) ObserverHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ObserverHandle(uuid.New().String())
	s.observers[name] = append(s.observers[name], observer{id: id, fn: fn})
	s.handles[id] = name
	return id
}

// Unobserve removes a previously registered observer. Unknown handles are a
// no-op.
func (s *Store) Unobserve(handle ObserverHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.handles[handle]
	if !ok {
		return
	}
	delete(s.handles, handle)

	obs := s.observers[name]
	for i, o := range obs {
		if o.id == handle {
			s.observers[name] = append(obs[:i], obs[i+1:]...)
			break
		}
	}
	if len(s.observers[name]) == 0 {
		delete(s.observers, name)
	}
}

// History returns at most limit most recent points in chronological order.
// Unknown series yield an empty result, not an error.
func (s *Store) History(name string, limit int) []DataPoint {
	s.mu.RLock()
	series, ok := s.series[name]
	s.mu.RUnlock()

	if !ok {
		return nil
	}
	return series.Buffer.GetRecent(limit)
}

// Average returns the arithmetic mean of points recorded within the trailing
// window. The second return is false when the series is unknown or no points
// fall inside the window; callers must treat that as "not evaluable".
func (s *Store) Average(name string, window time.Duration) (float64, bool) {
	s.mu.RLock()
	series, ok := s.series[name]
	s.mu.RUnlock()

	if !ok {
		return 0, false
	}

	since := s.now().Add(-window)
	points := series.Buffer.GetSince(since)
	if len(points) == 0 {
		return 0, false
	}

	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points)), true
}

// Latest returns the most recent value for a metric.
func (s *Store) Latest(name string) (float64, time.Time, bool) {
	s.mu.RLock()
	series, ok := s.series[name]
	s.mu.RUnlock()

	if !ok {
		return 0, time.Time{}, false
	}

	dp, ok := series.Buffer.Latest()
	if !ok {
		return 0, time.Time{}, false
	}
	return dp.Value, dp.Timestamp, true
}

// Snapshot returns a point-in-time copy of every series' bounded history.
// The result does not alias internal state.
func (s *Store) Snapshot() map[string][]DataPoint {
	s.mu.RLock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	s.mu.RUnlock()

	out := make(map[string][]DataPoint, len(names))
	for _, name := range names {
		s.mu.RLock()
		series := s.series[name]
		s.mu.RUnlock()
		if series == nil {
			continue
		}
		out[name] = series.Buffer.GetAll()
	}
	return out
}

// HasData returns true if there is any data for the metric.
func (s *Store) HasData(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[name]
	if !ok {
		return false
	}
	return !series.Buffer.IsEmpty()
}

// MetricNames returns all registered series names.
func (s *Store) MetricNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	return names
}

// Start begins background persistence and cleanup goroutines. A store
// without a persistence backend needs no Start.
func (s *Store) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.store != nil {
		s.wg.Add(1)
		go s.persistLoop()

		s.wg.Add(1)
		go s.pruneLoop()
	}

	return nil
}

// Stop gracefully shuts down the store. Idempotent.
func (s *Store) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// persistLoop periodically persists buffered data to storage.
func (s *Store) persistLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			// Final persist before shutdown
			s.persistAll()
			return
		case <-ticker.C:
			s.persistAll()
		}
	}
}

// persistAll persists all recently buffered data to storage.
func (s *Store) persistAll() {
	if s.store == nil {
		return
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, name := range names {
		s.mu.RLock()
		series := s.series[name]
		s.mu.RUnlock()

		if series == nil {
			continue
		}

		since := s.now().Add(-s.persistInterval - time.Second)
		points := series.Buffer.GetSince(since)

		if len(points) > 0 {
			if err := s.store.SaveBatch(ctx, name, points); err != nil {
				logger.Warn("failed to persist metric batch", "series", name, "error", err.Error())
			}
		}
	}
}

// pruneLoop periodically removes old data from storage.
func (s *Store) pruneLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.store.Prune(ctx, s.retentionDays); err != nil {
				logger.Warn("failed to prune metric storage", "error", err.Error())
			}
			cancel()
		}
	}
}
