package metrics

import (
	"math"
	"sync"
	"time"
)

// DefaultBufferCapacity bounds the per-series history when no capacity is configured.
const DefaultBufferCapacity = 1000

// DataPoint is a single measurement in a series.
type DataPoint struct {
	Timestamp time.Time
	Value     float64
}

// IsValid reports whether the point can be stored. Points with a zero
// timestamp or a NaN/Inf value are rejected at the buffer boundary.
func (dp DataPoint) IsValid() bool {
	return !dp.Timestamp.IsZero() && !math.IsNaN(dp.Value) && !math.IsInf(dp.Value, 0)
}

// NewDataPoint stamps a value with the current time.
func NewDataPoint(value float64) DataPoint {
	return DataPoint{Timestamp: time.Now(), Value: value}
}

// NewDataPointAt builds a point with an explicit timestamp.
func NewDataPointAt(timestamp time.Time, value float64) DataPoint {
	return DataPoint{Timestamp: timestamp, Value: value}
}

// CircularBuffer holds the bounded history of one series. Writes evict the
// oldest point once the buffer is full. Safe for concurrent use.
type CircularBuffer struct {
	mu       sync.RWMutex
	points   []DataPoint
	capacity int
	next     int // next write index
	count    int
}

// NewCircularBuffer allocates a buffer holding at most capacity points.
// Non-positive capacities fall back to DefaultBufferCapacity.
func NewCircularBuffer(capacity int) *CircularBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &CircularBuffer{
		points:   make([]DataPoint, capacity),
		capacity: capacity,
	}
}

// Push appends a point, dropping it silently when invalid.
func (b *CircularBuffer) Push(dp DataPoint) {
	if !dp.IsValid() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.points[b.next] = dp
	b.next = (b.next + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// oldest returns the index of the oldest stored point. Caller holds the lock.
func (b *CircularBuffer) oldest() int {
	return (b.next - b.count + b.capacity) % b.capacity
}

// GetRecent returns up to n of the newest points in chronological order.
func (b *CircularBuffer) GetRecent(n int) []DataPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]DataPoint, n)
	start := (b.next - n + b.capacity) % b.capacity
	for i := range result {
		result[i] = b.points[(start+i)%b.capacity]
	}
	return result
}

// GetSince returns every point at or after since, in chronological order.
func (b *CircularBuffer) GetSince(since time.Time) []DataPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []DataPoint
	start := b.oldest()
	for i := 0; i < b.count; i++ {
		dp := b.points[(start+i)%b.capacity]
		if !dp.Timestamp.Before(since) {
			result = append(result, dp)
		}
	}
	return result
}

// GetAll copies out the full history in chronological order.
func (b *CircularBuffer) GetAll() []DataPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	result := make([]DataPoint, b.count)
	start := b.oldest()
	for i := range result {
		result[i] = b.points[(start+i)%b.capacity]
	}
	return result
}

// Latest returns the newest point, or false when the buffer is empty.
func (b *CircularBuffer) Latest() (DataPoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return DataPoint{}, false
	}
	return b.points[(b.next-1+b.capacity)%b.capacity], true
}

// Len returns the number of stored points.
func (b *CircularBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *CircularBuffer) Cap() int {
	return b.capacity
}

// Clear drops all stored points.
func (b *CircularBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next = 0
	b.count = 0
	for i := range b.points {
		b.points[i] = DataPoint{}
	}
}

// IsEmpty reports whether no points are stored.
func (b *CircularBuffer) IsEmpty() bool {
	return b.Len() == 0
}

// IsFull reports whether the buffer has reached capacity.
func (b *CircularBuffer) IsFull() bool {
	return b.Len() == b.capacity
}
