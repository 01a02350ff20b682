// Package timeseries provides time-windowed event rates.
//
// A RateTracker counts events (invocations) and computes rolling averages
// over 10s, 1m and 5m windows from a ring of periodic samples.
//
// Thread-safe: Add() uses atomic int64, Stats() acquires a read lock.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	// sampleInterval is the minimum spacing between two samples.
	sampleInterval = time.Second

	// Window durations for rolling averages
	window10s = 10 * time.Second
	window1m  = time.Minute
	window5m  = 5 * time.Minute
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample is a point-in-time snapshot of the cumulative count.
type sample struct {
	timestamp time.Time
	count     int64
}

// RateTracker tracks a cumulative event count and computes rolling rates.
//
// Usage:
//
//	tracker := NewRateTracker()
//	tracker.Add(1)          // per finished invocation (lock-free)
//	tracker.RecordSample()  // on every refresh; samples closer than 1s are skipped
//	stats := tracker.Stats()
type RateTracker struct {
	total atomic.Int64

	samples  []sample
	writeIdx int // Next write position once the ring is full
	last     time.Time
	mu       sync.RWMutex

	startTime time.Time
	clock     Clock
}

// RateStats contains the rolling rates at a point in time, in events/sec.
type RateStats struct {
	Total int64

	Avg10s float64
	Avg1m  float64
	Avg5m  float64

	// AvgOverall is the rate since tracking started.
	AvgOverall float64
}

// NewRateTracker creates a tracker using the wall clock.
func NewRateTracker() *RateTracker {
	return NewRateTrackerWithClock(realClock{})
}

// NewRateTrackerWithClock creates a tracker with a custom clock for testing.
func NewRateTrackerWithClock(clock Clock) *RateTracker {
	now := clock.Now()
	t := &RateTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		last:      now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Add adds n events. Non-positive n is ignored.
func (t *RateTracker) Add(n int64) {
	if n > 0 {
		t.total.Add(n)
	}
}

// RecordSample snapshots the current count. It is a no-op when the previous
// sample is less than a second old, so callers may invoke it on every
// refresh without shrinking the ring's time span.
func (t *RateTracker) RecordSample() {
	now := t.clock.Now()
	count := t.total.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.last) < sampleInterval {
		return
	}
	t.last = now

	s := sample{timestamp: now, count: count}
	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// Stats computes the current rates. With less history than a window, the
// oldest sample is used.
func (t *RateTracker) Stats() RateStats {
	now := t.clock.Now()
	count := t.total.Load()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: count}

	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		stats.AvgOverall = float64(count) / elapsed
	}

	stats.Avg10s = t.avgOverWindow(now, count, window10s)
	stats.Avg1m = t.avgOverWindow(now, count, window1m)
	stats.Avg5m = t.avgOverWindow(now, count, window5m)

	return stats
}

// avgOverWindow returns events/sec since the sample closest to now-window.
// Caller holds mu.
func (t *RateTracker) avgOverWindow(now time.Time, count int64, window time.Duration) float64 {
	target := now.Add(-window)

	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		diff := target.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}

	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(count-best.count) / elapsed
}

// oldestSample returns the oldest sample in the ring. Caller holds mu.
func (t *RateTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *RateTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Store(0)
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.last = now
	t.startTime = now
}

// SampleCount returns the number of samples in the ring.
func (t *RateTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
