// Package stats provides per-app and aggregated invocation statistics.
//
// This file implements AppStats which tracks the outcomes of a single app:
// - Invocation counts by terminal state
// - Duration distribution (T-Digest percentiles)
// - Captured output volume
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-callapp/internal/process"
)

// digestCompression keeps roughly 100 centroids per app (~10KB).
const digestCompression = 100

// AppStats holds statistics for one configured app.
//
// Thread-safe: the digest is not, so every method takes the mutex.
type AppStats struct {
	Name string

	mu          sync.Mutex
	states      map[process.State]int64
	total       int64
	durationSum time.Duration
	minDuration time.Duration
	maxDuration time.Duration
	digest      *tdigest.TDigest
	stdoutBytes int64
	stderrBytes int64
	lastState   process.State
	lastAt      time.Time
}

// NewAppStats creates stats for the named app.
func NewAppStats(name string) *AppStats {
	return &AppStats{
		Name:   name,
		states: make(map[process.State]int64),
		digest: tdigest.NewWithCompression(digestCompression),
	}
}

// Record adds a finished invocation.
func (s *AppStats) Record(out process.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[out.State]++
	s.total++
	s.stdoutBytes += int64(len(out.Stdout))
	s.stderrBytes += int64(len(out.Stderr))
	s.lastState = out.State
	s.lastAt = out.StartedAt.Add(out.Duration)

	// Start failures never ran, so they would drag the distribution to zero.
	if out.State == process.StateFailedToStart {
		return
	}
	d := out.Duration
	s.durationSum += d
	if s.minDuration == 0 || d < s.minDuration {
		s.minDuration = d
	}
	if d > s.maxDuration {
		s.maxDuration = d
	}
	s.digest.Add(float64(d.Nanoseconds()), 1)
}

// Summary returns a point-in-time copy of the app's statistics.
func (s *AppStats) Summary() AppSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := AppSummary{
		Name:        s.Name,
		Total:       s.total,
		States:      make(map[process.State]int64, len(s.states)),
		MinDuration: s.minDuration,
		MaxDuration: s.maxDuration,
		StdoutBytes: s.stdoutBytes,
		StderrBytes: s.stderrBytes,
		LastState:   s.lastState,
		LastAt:      s.lastAt,
	}
	for st, n := range s.states {
		sum.States[st] = n
	}

	if timed := s.digest.Count(); timed > 0 {
		sum.MeanDuration = s.durationSum / time.Duration(timed)
		sum.P50 = time.Duration(s.digest.Quantile(0.50))
		sum.P95 = time.Duration(s.digest.Quantile(0.95))
		sum.P99 = time.Duration(s.digest.Quantile(0.99))
	}
	return sum
}

// AppSummary is a snapshot of one app's statistics.
type AppSummary struct {
	Name   string
	Total  int64
	States map[process.State]int64

	MeanDuration time.Duration
	MinDuration  time.Duration
	MaxDuration  time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration

	StdoutBytes int64
	StderrBytes int64

	LastState process.State
	LastAt    time.Time
}

// Completed returns the number of invocations that ran to completion.
func (s AppSummary) Completed() int64 {
	return s.States[process.StateCompleted]
}

// TimedOut returns the number of invocations killed at their deadline.
func (s AppSummary) TimedOut() int64 {
	return s.States[process.StateTimedOut]
}

// Failed returns start failures plus unexpected errors.
func (s AppSummary) Failed() int64 {
	return s.States[process.StateFailedToStart] + s.States[process.StateUnexpectedError]
}
