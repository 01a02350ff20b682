// Package stats provides per-app and aggregated invocation statistics.
//
// This file implements Aggregator which combines every app's statistics
// with a ring of the most recent invocations:
// - Totals and state counts
// - Overall and rolling (10s, 1m, 5m) invocation rates
// - Active and peak concurrency
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/process"
	"github.com/randomizedcoder/go-callapp/internal/timeseries"
)

// DefaultRecentSize is the number of recent invocations kept for display.
const DefaultRecentSize = 50

// RecentInvocation is one entry of the recent ring.
type RecentInvocation struct {
	ID        string
	Name      string
	State     process.State
	ExitCode  *int
	PID       int
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

// AggregatedStats holds metrics across all apps.
//
// This is a snapshot - values are computed at the time of Aggregate() call.
type AggregatedStats struct {
	Timestamp time.Time
	Elapsed   time.Duration

	Active     int64
	PeakActive int64

	TotalInvocations int64
	States           map[process.State]int64

	// Rates (per second) - calculated from start time
	InvocationRate float64

	// Rolling rates (per second)
	InstantInvocationRate float64 // last 10s
	InvocationRate1m      float64
	InvocationRate5m      float64

	// Apps sorted by name.
	Apps []AppSummary

	// Recent invocations, newest first.
	Recent []RecentInvocation
}

// Completed returns the number of invocations that ran to completion.
func (s *AggregatedStats) Completed() int64 {
	return s.States[process.StateCompleted]
}

// Failed returns start failures plus unexpected errors.
func (s *AggregatedStats) Failed() int64 {
	return s.States[process.StateFailedToStart] + s.States[process.StateUnexpectedError]
}

// Aggregator aggregates stats from every app.
//
// Thread-safe: all methods can be called concurrently.
type Aggregator struct {
	mu        sync.RWMutex
	apps      map[string]*AppStats
	recent    []RecentInvocation
	next      int
	filled    bool
	startTime time.Time

	active     atomic.Int64
	peakActive atomic.Int64
	total      atomic.Int64

	rate *timeseries.RateTracker
}

// NewAggregator creates an aggregator keeping recentSize recent invocations.
func NewAggregator(recentSize int) *Aggregator {
	if recentSize <= 0 {
		recentSize = DefaultRecentSize
	}
	return &Aggregator{
		apps:      make(map[string]*AppStats),
		recent:    make([]RecentInvocation, recentSize),
		startTime: time.Now(),
		rate:      timeseries.NewRateTracker(),
	}
}

// AddApp registers an app so it shows up before its first invocation.
func (a *Aggregator) AddApp(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.apps[name]; !ok {
		a.apps[name] = NewAppStats(name)
	}
}

// Started records an invocation entering the running set.
func (a *Aggregator) Started() {
	n := a.active.Add(1)
	for {
		peak := a.peakActive.Load()
		if n <= peak || a.peakActive.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Record adds a finished invocation. Call it once per Started.
func (a *Aggregator) Record(out process.Outcome) {
	a.active.Add(-1)
	a.total.Add(1)
	a.rate.Add(1)

	a.mu.Lock()
	app, ok := a.apps[out.Name]
	if !ok {
		app = NewAppStats(out.Name)
		a.apps[out.Name] = app
	}
	a.recent[a.next] = RecentInvocation{
		ID:        out.ID,
		Name:      out.Name,
		State:     out.State,
		ExitCode:  out.ExitCode,
		PID:       out.PID,
		StartedAt: out.StartedAt,
		Duration:  out.Duration,
		Error:     out.ErrorText(),
	}
	a.next = (a.next + 1) % len(a.recent)
	if a.next == 0 {
		a.filled = true
	}
	a.mu.Unlock()

	app.Record(out)
}

// Active returns the number of running invocations.
func (a *Aggregator) Active() int64 {
	return a.active.Load()
}

// Aggregate computes aggregated statistics across all apps.
//
// The returned struct is safe to use after the call returns.
func (a *Aggregator) Aggregate() *AggregatedStats {
	now := time.Now()

	a.mu.RLock()
	apps := make([]*AppStats, 0, len(a.apps))
	for _, app := range a.apps {
		apps = append(apps, app)
	}
	recent := a.recentLocked()
	a.mu.RUnlock()

	result := &AggregatedStats{
		Timestamp:        now,
		Elapsed:          now.Sub(a.startTime),
		Active:           a.active.Load(),
		PeakActive:       a.peakActive.Load(),
		TotalInvocations: a.total.Load(),
		States:           make(map[process.State]int64),
		Apps:             make([]AppSummary, 0, len(apps)),
		Recent:           recent,
	}

	for _, app := range apps {
		sum := app.Summary()
		for st, n := range sum.States {
			result.States[st] += n
		}
		result.Apps = append(result.Apps, sum)
	}
	sort.Slice(result.Apps, func(i, j int) bool {
		return result.Apps[i].Name < result.Apps[j].Name
	})

	if secs := result.Elapsed.Seconds(); secs > 0 {
		result.InvocationRate = float64(result.TotalInvocations) / secs
	}

	a.rate.RecordSample()
	rates := a.rate.Stats()
	result.InstantInvocationRate = rates.Avg10s
	result.InvocationRate1m = rates.Avg1m
	result.InvocationRate5m = rates.Avg5m

	return result
}

// recentLocked returns the ring newest first. Caller holds a.mu.
func (a *Aggregator) recentLocked() []RecentInvocation {
	n := a.next
	if a.filled {
		n = len(a.recent)
	}
	out := make([]RecentInvocation, 0, n)
	for i := 1; i <= n; i++ {
		idx := (a.next - i + len(a.recent)) % len(a.recent)
		out = append(out, a.recent[idx])
	}
	return out
}

// StartTime returns when the aggregator was created.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// Elapsed returns the duration since the aggregator was created.
func (a *Aggregator) Elapsed() time.Duration {
	return time.Since(a.startTime)
}
