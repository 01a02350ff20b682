package stats

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/process"
)

// =============================================================================
// Test Helpers
// =============================================================================

func outcome(name string, state process.State, d time.Duration) process.Outcome {
	out := process.Outcome{
		ID:        fmt.Sprintf("%s-%d", name, d),
		Name:      name,
		State:     state,
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Duration:  d,
	}
	if state == process.StateCompleted {
		code := 0
		out.ExitCode = &code
	}
	return out
}

// =============================================================================
// Tests: AppStats
// =============================================================================

func TestAppStats_Record(t *testing.T) {
	s := NewAppStats("report")

	for i := 1; i <= 100; i++ {
		out := outcome("report", process.StateCompleted, time.Duration(i)*time.Millisecond)
		out.Stdout = "abc"
		s.Record(out)
	}
	s.Record(outcome("report", process.StateTimedOut, 5*time.Second))
	s.Record(outcome("report", process.StateFailedToStart, 0))

	sum := s.Summary()

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"total", sum.Total, 102},
		{"completed", sum.Completed(), 100},
		{"timed out", sum.TimedOut(), 1},
		{"failed", sum.Failed(), 1},
		{"stdout bytes", sum.StdoutBytes, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}

	if sum.MinDuration != time.Millisecond {
		t.Errorf("MinDuration = %v, want 1ms (start failures excluded)", sum.MinDuration)
	}
	if sum.MaxDuration != 5*time.Second {
		t.Errorf("MaxDuration = %v, want 5s", sum.MaxDuration)
	}
	if sum.LastState != process.StateFailedToStart {
		t.Errorf("LastState = %v", sum.LastState)
	}
}

func TestAppStats_Percentiles(t *testing.T) {
	s := NewAppStats("p")
	for i := 1; i <= 1000; i++ {
		s.Record(outcome("p", process.StateCompleted, time.Duration(i)*time.Millisecond))
	}
	sum := s.Summary()

	// T-Digest is approximate; allow 2% slack.
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"p50", sum.P50, 500 * time.Millisecond},
		{"p95", sum.P95, 950 * time.Millisecond},
		{"p99", sum.P99, 990 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := tt.got - tt.want
			if diff < 0 {
				diff = -diff
			}
			if diff > 20*time.Millisecond {
				t.Errorf("%s = %v, want ~%v", tt.name, tt.got, tt.want)
			}
		})
	}
	if sum.P50 > sum.P95 || sum.P95 > sum.P99 {
		t.Errorf("percentiles not ordered: %v %v %v", sum.P50, sum.P95, sum.P99)
	}
}

func TestAppStats_Empty(t *testing.T) {
	sum := NewAppStats("none").Summary()
	if sum.Total != 0 || sum.P50 != 0 || sum.MeanDuration != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestAppStats_SummaryIsCopy(t *testing.T) {
	s := NewAppStats("x")
	s.Record(outcome("x", process.StateCompleted, time.Second))

	sum := s.Summary()
	sum.States[process.StateCompleted] = 42

	if s.Summary().Completed() != 1 {
		t.Error("summary shares state with AppStats")
	}
}

// =============================================================================
// Tests: Aggregator
// =============================================================================

func TestAggregator_Aggregate(t *testing.T) {
	a := NewAggregator(10)
	a.AddApp("idle")

	for i := 0; i < 3; i++ {
		a.Started()
	}
	a.Record(outcome("b", process.StateCompleted, time.Second))
	a.Record(outcome("a", process.StateTimedOut, 2*time.Second))

	got := a.Aggregate()

	if got.Active != 1 {
		t.Errorf("Active = %d, want 1", got.Active)
	}
	if got.PeakActive != 3 {
		t.Errorf("PeakActive = %d, want 3", got.PeakActive)
	}
	if got.TotalInvocations != 2 {
		t.Errorf("TotalInvocations = %d, want 2", got.TotalInvocations)
	}
	if got.Completed() != 1 || got.States[process.StateTimedOut] != 1 {
		t.Errorf("States = %v", got.States)
	}

	names := make([]string, 0, len(got.Apps))
	for _, app := range got.Apps {
		names = append(names, app.Name)
	}
	if strings.Join(names, ",") != "a,b,idle" {
		t.Errorf("Apps = %v, want sorted a,b,idle", names)
	}

	if len(got.Recent) != 2 || got.Recent[0].Name != "a" {
		t.Errorf("Recent = %+v, want newest first", got.Recent)
	}
}

func TestAggregator_Rates(t *testing.T) {
	agg := NewAggregator(4)

	empty := agg.Aggregate()
	if empty.InstantInvocationRate != 0 || empty.InvocationRate1m != 0 {
		t.Errorf("rates before any invocation = %v, %v", empty.InstantInvocationRate, empty.InvocationRate1m)
	}

	for i := 0; i < 3; i++ {
		agg.Started()
		agg.Record(outcome("a", process.StateCompleted, time.Millisecond))
	}
	time.Sleep(10 * time.Millisecond)

	s := agg.Aggregate()
	if s.InvocationRate <= 0 || s.InstantInvocationRate <= 0 || s.InvocationRate1m <= 0 || s.InvocationRate5m <= 0 {
		t.Errorf("rates = overall %v, 10s %v, 1m %v, 5m %v; want all > 0",
			s.InvocationRate, s.InstantInvocationRate, s.InvocationRate1m, s.InvocationRate5m)
	}
}

func TestAggregator_RecentRing(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		records int
		want    int
		newest  string
	}{
		{"empty", 4, 0, 0, ""},
		{"partial", 4, 3, 3, "app2"},
		{"exact", 4, 4, 4, "app3"},
		{"wrapped", 4, 10, 4, "app9"},
		{"default size", 0, 60, DefaultRecentSize, "app59"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator(tt.size)
			for i := 0; i < tt.records; i++ {
				a.Started()
				a.Record(outcome(fmt.Sprintf("app%d", i), process.StateCompleted, time.Millisecond))
			}

			recent := a.Aggregate().Recent
			if len(recent) != tt.want {
				t.Fatalf("len(Recent) = %d, want %d", len(recent), tt.want)
			}
			if tt.want > 0 && recent[0].Name != tt.newest {
				t.Errorf("newest = %q, want %q", recent[0].Name, tt.newest)
			}
		})
	}
}

func TestAggregator_RecentCarriesError(t *testing.T) {
	a := NewAggregator(2)
	out := outcome("bad", process.StateFailedToStart, 0)
	out.StartupError = "exec: not found"
	a.Started()
	a.Record(out)

	if got := a.Aggregate().Recent[0].Error; got != "exec: not found" {
		t.Errorf("Error = %q", got)
	}
}

func TestAggregator_Concurrent(t *testing.T) {
	a := NewAggregator(16)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Started()
			a.Record(outcome(fmt.Sprintf("app%d", i%3), process.StateCompleted, time.Millisecond))
			_ = a.Aggregate()
		}(i)
	}
	wg.Wait()

	got := a.Aggregate()
	if got.TotalInvocations != 50 || got.Active != 0 {
		t.Errorf("Total = %d Active = %d", got.TotalInvocations, got.Active)
	}
	if len(got.Apps) != 3 {
		t.Errorf("len(Apps) = %d, want 3", len(got.Apps))
	}
}

// =============================================================================
// Tests: Exit Summary
// =============================================================================

func TestFormatExitSummary(t *testing.T) {
	a := NewAggregator(4)
	a.Started()
	a.Record(outcome("report", process.StateCompleted, 120*time.Millisecond))
	a.Started()
	a.Record(outcome("cleanup", process.StateTimedOut, time.Second))

	out := FormatExitSummary(a.Aggregate(), SummaryConfig{
		Service:     "billing",
		Duration:    90 * time.Second,
		ListenAddr:  "0.0.0.0:5000",
		MetricsAddr: "0.0.0.0:17091",
		Rejected:    map[string]int64{"unknown_app": 2},
	})

	for _, want := range []string{
		"go-callapp Exit Summary",
		"Service:                billing",
		"Run Duration:           00:01:30",
		"completed",
		"timed_out",
		"report",
		"cleanup",
		"unknown_app",
		"http://0.0.0.0:17091/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
}

func TestFormatExitSummary_NilStats(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{Duration: time.Minute})
	if !strings.Contains(out, "No invocations were recorded") {
		t.Errorf("basic summary = %q", out)
	}
}

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one minute", time.Minute, "00:01:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"small", 123, "123"},
		{"1.5K", 1500, "1.5K"},
		{"1M", 1000000, "1.0M"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.n); got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1500, "1.50 KB"},
		{2_500_000, "2.50 MB"},
		{3_000_000_000, "3.00 GB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 ms"},
		{500 * time.Microsecond, "500 µs"},
		{1500 * time.Millisecond, "1500 ms"},
	}

	for _, tt := range tests {
		if got := FormatMs(tt.d); got != tt.want {
			t.Errorf("FormatMs(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.5, "0.50/s"},
		{12.34, "12.3/s"},
		{2500, "2.5K/s"},
	}

	for _, tt := range tests {
		if got := FormatRate(tt.rate); got != tt.want {
			t.Errorf("FormatRate(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := map[int]string{0: "(clean)", 127: "(not found)", 137: "(SIGKILL)", 42: ""}
	for code, want := range tests {
		if got := ExitCodeLabel(code); got != want {
			t.Errorf("ExitCodeLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
