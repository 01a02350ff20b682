package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-callapp/internal/launcher"
	"github.com/randomizedcoder/go-callapp/internal/process"
	"github.com/randomizedcoder/go-callapp/internal/stats"
)

// =============================================================================
// Mock Sources
// =============================================================================

type mockStatsSource struct {
	stats *stats.AggregatedStats
	calls int
}

func (m *mockStatsSource) Aggregate() *stats.AggregatedStats {
	m.calls++
	return m.stats
}

type mockInFlight struct {
	running []launcher.Running
}

func (m *mockInFlight) InFlight() []launcher.Running {
	return m.running
}

func sampleStats() *stats.AggregatedStats {
	agg := stats.NewAggregator(8)
	code := 0
	start := time.Now().Add(-time.Minute)

	agg.Started()
	agg.Record(process.Outcome{ID: "1", Name: "report", State: process.StateCompleted, ExitCode: &code, StartedAt: start, Duration: 120 * time.Millisecond})
	agg.Started()
	agg.Record(process.Outcome{ID: "2", Name: "cleanup", State: process.StateFailedToStart, StartupError: "exec: not found", StartedAt: start})
	agg.Started()

	return agg.Aggregate()
}

// =============================================================================
// Tests: New
// =============================================================================

func TestNew(t *testing.T) {
	model := New(Config{
		Service:       "billing",
		ListenAddr:    "0.0.0.0:5000",
		MetricsAddr:   "localhost:17091",
		MaxConcurrent: 4,
	})

	if model.service != "billing" {
		t.Errorf("service = %q", model.service)
	}
	if model.maxConcurrent != 4 {
		t.Errorf("maxConcurrent = %d", model.maxConcurrent)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
}

// =============================================================================
// Tests: Update
// =============================================================================

func TestModel_Init(t *testing.T) {
	if New(Config{}).Init() == nil {
		t.Error("Init() should return a tick command")
	}
}

func TestModel_Update_Keys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"esc", true},
		{"ctrl+c", true},
		{"d", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var msg tea.KeyMsg
			switch tt.key {
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			}

			updated, _ := New(Config{}).Update(msg)
			if got := updated.(Model).quitting; got != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", got, tt.wantQuit)
			}
		})
	}
}

func TestModel_Update_ToggleDetails(t *testing.T) {
	m := New(Config{})
	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}

	updated, _ := m.Update(key)
	if !updated.(Model).detailedView {
		t.Fatal("d should enable detailed view")
	}
	updated, _ = updated.Update(key)
	if updated.(Model).detailedView {
		t.Error("second d should disable detailed view")
	}
}

func TestModel_Update_Tick(t *testing.T) {
	src := &mockStatsSource{stats: sampleStats()}
	fl := &mockInFlight{running: []launcher.Running{{ID: "A", Name: "report", PID: 42}}}
	m := New(Config{StatsSource: src, InFlightSource: fl})

	updated, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}

	got := updated.(Model)
	if got.stats == nil || src.calls != 1 {
		t.Fatalf("stats not fetched (calls=%d)", src.calls)
	}
	if len(got.running) != 1 {
		t.Errorf("running = %v", got.running)
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	updated, _ := New(Config{}).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	got := updated.(Model)
	if got.width != 120 || got.height != 40 {
		t.Errorf("size = %dx%d", got.width, got.height)
	}
}

func TestModel_Update_StatsAndQuit(t *testing.T) {
	s := sampleStats()
	updated, _ := New(Config{}).Update(StatsMsg{Stats: s})
	if updated.(Model).stats != s {
		t.Error("StatsMsg not applied")
	}

	updated, _ = updated.Update(QuitMsg{})
	if updated.View() != "" {
		t.Error("View() should be empty after quit")
	}
}

// =============================================================================
// Tests: Accessors
// =============================================================================

func TestModel_Accessors(t *testing.T) {
	m := New(Config{MaxConcurrent: 4})
	if m.Active() != 0 || m.Utilization() != 0 || m.FailureRate() != 0 {
		t.Error("empty model should report zeros")
	}

	m.stats = sampleStats()
	if m.Active() != 1 {
		t.Errorf("Active = %d, want 1", m.Active())
	}
	if m.Utilization() != 0.25 {
		t.Errorf("Utilization = %v, want 0.25", m.Utilization())
	}
	if m.FailureRate() != 0.5 {
		t.Errorf("FailureRate = %v, want 0.5", m.FailureRate())
	}

	if New(Config{}).Utilization() != 0 {
		t.Error("unbounded utilization should be 0")
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View_Summary(t *testing.T) {
	m := New(Config{Service: "billing", MetricsAddr: "localhost:17091", MaxConcurrent: 4})
	m.stats = sampleStats()
	m.width = 120

	view := m.View()
	for _, want := range []string{"billing", "Concurrency", "Invocations", "Applications", "report", "cleanup", "metrics http://localhost:17091/metrics"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary view missing %q", want)
		}
	}
}

func TestModel_View_NoStats(t *testing.T) {
	view := New(Config{}).View()
	if !strings.Contains(view, "go-callapp") || !strings.Contains(view, "no concurrency limit") {
		t.Errorf("view = %q", view)
	}
}

func TestModel_View_Detailed(t *testing.T) {
	m := New(Config{})
	m.width = 140
	m.detailedView = true
	m.stats = sampleStats()
	m.running = []launcher.Running{{ID: "01HZXRUN", Name: "report", PID: 4242, StartedAt: time.Now(), Detached: true}}

	view := m.View()
	for _, want := range []string{"Running", "01HZXRUN", "4242", "detached", "Recent", "failed_to_start", "exec: not found"} {
		if !strings.Contains(view, want) {
			t.Errorf("detailed view missing %q", want)
		}
	}
}

func TestModel_View_DetailedEmpty(t *testing.T) {
	m := New(Config{})
	m.detailedView = true

	view := m.View()
	if !strings.Contains(view, "nothing running") || !strings.Contains(view, "no invocations yet") {
		t.Errorf("view = %q", view)
	}
}

// =============================================================================
// Tests: Styles and Helpers
// =============================================================================

func TestGetStateLabel(t *testing.T) {
	for _, st := range process.TerminalStates() {
		if !strings.Contains(GetStateLabel(st), st.String()) {
			t.Errorf("GetStateLabel(%v) missing name", st)
		}
	}
}

func TestGetConcurrencyLabel(t *testing.T) {
	tests := []struct {
		active, limit int
		want          string
	}{
		{3, 0, "Unbounded"},
		{1, 10, "OK"},
		{8, 10, "Near limit"},
		{10, 10, "At limit"},
	}
	for _, tt := range tests {
		if got := GetConcurrencyLabel(tt.active, tt.limit); !strings.Contains(got, tt.want) {
			t.Errorf("GetConcurrencyLabel(%d, %d) = %q, want %q", tt.active, tt.limit, got, tt.want)
		}
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		progress float64
		want     string
	}{
		{0, "0%"},
		{0.5, "50%"},
		{1.5, "150%"},
	}
	for _, tt := range tests {
		if got := RenderProgressBar(tt.progress, 5); !strings.Contains(got, tt.want) {
			t.Errorf("RenderProgressBar(%v) = %q", tt.progress, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolongname", 5, "tool…"},
		{"été-report", 4, "été…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
