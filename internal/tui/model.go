package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-callapp/internal/launcher"
	"github.com/randomizedcoder/go-callapp/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats *stats.AggregatedStats
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	service       string
	listenAddr    string
	metricsAddr   string
	maxConcurrent int

	// Current state
	stats        *stats.AggregatedStats
	running      []launcher.Running
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	statsSource    StatsSource
	inFlightSource InFlightSource

	quitting bool
}

// StatsSource provides aggregated statistics.
type StatsSource interface {
	Aggregate() *stats.AggregatedStats
}

// InFlightSource lists running invocations. Optional.
type InFlightSource interface {
	InFlight() []launcher.Running
}

// Config holds TUI configuration.
type Config struct {
	Service        string
	ListenAddr     string
	MetricsAddr    string
	MaxConcurrent  int
	StatsSource    StatsSource
	InFlightSource InFlightSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		service:        cfg.Service,
		listenAddr:     cfg.ListenAddr,
		metricsAddr:    cfg.MetricsAddr,
		maxConcurrent:  cfg.MaxConcurrent,
		statsSource:    cfg.StatsSource,
		inFlightSource: cfg.InFlightSource,
		startTime:      time.Now(),
		lastUpdate:     time.Now(),
		width:          80,
		height:         24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m.refresh(), nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m.refresh(), tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) refresh() Model {
	if m.statsSource != nil {
		m.stats = m.statsSource.Aggregate()
	}
	if m.inFlightSource != nil {
		m.running = m.inFlightSource.InFlight()
	}
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Active returns the current number of running invocations.
func (m Model) Active() int {
	if m.stats == nil {
		return len(m.running)
	}
	return int(m.stats.Active)
}

// Utilization returns active/max_concurrent (0 when unbounded).
func (m Model) Utilization() float64 {
	if m.maxConcurrent <= 0 {
		return 0
	}
	return float64(m.Active()) / float64(m.maxConcurrent)
}

// FailureRate returns the share of finished invocations that did not complete.
func (m Model) FailureRate() float64 {
	if m.stats == nil || m.stats.TotalInvocations == 0 {
		return 0
	}
	return 1 - float64(m.stats.Completed())/float64(m.stats.TotalInvocations)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, stats *stats.AggregatedStats) {
	if p != nil {
		p.Send(StatsMsg{Stats: stats})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
