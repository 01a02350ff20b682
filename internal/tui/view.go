package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-callapp/internal/process"
	"github.com/randomizedcoder/go-callapp/internal/stats"
)

// maxRecentRows caps the recent invocations list.
const maxRecentRows = 10

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderConcurrency())

	if m.stats != nil {
		sections = append(sections, m.renderTotals())
		if len(m.stats.Apps) > 0 {
			sections = append(sections, m.renderAppTable())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders running and recent invocations.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderRunning())
	sections = append(sections, m.renderRecent())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	service := m.service
	if service == "" {
		service = "go-callapp"
	}

	header := fmt.Sprintf(
		" %s │ %s │ Running: %d │ Elapsed: %s ",
		service,
		GetConcurrencyLabel(m.Active(), m.maxConcurrent),
		m.Active(),
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Concurrency Section
// =============================================================================

func (m Model) renderConcurrency() string {
	var body string
	if m.maxConcurrent > 0 {
		barWidth := m.width - 30
		if barWidth < 20 {
			barWidth = 20
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			RenderProgressBar(m.Utilization(), barWidth),
			mutedStyle.Render(fmt.Sprintf("%d of %d slots in use", m.Active(), m.maxConcurrent)),
		)
	} else {
		body = mutedStyle.Render(fmt.Sprintf("%d running (no concurrency limit)", m.Active()))
	}

	peak := int64(0)
	if m.stats != nil {
		peak = m.stats.PeakActive
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Concurrency"),
		body,
		dimStyle.Render(fmt.Sprintf("peak %d", peak)),
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Totals
// =============================================================================

func (m Model) renderTotals() string {
	s := m.stats

	failureRate := m.FailureRate()
	rows := []string{
		RenderKeyValue("Invocations", fmt.Sprintf("%s  (%s overall)",
			stats.FormatNumber(s.TotalInvocations),
			stats.FormatRate(s.InvocationRate),
		)),
		RenderKeyValue("Rate 10s/1m/5m", fmt.Sprintf("%s / %s / %s",
			stats.FormatRate(s.InstantInvocationRate),
			stats.FormatRate(s.InvocationRate1m),
			stats.FormatRate(s.InvocationRate5m),
		)),
		RenderKeyValue("Completed", stats.FormatNumber(s.Completed())),
		RenderKeyValue("Timed out", stats.FormatNumber(s.States[process.StateTimedOut])),
		RenderKeyValue("Cancelled", stats.FormatNumber(s.States[process.StateCancelled])),
		RenderKeyValue("Failed", stats.FormatNumber(s.Failed())),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Failure rate:"),
			GetFailureRateStyle(failureRate).Render(fmt.Sprintf("%.1f%%", failureRate*100)),
		),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Invocations")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Per-App Table
// =============================================================================

func (m Model) renderAppTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-16s %7s %7s %7s %7s %9s %9s %-12s",
		"App", "Total", "OK", "Timeout", "Failed", "P50", "P95", "Last"))

	rows := []string{sectionHeaderStyle.Render("Applications"), header}
	for i, app := range m.stats.Apps {
		last := "-"
		if app.Total > 0 {
			last = GetStateLabel(app.LastState)
		}
		line := fmt.Sprintf("%-16s %7d %7d %7d %7d %9s %9s ",
			truncate(app.Name, 16),
			app.Total,
			app.Completed(),
			app.TimedOut(),
			app.Failed(),
			stats.FormatMs(app.P50),
			stats.FormatMs(app.P95),
		)
		rows = append(rows, rowStyle(i).Render(line)+last)
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Detailed View Sections
// =============================================================================

func (m Model) renderRunning() string {
	rows := []string{sectionHeaderStyle.Render("Running")}
	if len(m.running) == 0 {
		rows = append(rows, dimStyle.Render("nothing running"))
	}
	for i, r := range m.running {
		mode := "wait"
		if r.Detached {
			mode = "detached"
		}
		line := fmt.Sprintf("%-26s %-16s pid %-7d %-8s %s",
			r.ID,
			truncate(r.Name, 16),
			r.PID,
			mode,
			stats.FormatDuration(time.Since(r.StartedAt)),
		)
		rows = append(rows, rowStyle(i).Render(line))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderRecent() string {
	rows := []string{sectionHeaderStyle.Render("Recent")}
	if m.stats == nil || len(m.stats.Recent) == 0 {
		rows = append(rows, dimStyle.Render("no invocations yet"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	recent := m.stats.Recent
	if len(recent) > maxRecentRows {
		recent = recent[:maxRecentRows]
	}
	for i, r := range recent {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		line := fmt.Sprintf("%s %-16s exit %-4s %10s ",
			r.StartedAt.Format("15:04:05"),
			truncate(r.Name, 16),
			exit,
			stats.FormatMs(r.Duration),
		)
		entry := rowStyle(i).Render(line) + GetStateLabel(r.State)
		if r.Error != "" {
			entry += " " + valueBadStyle.Render(truncate(r.Error, 40))
		}
		rows = append(rows, entry)
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	var parts []string
	if m.listenAddr != "" {
		parts = append(parts, "http://"+m.listenAddr)
	}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics http://"+m.metricsAddr+"/metrics")
	}
	parts = append(parts, "q quit", "d details", "r refresh")

	return footerStyle.Render(strings.Join(parts, " │ "))
}

// =============================================================================
// Helpers
// =============================================================================

func rowStyle(i int) lipgloss.Style {
	if i%2 == 0 {
		return tableRowEvenStyle
	}
	return tableRowOddStyle
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
