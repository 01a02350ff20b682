// Package stats provides per-app and aggregated invocation statistics.
//
// This file implements the exit summary formatter which displays
// statistics at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-callapp/internal/process"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Service is the service name from the apps file
	Service string

	// Duration is the total run duration
	Duration time.Duration

	// ListenAddr is the HTTP front end address
	ListenAddr string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Rejected is a map of rejection reasons to counts
	Rejected map[string]int64
}

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatExitSummary formats aggregated stats for display at program exit.
//
// The summary includes:
// - Run information
// - Outcome counts by state
// - Per-app durations with percentiles
// - Rejected requests
func FormatExitSummary(stats *AggregatedStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                           go-callapp Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	// Run info
	if cfg.Service != "" {
		fmt.Fprintf(&b, "Service:                %s\n", cfg.Service)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Invocations:            %s  (%s)\n", FormatNumber(stats.TotalInvocations), FormatRate(stats.InvocationRate))
	fmt.Fprintf(&b, "Peak Concurrent:        %d\n\n", stats.PeakActive)

	// Outcomes
	if len(stats.States) > 0 {
		section(&b, "Outcomes")
		for _, st := range process.TerminalStates() {
			n := stats.States[st]
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-20s %8d (%d%%)\n", st, n, n*100/stats.TotalInvocations)
		}
		b.WriteString("\n")
	}

	// Per-app
	if len(stats.Apps) > 0 {
		section(&b, "Applications")
		fmt.Fprintf(&b, "  %-16s %8s %8s %8s %8s %10s %10s %10s\n",
			"App", "Total", "OK", "Timeout", "Failed", "P50", "P95", "P99")
		b.WriteString("  " + strings.Repeat("─", 84) + "\n")
		for _, app := range stats.Apps {
			fmt.Fprintf(&b, "  %-16s %8d %8d %8d %8d %10s %10s %10s\n",
				app.Name,
				app.Total,
				app.Completed(),
				app.TimedOut(),
				app.Failed(),
				FormatMs(app.P50),
				FormatMs(app.P95),
				FormatMs(app.P99),
			)
		}
		b.WriteString("\n")
	}

	// Rejected requests
	if len(cfg.Rejected) > 0 {
		section(&b, "Rejected Requests")

		reasons := make([]string, 0, len(cfg.Rejected))
		for reason := range cfg.Rejected {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		for _, reason := range reasons {
			fmt.Fprintf(&b, "  %-20s %8d\n", reason, cfg.Rejected[reason])
		}
		b.WriteString("\n")
	}

	writeEndpoints(&b, cfg)
	b.WriteString(heavyRule)

	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                           go-callapp Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))
	b.WriteString("(No invocations were recorded)\n\n")

	writeEndpoints(&b, cfg)
	b.WriteString(heavyRule)

	return b.String()
}

func section(b *strings.Builder, title string) {
	pad := (79 - len(title)) / 2
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

func writeEndpoints(b *strings.Builder, cfg SummaryConfig) {
	if cfg.ListenAddr != "" {
		fmt.Fprintf(b, "Launch endpoint was:  http://%s/\n", cfg.ListenAddr)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
}

// ExitCodeLabel returns a human-readable label for common exit codes.
func ExitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
