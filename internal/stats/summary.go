package stats

import (
	"fmt"
	"strings"
	"time"
)

// SummaryConfig holds run-level fields for summary formatting.
type SummaryConfig struct {
	// RunID identifies the run
	RunID string

	// Duration is the total run duration
	Duration time.Duration

	// ExitCode is the benchmark process exit code (-1 if never spawned)
	ExitCode int

	// Completed reports whether the run reached the completed state
	Completed bool

	// Error is the fatal run error, if any
	Error string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string
}

// FormatRunSummary formats a run's artifact statistics for display when the
// run reaches a terminal state.
func FormatRunSummary(s Summary, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════\n")
	b.WriteString("                     avatar-walrus Run Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════\n")
	fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.Completed {
		b.WriteString("Result:                 completed\n")
	} else if cfg.Error != "" {
		fmt.Fprintf(&b, "Result:                 failed (%s)\n", firstLine(cfg.Error))
	} else {
		b.WriteString("Result:                 stopped\n")
	}
	if cfg.ExitCode >= 0 {
		fmt.Fprintf(&b, "Benchmark Exit Code:    %d %s\n", cfg.ExitCode, exitCodeLabel(cfg.ExitCode))
	}
	b.WriteString("\n")

	b.WriteString("Artifact Activity:\n")
	fmt.Fprintf(&b, "  Publishes:            %d\n", s.Publishes)
	fmt.Fprintf(&b, "  Stale Refreshes:      %d\n", s.StaleRefresh)
	fmt.Fprintf(&b, "  Watch Errors:         %d\n", s.WatchErrors)
	fmt.Fprintf(&b, "  Peak Size:            %s\n", FormatBytes(s.PeakSize))
	fmt.Fprintf(&b, "  Final Size:           %s\n", FormatBytes(s.FinalSize))
	b.WriteString("\n")

	if s.IntervalP50 > 0 || s.IntervalP95 > 0 {
		b.WriteString("Publish Interval:\n")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(s.IntervalP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(s.IntervalP95))
		b.WriteString("\n")
	}

	if s.SizeDeltaP50 > 0 || s.SizeDeltaP95 > 0 {
		b.WriteString("Growth per Publish:\n")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatBytes(s.SizeDeltaP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatBytes(s.SizeDeltaP95))
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// firstLine truncates a multi-line error message to its first line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
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
