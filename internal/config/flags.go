package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `avatar-walrus - WAL benchmark demo with process orchestration

Usage:
  avatar-walrus [flags]

HTTP Flags:
`)
		printFlagCategory([]string{"listen"})

		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		printFlagCategory([]string{"workdir", "benchmark-cmd", "visualizer-cmd"})

		fmt.Fprintf(os.Stderr, "\nArtifacts:\n")
		printFlagCategory([]string{"result-file", "artifact-file", "artifact-public-path"})

		fmt.Fprintf(os.Stderr, "\nTiming:\n")
		printFlagCategory([]string{"poll-interval", "stale-refresh-every", "grace-delay", "terminate-grace"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a walrus checkout in the current directory
  avatar-walrus

  # Pipeline self-test with shell built-ins instead of cargo/python
  avatar-walrus --check -workdir /tmp/walbench

  # Custom benchmark invocation
  avatar-walrus -workdir ~/src/walrus -benchmark-cmd "WALRUS_DURATION=30s cargo test --release --test multithreaded_benchmark_writes"

`)
	}

	// HTTP
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Demo API listen address")

	// Commands
	flag.StringVar(&cfg.Workdir, "workdir", cfg.Workdir, "Working directory for both commands and artifact files")
	flag.StringVar(&cfg.BenchmarkCommand, "benchmark-cmd", cfg.BenchmarkCommand, "Shell command that runs the benchmark")
	flag.StringVar(&cfg.VisualizerCommand, "visualizer-cmd", cfg.VisualizerCommand, "Shell command that renders the throughput chart")

	// Artifacts
	flag.StringVar(&cfg.ResultFile, "result-file", cfg.ResultFile, "CSV file the benchmark writes (relative to workdir)")
	flag.StringVar(&cfg.ArtifactFile, "artifact-file", cfg.ArtifactFile, "Image file the visualizer rewrites (relative to workdir)")
	flag.StringVar(&cfg.ArtifactPublicPath, "artifact-public-path", cfg.ArtifactPublicPath, "Public URL path the artifact is served under")

	// Timing
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Artifact poll interval")
	flag.IntVar(&cfg.StaleRefreshEvery, "stale-refresh-every", cfg.StaleRefreshEvery, "Republish the artifact every N unchanged polls (cache bust)")
	flag.DurationVar(&cfg.GraceDelay, "grace-delay", cfg.GraceDelay, "Wait after benchmark spawn before starting the visualizer and watcher")
	flag.DurationVar(&cfg.TerminateGrace, "terminate-grace", cfg.TerminateGrace, "SIGTERM grace period before SIGKILL during cleanup")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Safety & Diagnostics (double-dash convention)
	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the benchmark and visualizer commands and exit")
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Replace commands with shell built-ins and run a pipeline self-test")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	flag.Parse()

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
