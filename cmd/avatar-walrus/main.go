// Package main provides the avatar-walrus CLI entry point.
//
// avatar-walrus is a benchmark demo server: it runs a write-ahead-log
// benchmark and a chart visualizer as child processes, watches the chart
// image for changes, and serves live run status plus the chart over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethercoretech/avatar-walrus/internal/config"
	"github.com/ethercoretech/avatar-walrus/internal/coordinator"
	"github.com/ethercoretech/avatar-walrus/internal/logging"
	"github.com/ethercoretech/avatar-walrus/internal/metrics"
	"github.com/ethercoretech/avatar-walrus/internal/preflight"
	"github.com/ethercoretech/avatar-walrus/internal/server"
	"github.com/ethercoretech/avatar-walrus/internal/status"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/avatar-walrus
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("avatar-walrus %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled",
			"benchmark_cmd", cfg.BenchmarkCommand,
			"visualizer_cmd", cfg.VisualizerCommand,
		)
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printCommands(cfg)
		return 0
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"listen", cfg.ListenAddr,
		"workdir", cfg.Workdir,
		"poll_interval", cfg.PollInterval.String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	// Print startup banner
	printBanner(cfg)

	// Preflight checks
	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg)
		preflight.PrintResults(result)
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "Preflight checks failed. Use --skip-preflight to bypass.")
			return 1
		}
	}

	// Wire the run pipeline: status store, metrics, coordinator, servers
	store := status.NewStore()
	collector := metrics.NewCollector(version)
	coord := coordinator.New(cfg, store, collector, logger)
	coord.SummaryWriter = os.Stdout

	metricsServer := metrics.NewServer(cfg.MetricsAddr, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Error("metrics_server_start_failed", "error", err)
		return 1
	}

	apiServer := server.New(cfg, coord, store, logger)
	if err := apiServer.Start(); err != nil {
		logger.Error("api_server_start_failed", "error", err)
		return 1
	}

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	logger.Info("shutdown_signal_received")
	fmt.Println("\nShutting down...")

	// Tear down the active run before the servers, so no request observes
	// a half-dead run
	if errs := coord.StopAndReset(); len(errs) > 0 {
		for _, cerr := range errs {
			logger.Warn("shutdown_cleanup_error", "error", cerr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_server_shutdown_error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	logger.Info("stopped")
	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         avatar-walrus                             ║")
	fmt.Println("║         WAL Benchmark Runner with Live Chart Publishing           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Listen:      http://%s/\n", cfg.ListenAddr)
	fmt.Printf("  Workdir:     %s\n", cfg.Workdir)
	fmt.Printf("  Artifact:    %s (poll %s)\n", cfg.ArtifactFile, cfg.PollInterval)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.Check {
		fmt.Println("  Mode:        CHECK (shell stand-ins, no real benchmark)")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printCommands prints the shell commands that would be spawned.
func printCommands(cfg *config.Config) {
	fmt.Println("# Commands that would be run (via /bin/sh -c, in the workdir):")
	fmt.Println()
	fmt.Printf("# benchmark:\n%s\n\n", cfg.BenchmarkCommand)
	fmt.Printf("# visualizer:\n%s\n", cfg.VisualizerCommand)
}
