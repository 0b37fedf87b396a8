// Package config provides configuration management for avatar-walrus.
package config

import (
	"path/filepath"
	"time"
)

// Config holds all configuration options for the demo orchestrator.
type Config struct {
	// HTTP
	ListenAddr string `json:"listen_addr"`

	// Commands
	Workdir           string `json:"workdir"`
	BenchmarkCommand  string `json:"benchmark_command"`
	VisualizerCommand string `json:"visualizer_command"`

	// Artifacts
	ResultFile         string `json:"result_file"`
	ArtifactFile       string `json:"artifact_file"`
	ArtifactPublicPath string `json:"artifact_public_path"`

	// Timing
	PollInterval      time.Duration `json:"poll_interval"`
	StaleRefreshEvery int           `json:"stale_refresh_every"`
	GraceDelay        time.Duration `json:"grace_delay"`
	TerminateGrace    time.Duration `json:"terminate_grace"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults. The command and
// file defaults match the walrus benchmark harness this demo fronts.
func DefaultConfig() *Config {
	return &Config{
		// HTTP
		ListenAddr: "0.0.0.0:8000",

		// Commands
		Workdir: ".",
		BenchmarkCommand: "WALRUS_FSYNC=no-fsync WALRUS_DURATION=2m WALRUS_BATCH_SIZE=1000 WALRUS_BACKEND=fd " +
			"cargo test --release --test multithreaded_benchmark_writes",
		VisualizerCommand: "python scripts/visualize_throughput_non_interactive.py --file benchmark_throughput.csv",

		// Artifacts
		ResultFile:         "benchmark_throughput.csv",
		ArtifactFile:       "throughput_monitor.png",
		ArtifactPublicPath: "/static/throughput_monitor.png",

		// Timing
		PollInterval:      1 * time.Second,
		StaleRefreshEvery: 5,
		GraceDelay:        1 * time.Second,
		TerminateGrace:    5 * time.Second,

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",
	}
}

// ResultPath returns the absolute-ish path of the benchmark result file.
func (c *Config) ResultPath() string {
	return filepath.Join(c.Workdir, c.ResultFile)
}

// ArtifactPath returns the path of the visualizer's output image.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Workdir, c.ArtifactFile)
}

// ApplyCheckMode replaces the external commands with short shell built-ins
// so the full pipeline can be exercised without cargo or python installed.
func ApplyCheckMode(cfg *Config) {
	cfg.BenchmarkCommand = "sleep 3 && echo 'timestamp,ops_per_sec' > " + cfg.ResultFile
	cfg.VisualizerCommand = "for i in 1 2 3 4 5; do printf 'xxxx' >> " + cfg.ArtifactFile + "; sleep 1; done"
}
