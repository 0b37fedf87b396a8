// Package metrics provides Prometheus metrics for avatar-walrus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Run lifecycle ---
var (
	walbenchInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walbench_info",
			Help: "Information about the benchmark demo (value always 1)",
		},
		[]string{"version"},
	)

	walbenchRunState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "walbench_run_state",
			Help: "Current run state (0=idle 1=starting 2=running 3=completed 4=failed)",
		},
	)

	walbenchRunsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_runs_started_total",
			Help: "Total benchmark runs started",
		},
	)

	walbenchRunsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_runs_completed_total",
			Help: "Total benchmark runs that completed successfully",
		},
	)

	walbenchRunsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_runs_failed_total",
			Help: "Total benchmark runs that ended in failure",
		},
	)

	walbenchRunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "walbench_run_duration_seconds",
			Help:    "Duration of terminal benchmark runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68m
		},
	)

	walbenchBenchmarkExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walbench_benchmark_exits_total",
			Help: "Benchmark process exits by exit code",
		},
		[]string{"exit_code"},
	)
)

// --- Artifact watcher ---
var (
	walbenchArtifactPublishesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_artifact_publishes_total",
			Help: "Artifact references published due to size change or first observation",
		},
	)

	walbenchStaleRefreshesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_artifact_stale_refreshes_total",
			Help: "Artifact references republished with no size change (cache bust)",
		},
	)

	walbenchWatchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_watch_errors_total",
			Help: "Non-fatal artifact poll I/O errors",
		},
	)

	walbenchArtifactSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "walbench_artifact_size_bytes",
			Help: "Last observed artifact file size",
		},
	)

	walbenchArtifactGrowthBytesPerSec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walbench_artifact_growth_bytes_per_second",
			Help: "Rolling artifact growth rate per window",
		},
		[]string{"window"},
	)
)

// --- Cleanup ---
var (
	walbenchCleanupErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walbench_cleanup_errors_total",
			Help: "Non-fatal errors during stop-and-reset",
		},
	)

	walbenchProcessTerminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walbench_process_terminations_total",
			Help: "Processes terminated by the cleanup protocol, by role",
		},
		[]string{"role"},
	)
)

// RunState values exported on walbench_run_state.
const (
	StateIdle      = 0
	StateStarting  = 1
	StateRunning   = 2
	StateCompleted = 3
	StateFailed    = 4
)

// Collector manages all Prometheus metrics for the demo orchestrator.
type Collector struct {
	startTime time.Time
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(version string) *Collector {
	return NewCollectorWithRegistry(version, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(version string, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime: time.Now(),
	}

	registry.MustRegister(
		walbenchInfo,
		walbenchRunState,
		walbenchRunsStartedTotal,
		walbenchRunsCompletedTotal,
		walbenchRunsFailedTotal,
		walbenchRunDurationSeconds,
		walbenchBenchmarkExitsTotal,

		walbenchArtifactPublishesTotal,
		walbenchStaleRefreshesTotal,
		walbenchWatchErrorsTotal,
		walbenchArtifactSizeBytes,
		walbenchArtifactGrowthBytesPerSec,

		walbenchCleanupErrorsTotal,
		walbenchProcessTerminationsTotal,
	)

	walbenchInfo.WithLabelValues(version).Set(1)
	walbenchRunState.Set(StateIdle)

	return c
}

// SetRunState updates the run state gauge.
func (c *Collector) SetRunState(state int) {
	walbenchRunState.Set(float64(state))
}

// RunStarted records the start of a run.
func (c *Collector) RunStarted() {
	walbenchRunsStartedTotal.Inc()
}

// RunCompleted records a successful run and its duration.
func (c *Collector) RunCompleted(duration time.Duration) {
	walbenchRunsCompletedTotal.Inc()
	walbenchRunDurationSeconds.Observe(duration.Seconds())
}

// RunFailed records a failed run and its duration.
func (c *Collector) RunFailed(duration time.Duration) {
	walbenchRunsFailedTotal.Inc()
	walbenchRunDurationSeconds.Observe(duration.Seconds())
}

// RecordBenchmarkExit records the benchmark process exit code.
func (c *Collector) RecordBenchmarkExit(code int) {
	walbenchBenchmarkExitsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ArtifactPublished records a real artifact publish and the observed size.
func (c *Collector) ArtifactPublished(size int64) {
	walbenchArtifactPublishesTotal.Inc()
	walbenchArtifactSizeBytes.Set(float64(size))
}

// StaleRefresh records a cache-bust republish.
func (c *Collector) StaleRefresh() {
	walbenchStaleRefreshesTotal.Inc()
}

// WatchError records a non-fatal poll error.
func (c *Collector) WatchError() {
	walbenchWatchErrorsTotal.Inc()
}

// SetArtifactSize updates the size gauge without counting a publish.
func (c *Collector) SetArtifactSize(size int64) {
	walbenchArtifactSizeBytes.Set(float64(size))
}

// SetGrowthRate updates the rolling growth rate gauge for a window label
// ("1s", "30s", "60s").
func (c *Collector) SetGrowthRate(window string, bytesPerSec float64) {
	walbenchArtifactGrowthBytesPerSec.WithLabelValues(window).Set(bytesPerSec)
}

// CleanupError records a non-fatal cleanup sub-step failure.
func (c *Collector) CleanupError() {
	walbenchCleanupErrorsTotal.Inc()
}

// ProcessTerminated records a termination performed by cleanup.
func (c *Collector) ProcessTerminated(role string) {
	walbenchProcessTerminationsTotal.WithLabelValues(role).Inc()
}
