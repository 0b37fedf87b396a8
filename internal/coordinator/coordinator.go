package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ethercoretech/avatar-walrus/internal/config"
	"github.com/ethercoretech/avatar-walrus/internal/metrics"
	"github.com/ethercoretech/avatar-walrus/internal/process"
	"github.com/ethercoretech/avatar-walrus/internal/stats"
	"github.com/ethercoretech/avatar-walrus/internal/status"
	"github.com/ethercoretech/avatar-walrus/internal/timeseries"
	"github.com/ethercoretech/avatar-walrus/internal/watcher"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Coordinator owns the single allowed benchmark run. It is the only writer
// of RunStatus apart from the watcher's restricted view, and the exclusive
// owner of both process handles.
type Coordinator struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *status.Store
	collector *metrics.Collector

	artifactStats *stats.ArtifactStats
	growth        *timeseries.GrowthTracker
	clock         timeseries.Clock

	// SummaryWriter, when set, receives the formatted run summary on every
	// terminal state. Set before Start; nil disables the summary.
	SummaryWriter io.Writer

	mu         sync.Mutex
	state      State
	runID      string
	startedAt  time.Time
	benchmark  *process.Handle
	visualizer *process.Handle

	runCancel   context.CancelFunc
	runDone     chan struct{}
	watchCancel context.CancelFunc
	watchGroup  *errgroup.Group
}

// New creates a Coordinator in the idle state.
func New(cfg *config.Config, store *status.Store, collector *metrics.Collector, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:           cfg,
		logger:        logger,
		store:         store,
		collector:     collector,
		artifactStats: stats.NewArtifactStats(),
		growth:        timeseries.NewGrowthTracker(),
		clock:         realClock{},
	}
}

// State returns the current run state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the current (or last) run's identifier.
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// ArtifactStats returns the current run's artifact statistics snapshot.
func (c *Coordinator) ArtifactStats() stats.Summary {
	return c.artifactStats.Snapshot()
}

// Start begins a new run. It fails with ErrAlreadyRunning while a run is
// active, otherwise acknowledges immediately; the run proceeds in the
// background and callers observe it through the status store.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.state.IsActive() {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	// Implicit reset: a completed or failed run's visualizer may still be
	// rendering, and the previous status must not leak into this run.
	leftovers := c.takeHandlesLocked()
	c.store.Reset()
	c.artifactStats.Reset()
	c.growth.Reset()

	runID := uuid.NewString()
	c.runID = runID
	c.startedAt = c.clock.Now()
	c.state = StateStarting

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	done := make(chan struct{})
	c.runDone = done
	c.mu.Unlock()

	c.store.Update(func(st *status.RunStatus) {
		st.RunID = runID
		st.Running = true
	})
	c.collector.RunStarted()
	c.collector.SetRunState(metrics.StateStarting)
	c.logger.Info("run_starting", "run_id", runID, "command", c.cfg.BenchmarkCommand)

	go func() {
		defer close(done)
		c.run(runCtx, runID, leftovers)
	}()

	return nil
}

// takeHandlesLocked detaches the current process handles for teardown.
// Must be called with mu held.
func (c *Coordinator) takeHandlesLocked() []*process.Handle {
	var handles []*process.Handle
	if c.benchmark != nil {
		handles = append(handles, c.benchmark)
		c.benchmark = nil
	}
	if c.visualizer != nil {
		handles = append(handles, c.visualizer)
		c.visualizer = nil
	}
	return handles
}

// run drives one benchmark run to a terminal state. It never touches
// RunStatus after ctx is cancelled; StopAndReset owns teardown then.
func (c *Coordinator) run(ctx context.Context, runID string, leftovers []*process.Handle) {
	for _, h := range leftovers {
		if !h.Alive() {
			continue
		}
		c.logger.Info("terminating_leftover_process", "role", h.Role(), "pid", h.PID())
		if err := h.Terminate(c.cfg.TerminateGrace); err != nil {
			c.logger.Warn("leftover_terminate_failed", "role", h.Role(), "error", err)
		}
	}

	// Spawn under the lock so StopAndReset either sees the handle or the
	// spawn never happens after cancellation.
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	bench, err := process.Spawn("benchmark", c.cfg.BenchmarkCommand, c.cfg.Workdir, c.logger, c.cfg.Verbose)
	if err != nil {
		c.mu.Unlock()
		c.finishFailed(ctx, runID, err, -1)
		return
	}
	c.benchmark = bench
	c.state = StateRunning
	c.mu.Unlock()

	c.store.Update(func(st *status.RunStatus) {
		st.BenchmarkStarted = true
	})
	c.collector.SetRunState(metrics.StateRunning)
	c.logger.Info("benchmark_started",
		"run_id", runID,
		"pid", bench.PID(),
		"grace_delay", c.cfg.GraceDelay.String(),
	)

	// Let the benchmark produce partial output before visualization reads it
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.cfg.GraceDelay):
	}

	c.launchWatcher(ctx)
	c.spawnVisualizer(ctx)

	// The only blocking wait in the main flow; the watcher runs alongside
	exitCode := bench.Wait()
	c.collector.RecordBenchmarkExit(exitCode)

	if ctx.Err() != nil {
		return
	}

	if exitCode != 0 {
		c.finishFailed(ctx, runID, &ProcessExitError{ExitCode: exitCode, Stderr: bench.StderrTail()}, exitCode)
		return
	}

	if _, statErr := os.Stat(c.cfg.ResultPath()); statErr != nil {
		c.finishFailed(ctx, runID, &MissingOutputError{Path: c.cfg.ResultPath()}, exitCode)
		return
	}

	c.finishCompleted(ctx, runID, exitCode)
}

// launchWatcher starts the artifact watcher as a joined background task.
func (c *Coordinator) launchWatcher(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	g := &errgroup.Group{}

	w := watcher.New(watcher.Config{
		ArtifactPath:      c.cfg.ArtifactPath(),
		PublicPath:        c.cfg.ArtifactPublicPath,
		PollInterval:      c.cfg.PollInterval,
		StaleRefreshEvery: c.cfg.StaleRefreshEvery,
		View:              c.store.WatcherView(),
		Logger:            c.logger,
		Metrics:           c.collector,
		Stats:             c.artifactStats,
		Growth:            c.growth,
		Clock:             c.clock,
	})
	g.Go(func() error {
		w.Run(watchCtx)
		return nil
	})

	c.watchCancel = cancel
	c.watchGroup = g
}

// spawnVisualizer starts the chart renderer. Failure is logged, not fatal:
// the watcher's file polling is the source of truth for visualization
// progress, and the run does not depend on the visualizer's exit status.
func (c *Coordinator) spawnVisualizer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	vis, err := process.Spawn("visualizer", c.cfg.VisualizerCommand, c.cfg.Workdir, c.logger, c.cfg.Verbose)
	if err != nil {
		c.logger.Warn("visualizer_spawn_failed", "error", err)
		return
	}
	c.visualizer = vis
}

// stopWatcher cancels the watcher loop and joins it. Bounded by one poll
// interval. Safe to call when no watcher is running.
func (c *Coordinator) stopWatcher() {
	c.mu.Lock()
	cancel, g := c.watchCancel, c.watchGroup
	c.watchCancel, c.watchGroup = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		g.Wait()
	}
}

// finishFailed moves the run to Failed and records err verbatim.
func (c *Coordinator) finishFailed(ctx context.Context, runID string, err error, exitCode int) {
	c.stopWatcher()
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.runID != runID {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	duration := c.clock.Now().Sub(c.startedAt)
	c.mu.Unlock()

	c.store.Update(func(st *status.RunStatus) {
		st.Running = false
		st.Completed = false
		st.Error = err.Error()
	})
	c.collector.RunFailed(duration)
	c.collector.SetRunState(metrics.StateFailed)
	c.logger.Error("run_failed",
		"run_id", runID,
		"exit_code", exitCode,
		"duration", duration.String(),
		"error", err,
	)
	c.emitSummary(runID, duration, exitCode, false, err.Error())
}

// finishCompleted verifies nothing else went wrong and moves the run to
// Completed, capturing a final artifact reference if the image exists.
func (c *Coordinator) finishCompleted(ctx context.Context, runID string, exitCode int) {
	c.stopWatcher()
	if ctx.Err() != nil {
		return
	}

	finalRef := ""
	if fi, err := os.Stat(c.cfg.ArtifactPath()); err == nil && fi.Size() > 0 {
		finalRef = fmt.Sprintf("%s?t=%d", c.cfg.ArtifactPublicPath, c.clock.Now().Unix())
	}

	c.mu.Lock()
	if c.runID != runID {
		c.mu.Unlock()
		return
	}
	c.state = StateCompleted
	duration := c.clock.Now().Sub(c.startedAt)
	c.mu.Unlock()

	c.store.Update(func(st *status.RunStatus) {
		st.Running = false
		st.Completed = true
		if finalRef != "" {
			st.ArtifactRef = finalRef
		}
	})
	c.collector.RunCompleted(duration)
	c.collector.SetRunState(metrics.StateCompleted)
	c.logger.Info("run_completed",
		"run_id", runID,
		"duration", duration.String(),
		"artifact_ref", finalRef,
	)
	c.emitSummary(runID, duration, exitCode, true, "")
}

// emitSummary prints and logs the per-run artifact summary.
func (c *Coordinator) emitSummary(runID string, duration time.Duration, exitCode int, completed bool, errMsg string) {
	summary := c.artifactStats.Snapshot()
	c.logger.Info("run_summary",
		"run_id", runID,
		"publishes", summary.Publishes,
		"stale_refreshes", summary.StaleRefresh,
		"watch_errors", summary.WatchErrors,
		"peak_size", summary.PeakSize,
	)
	if c.SummaryWriter != nil {
		fmt.Fprint(c.SummaryWriter, stats.FormatRunSummary(summary, stats.SummaryConfig{
			RunID:       runID,
			Duration:    duration,
			ExitCode:    exitCode,
			Completed:   completed,
			Error:       errMsg,
			MetricsAddr: c.cfg.MetricsAddr,
		}))
	}
}

// StopAndReset tears the current run down from whatever state it is in:
// stop the watcher, terminate any live process, delete the output files,
// and reset the status store to idle. Idempotent; sub-step failures are
// collected and logged, never raised, so every step always runs.
func (c *Coordinator) StopAndReset() []error {
	c.logger.Info("stop_and_reset_requested")
	var errs []error

	c.mu.Lock()
	cancel := c.runCancel
	done := c.runDone
	c.runCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.stopWatcher()

	c.mu.Lock()
	handles := c.takeHandlesLocked()
	c.mu.Unlock()

	for _, h := range handles {
		if !h.Alive() {
			continue
		}
		c.logger.Info("terminating_process", "role", h.Role(), "pid", h.PID())
		c.collector.ProcessTerminated(h.Role())
		if err := h.Terminate(c.cfg.TerminateGrace); err != nil {
			cerr := &CleanupError{Step: "terminate " + h.Role(), Err: err}
			errs = append(errs, cerr)
			c.collector.CleanupError()
			c.logger.Warn("cleanup_terminate_failed", "role", h.Role(), "error", err)
		}
	}

	// The run goroutine only blocks on the benchmark, which is now dead;
	// wait for it so no status write can land after the reset below.
	if done != nil {
		<-done
	}

	for _, path := range []string{c.cfg.ResultPath(), c.cfg.ArtifactPath()} {
		err := os.Remove(path)
		switch {
		case err == nil:
			c.logger.Info("deleted_output_file", "path", path)
		case errors.Is(err, fs.ErrNotExist):
			// Nothing to delete
		default:
			cerr := &CleanupError{Step: "delete " + path, Err: err}
			errs = append(errs, cerr)
			c.collector.CleanupError()
			c.logger.Warn("cleanup_delete_failed", "path", path, "error", err)
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.runID = ""
	c.runDone = nil
	c.mu.Unlock()

	c.store.Reset()
	c.artifactStats.Reset()
	c.growth.Reset()
	c.collector.SetRunState(metrics.StateIdle)
	c.logger.Info("cleanup_completed", "errors", len(errs))

	return errs
}
