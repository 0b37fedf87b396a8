package coordinator

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"github.com/ethercoretech/avatar-walrus/internal/config"
	"github.com/ethercoretech/avatar-walrus/internal/metrics"
	"github.com/ethercoretech/avatar-walrus/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test fixtures
// =============================================================================

// testCoordinator builds a coordinator over a temp workdir with fast
// intervals. Commands are plain shell so the tests need no real toolchain.
func testCoordinator(t *testing.T, benchCmd, visCmd string) (*Coordinator, *status.Store, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Workdir = t.TempDir()
	cfg.BenchmarkCommand = benchCmd
	cfg.VisualizerCommand = visCmd
	cfg.PollInterval = 10 * time.Millisecond
	cfg.StaleRefreshEvery = 3
	cfg.GraceDelay = 10 * time.Millisecond
	cfg.TerminateGrace = 500 * time.Millisecond

	store := status.NewStore()
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := New(cfg, store, collector, logger)

	t.Cleanup(func() {
		c.StopAndReset()
	})
	return c, store, cfg
}

// writingBenchmark produces the result file then exits cleanly.
const writingBenchmark = "sleep 0.05; echo 'ops,throughput' > benchmark_throughput.csv"

// appendingVisualizer grows the chart file for a while.
const appendingVisualizer = "i=0; while [ $i -lt 30 ]; do echo chunk >> throughput_monitor.png; i=$((i+1)); sleep 0.02; done"

// waitForTerminal polls the store until the run leaves the running state.
func waitForTerminal(t *testing.T, store *status.Store) status.RunStatus {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		st := store.Snapshot()
		if st.RunID != "" && !st.Running {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("run never reached a terminal state: %+v", st)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// =============================================================================
// Happy path
// =============================================================================

func TestRunCompletes(t *testing.T) {
	c, store, _ := testCoordinator(t, writingBenchmark, appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := store.Snapshot(); !got.Running || got.RunID == "" {
		t.Errorf("status after Start: %+v", got)
	}

	st := waitForTerminal(t, store)
	if !st.Completed {
		t.Errorf("run should complete, got %+v", st)
	}
	if st.Error != "" {
		t.Errorf("completed run carries error %q", st.Error)
	}
	if !st.BenchmarkStarted || !st.WatcherStarted {
		t.Errorf("lifecycle flags not set: %+v", st)
	}
	if c.State() != StateCompleted {
		t.Errorf("state = %v, want Completed", c.State())
	}
}

func TestCompletedRunPublishesArtifactRef(t *testing.T) {
	c, store, _ := testCoordinator(t, writingBenchmark, appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, store)

	if !strings.HasPrefix(st.ArtifactRef, "/static/throughput_monitor.png?t=") {
		t.Errorf("artifact ref = %q", st.ArtifactRef)
	}
}

func TestRunSurvivesVisualizerFailure(t *testing.T) {
	// A broken visualizer must not fail the run; there is just no chart
	c, store, _ := testCoordinator(t, writingBenchmark, "exit 1")

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, store)

	if !st.Completed {
		t.Errorf("run should complete despite visualizer exit, got %+v", st)
	}
	if st.ArtifactRef != "" {
		t.Errorf("no chart was produced, ref should be empty: %q", st.ArtifactRef)
	}
}

// =============================================================================
// Concurrency guard
// =============================================================================

func TestSecondStartConflicts(t *testing.T) {
	c, store, _ := testCoordinator(t, "sleep 2; "+writingBenchmark, appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	c.StopAndReset()
	_ = store
}

func TestStartAfterCompletionResetsStatus(t *testing.T) {
	c, store, _ := testCoordinator(t, "echo oops >&2; exit 1", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := waitForTerminal(t, store)
	if first.Error == "" {
		t.Fatalf("first run should fail: %+v", first)
	}
	firstID := first.RunID

	if err := c.Start(); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	st := store.Snapshot()
	if st.Error != "" {
		t.Errorf("previous run's error leaked into new run: %q", st.Error)
	}
	if st.RunID == firstID {
		t.Error("new run should get a fresh run ID")
	}
	waitForTerminal(t, store)
}

// =============================================================================
// Failure paths
// =============================================================================

func TestNonZeroExitFails(t *testing.T) {
	c, store, _ := testCoordinator(t, "echo 'assertion failed: wal full' >&2; exit 101", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, store)

	if st.Completed {
		t.Error("failed run marked completed")
	}
	if !strings.Contains(st.Error, "assertion failed: wal full") {
		t.Errorf("error should carry the stderr tail verbatim, got %q", st.Error)
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want Failed", c.State())
	}
}

func TestCleanExitWithoutResultFileFails(t *testing.T) {
	c, store, cfg := testCoordinator(t, "true", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, store)

	if st.Completed {
		t.Error("run without result file marked completed")
	}
	if !strings.Contains(st.Error, cfg.ResultFile) {
		t.Errorf("error should name the missing result file, got %q", st.Error)
	}
}

func TestNonZeroExitWithQuietStderr(t *testing.T) {
	c, store, _ := testCoordinator(t, "exit 3", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := waitForTerminal(t, store)

	if !strings.Contains(st.Error, "3") {
		t.Errorf("fallback error should name the exit code, got %q", st.Error)
	}
}

// =============================================================================
// Cleanup protocol
// =============================================================================

func TestStopAndResetKillsRunAndClearsState(t *testing.T) {
	c, store, cfg := testCoordinator(t, "sleep 30", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Let the benchmark spawn and the watcher start
	deadline := time.After(5 * time.Second)
	for !store.Snapshot().BenchmarkStarted {
		select {
		case <-deadline:
			t.Fatal("benchmark never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	errs := c.StopAndReset()
	if len(errs) != 0 {
		t.Errorf("cleanup errors: %v", errs)
	}

	if st := store.Snapshot(); st != (status.RunStatus{}) {
		t.Errorf("status not reset: %+v", st)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want Idle", c.State())
	}
	if _, err := os.Stat(cfg.ResultPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("result file should be gone: %v", err)
	}
	if _, err := os.Stat(cfg.ArtifactPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("artifact file should be gone: %v", err)
	}
}

func TestStopAndResetCleanWhenBenchmarkIgnoresTerm(t *testing.T) {
	// A benchmark that shrugs off SIGTERM gets SIGKILLed; that is still a
	// successful cleanup, not an error
	c, store, _ := testCoordinator(t, "trap '' TERM; while true; do sleep 0.1; done", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for !store.Snapshot().BenchmarkStarted {
		select {
		case <-deadline:
			t.Fatal("benchmark never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if errs := c.StopAndReset(); len(errs) != 0 {
		t.Errorf("cleanup errors after kill escalation: %v", errs)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want Idle", c.State())
	}
}

func TestStopAndResetDeletesLeftoverFiles(t *testing.T) {
	c, _, cfg := testCoordinator(t, writingBenchmark, appendingVisualizer)

	// Files left over without any run
	os.WriteFile(cfg.ResultPath(), []byte("stale"), 0o644)
	os.WriteFile(cfg.ArtifactPath(), []byte("stale"), 0o644)

	if errs := c.StopAndReset(); len(errs) != 0 {
		t.Errorf("cleanup errors: %v", errs)
	}
	if _, err := os.Stat(cfg.ResultPath()); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale result file not deleted")
	}
	if _, err := os.Stat(cfg.ArtifactPath()); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale artifact file not deleted")
	}
}

func TestStopAndResetIsIdempotent(t *testing.T) {
	c, store, _ := testCoordinator(t, writingBenchmark, appendingVisualizer)

	for i := 0; i < 3; i++ {
		if errs := c.StopAndReset(); len(errs) != 0 {
			t.Errorf("idle cleanup pass %d returned errors: %v", i, errs)
		}
	}
	if st := store.Snapshot(); st != (status.RunStatus{}) {
		t.Errorf("status after idle cleanup: %+v", st)
	}
}

func TestStopAndResetThenRestart(t *testing.T) {
	c, store, _ := testCoordinator(t, "sleep 30", appendingVisualizer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.StopAndReset()

	// The coordinator must accept a fresh run after cleanup
	c2cfg := c.cfg
	c2cfg.BenchmarkCommand = writingBenchmark
	if err := c.Start(); err != nil {
		t.Fatalf("restart after cleanup: %v", err)
	}
	st := waitForTerminal(t, store)
	if !st.Completed {
		t.Errorf("restarted run should complete: %+v", st)
	}
}

func TestStopDuringStartingState(t *testing.T) {
	// Long grace delay keeps the run in Starting while we cancel it
	c, store, cfg := testCoordinator(t, writingBenchmark, appendingVisualizer)
	cfg.GraceDelay = 10 * time.Second

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for !store.Snapshot().BenchmarkStarted {
		select {
		case <-deadline:
			t.Fatal("benchmark never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	start := time.Now()
	errs := c.StopAndReset()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cleanup blocked on the grace delay: %v", elapsed)
	}
	if len(errs) != 0 {
		t.Errorf("cleanup errors: %v", errs)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want Idle", c.State())
	}
}

// =============================================================================
// Run identifiers and state labels
// =============================================================================

func TestRunIDsAreUnique(t *testing.T) {
	c, store, _ := testCoordinator(t, writingBenchmark, appendingVisualizer)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		if err := c.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		st := waitForTerminal(t, store)
		if seen[st.RunID] {
			t.Errorf("duplicate run ID %q", st.RunID)
		}
		seen[st.RunID] = true
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
	if !StateRunning.IsActive() || StateIdle.IsActive() {
		t.Error("IsActive wrong")
	}
	if !StateFailed.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("IsTerminal wrong")
	}
}
