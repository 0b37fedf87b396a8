// Package coordinator owns the lifecycle of a benchmark run: spawning the
// benchmark and visualizer processes, running the artifact watcher alongside
// them, and tearing everything down again.
package coordinator

// State represents the current state of the benchmark run.
type State int

const (
	// StateIdle is the initial state, before any run has started.
	StateIdle State = iota

	// StateStarting indicates the benchmark process is being spawned.
	StateStarting

	// StateRunning indicates the benchmark process is actively running.
	StateRunning

	// StateCompleted indicates the benchmark exited cleanly with its
	// result file present.
	StateCompleted

	// StateFailed indicates the run ended in a spawn failure, a non-zero
	// exit, or a missing result file.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true while a run is in flight. A fresh Start is refused
// in an active state.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning
}

// IsTerminal returns true for states a finished run rests in.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}
