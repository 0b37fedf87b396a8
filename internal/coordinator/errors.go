package coordinator

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when a run is already active.
var ErrAlreadyRunning = errors.New("a benchmark run is already active")

// ProcessExitError indicates the benchmark process exited non-zero.
// Its message is the captured stderr when the process said anything,
// so the status payload surfaces what the benchmark actually printed.
type ProcessExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("benchmark exited with code %d", e.ExitCode)
}

// MissingOutputError indicates the benchmark exited cleanly but never wrote
// its result file: a contract violation by the external program.
type MissingOutputError struct {
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("benchmark result file not generated: %s", e.Path)
}

// CleanupError records one failed sub-step of stop-and-reset. Cleanup never
// aborts on these; they are collected and logged.
type CleanupError struct {
	Step string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Step, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
