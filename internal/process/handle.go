// Package process provides handles for the external processes avatar-walrus
// spawns: the WAL benchmark and the throughput visualizer.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/ethercoretech/avatar-walrus/internal/logging"
)

// SpawnError indicates an external command could not be started.
// It is fatal to the run that requested the spawn.
type SpawnError struct {
	Role    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s process: %v", e.Role, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Handle wraps one spawned external process.
//
// A Handle is created by Spawn and owns the process until it exits.
// Exactly one wait runs per Handle; Wait and Terminate both observe the
// same completion, so either may be called any number of times.
type Handle struct {
	role   string
	cmd    *exec.Cmd
	stderr *logging.StderrHandler
	logger *slog.Logger

	startTime time.Time

	// done is closed after the process has exited and exitCode is set.
	done     chan struct{}
	exitCode int
}

// Spawn starts command via the shell in workdir and returns a live Handle.
// The command is a full shell line so callers can prefix environment
// variables the way the benchmark harness expects
// (e.g. "WALRUS_FSYNC=no-fsync cargo test ...").
func Spawn(role, command, workdir string, logger *slog.Logger, verbose bool) (*Handle, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = workdir

	// Own process group so Terminate can signal shell descendants too
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	stderrHandler := logging.NewStderrHandler(role, logger, verbose)
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Role: role, Command: command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	h := &Handle{
		role:      role,
		cmd:       cmd,
		stderr:    stderrHandler,
		logger:    logger,
		startTime: time.Now(),
		done:      make(chan struct{}),
		exitCode:  -1,
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Role: role, Command: command, Err: err}
	}

	logger.Info("process_started",
		"role", role,
		"pid", cmd.Process.Pid,
		"workdir", workdir,
	)

	go func() {
		// Drain stderr to EOF before Wait; EOF arrives at process exit.
		stderrHandler.HandleReader(stderrPipe)

		waitErr := cmd.Wait()
		h.exitCode = extractExitCode(waitErr)
		close(h.done)

		logger.Info("process_exited",
			"role", role,
			"pid", cmd.Process.Pid,
			"exit_code", h.exitCode,
			"uptime", time.Since(h.startTime).String(),
		)
	}()

	return h, nil
}

// Done returns a channel closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its exit code.
// Signal deaths are reported as 128 + signal number.
func (h *Handle) Wait() int {
	<-h.done
	return h.exitCode
}

// ExitCode returns the exit code, or -1 while the process is still live.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Alive reports whether the process has not yet exited.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Role returns the role this handle was spawned for.
func (h *Handle) Role() string {
	return h.role
}

// StderrTail returns the buffered stderr lines, oldest first.
func (h *Handle) StderrTail() string {
	return h.stderr.Tail()
}

// Uptime returns how long the process has been running, or its final
// uptime if it has exited.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// Terminate stops the process: SIGTERM to the process group, then SIGKILL
// if it has not exited within grace. The post-kill wait is unconditional,
// so a nil return always means the process is gone; escalation only shows
// up in the log. Calling Terminate on an already-exited handle is a no-op.
func (h *Handle) Terminate(grace time.Duration) error {
	if !h.Alive() {
		return nil
	}

	pid := h.cmd.Process.Pid
	h.signalGroup(pid, syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}

	h.logger.Warn("force_killing_process",
		"role", h.role,
		"pid", pid,
		"grace", grace.String(),
	)
	h.signalGroup(pid, syscall.SIGKILL)
	<-h.done

	return nil
}

// signalGroup signals the whole process group, falling back to the process
// itself if the group is gone.
func (h *Handle) signalGroup(pid int, sig syscall.Signal) {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		syscall.Kill(-pgid, sig)
	} else {
		h.cmd.Process.Signal(sig)
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
