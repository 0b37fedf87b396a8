package logging

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of stderr lines retained per process.
	MaxBufferedLines = 100

	// maxScanBuffer bounds how much of one stderr line the scanner will hold
	// before giving up on line framing.
	maxScanBuffer = 1024 * 1024
)

// StderrHandler handles stderr output from a spawned process.
// It buffers recent lines so a fatal exit can report what the process said,
// and logs each line at a level inferred from its content.
type StderrHandler struct {
	role    string
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex
}

// NewStderrHandler creates a stderr handler for a process role
// (e.g. "benchmark", "visualizer").
func NewStderrHandler(role string, logger *slog.Logger, verbose bool) *StderrHandler {
	return &StderrHandler{
		role:    role,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleReader reads from an io.Reader and processes each line.
// This should be run in a goroutine; it returns when the reader is drained.
// The reader is always drained to EOF, even past a line the scanner cannot
// frame, so the writing process never blocks on a full pipe.
func (h *StderrHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxScanBuffer)

	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		h.logger.Warn("process_stderr_read_error",
			"role", h.role,
			"error", err,
		)
		io.Copy(io.Discard, r)
	}
}

// HandleLine processes a single line of stderr output.
func (h *StderrHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at appropriate level based on content.
func (h *StderrHandler) logLine(line string) {
	level := h.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(nil, level, "process_stderr",
		"role", h.role,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
// Tuned for cargo test and matplotlib output, the two processes run here.
func (h *StderrHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "panicked") ||
		strings.Contains(lower, "traceback") ||
		strings.Contains(lower, "failed") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "warning") ||
		strings.Contains(lower, "deprecat") {
		return slog.LevelWarn
	}

	// Compiler/test progress chatter
	if strings.Contains(lower, "compiling") ||
		strings.Contains(lower, "running") ||
		strings.Contains(lower, "finished") {
		return slog.LevelDebug
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines from the buffer,
// oldest first.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// Tail returns the buffered stderr joined by newlines, oldest first.
// Used as the error message when a process exits non-zero.
func (h *StderrHandler) Tail() string {
	return strings.Join(h.RecentLines(MaxBufferedLines), "\n")
}
