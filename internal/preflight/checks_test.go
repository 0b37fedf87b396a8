package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethercoretech/avatar-walrus/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workdir = t.TempDir()
	// Shell built-ins so the checks pass without cargo or python
	cfg.BenchmarkCommand = "echo bench"
	cfg.VisualizerCommand = "echo vis"
	return cfg
}

// =============================================================================
// Individual checks
// =============================================================================

func TestCheckShellPasses(t *testing.T) {
	c := checkShell()
	if !c.Passed {
		t.Errorf("shell check failed: %s", c.Message)
	}
}

func TestCheckWorkdir(t *testing.T) {
	tests := []struct {
		name     string
		dir      func(t *testing.T) string
		wantPass bool
	}{
		{
			name:     "writable directory",
			dir:      func(t *testing.T) string { return t.TempDir() },
			wantPass: true,
		},
		{
			name:     "missing directory",
			dir:      func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			wantPass: false,
		},
		{
			name: "file instead of directory",
			dir: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "file")
				os.WriteFile(path, []byte("x"), 0o644)
				return path
			},
			wantPass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkWorkdir(tt.dir(t))
			if c.Passed != tt.wantPass {
				t.Errorf("passed = %v, want %v (%s)", c.Passed, tt.wantPass, c.Message)
			}
		})
	}
}

func TestCheckCommandTool(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		warnOnly bool
		wantPass bool
		wantWarn bool
	}{
		{
			name:     "tool on PATH",
			command:  "echo hello",
			wantPass: true,
		},
		{
			name:     "missing tool is fatal",
			command:  "definitely-not-a-real-binary-xyz --flag",
			wantPass: false,
		},
		{
			name:     "missing tool degrades to warning",
			command:  "definitely-not-a-real-binary-xyz --flag",
			warnOnly: true,
			wantPass: true,
			wantWarn: true,
		},
		{
			name:     "variable command word skips lookup",
			command:  "$TOOLCHAIN test --release",
			wantPass: true,
			wantWarn: true,
		},
		{
			name:     "env assignments precede the command word",
			command:  "WALRUS_FSYNC=no-fsync WALRUS_DURATION=2m echo test --release",
			wantPass: true,
		},
		{
			name:     "env assignments before a missing tool still fail",
			command:  "WALRUS_FSYNC=no-fsync definitely-not-a-real-binary-xyz test",
			wantPass: false,
		},
		{
			name:     "only env assignments",
			command:  "WALRUS_FSYNC=no-fsync WALRUS_BACKEND=fd",
			wantPass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkCommandTool("benchmark_tool", tt.command, tt.warnOnly)
			if c.Passed != tt.wantPass || c.Warning != tt.wantWarn {
				t.Errorf("passed=%v warning=%v, want passed=%v warning=%v (%s)",
					c.Passed, c.Warning, tt.wantPass, tt.wantWarn, c.Message)
			}
		})
	}
}

func TestIsEnvAssignment(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"WALRUS_FSYNC=no-fsync", true},
		{"A=1", true},
		{"_private=x", true},
		{"cargo", false},
		{"=value", false},
		{"1BAD=x", false},
		{"./x=y", false},
		{"a-b=c", false},
	}
	for _, tt := range tests {
		if got := isEnvAssignment(tt.token); got != tt.want {
			t.Errorf("isEnvAssignment(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestDefaultBenchmarkCommandResolvesPastEnvPrefix(t *testing.T) {
	// The shipped default command carries WALRUS_* assignments before the
	// tool; the check must resolve the command word, not the first token
	cmd := config.DefaultConfig().BenchmarkCommand
	c := checkCommandTool("benchmark_tool", cmd, false)

	if strings.Contains(c.Message, "WALRUS_") {
		t.Errorf("check resolved an env assignment instead of the tool: %s", c.Message)
	}
	if !strings.Contains(c.Message, "cargo") {
		t.Errorf("check should name the command word: %s", c.Message)
	}
}

// =============================================================================
// Aggregate result
// =============================================================================

func TestRunAllPassesOnHealthySetup(t *testing.T) {
	result := RunAll(testConfig(t))
	if !result.Passed {
		for _, c := range result.Checks {
			t.Logf("%s", c.String())
		}
		t.Error("preflight should pass on a healthy setup")
	}
	if len(result.Checks) != 4 {
		t.Errorf("check count = %d, want 4", len(result.Checks))
	}
}

func TestRunAllFailsOnMissingWorkdir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workdir = filepath.Join(cfg.Workdir, "does-not-exist")

	result := RunAll(cfg)
	if result.Passed {
		t.Error("preflight should fail when the workdir is missing")
	}
}

func TestCheckStringMarkers(t *testing.T) {
	pass := Check{Name: "x", Passed: true, Message: "ok"}
	fail := Check{Name: "x", Passed: false, Message: "bad"}
	warn := Check{Name: "x", Passed: true, Warning: true, Message: "meh"}

	if !strings.Contains(pass.String(), "✓") {
		t.Errorf("pass marker missing: %q", pass.String())
	}
	if !strings.Contains(fail.String(), "✗") {
		t.Errorf("fail marker missing: %q", fail.String())
	}
	if !strings.Contains(warn.String(), "⚠") {
		t.Errorf("warn marker missing: %q", warn.String())
	}
}
