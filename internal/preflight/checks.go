// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethercoretech/avatar-walrus/internal/config"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(cfg *config.Config) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	shellCheck := checkShell()
	result.Checks = append(result.Checks, shellCheck)
	if !shellCheck.Passed {
		result.Passed = false
	}

	workdirCheck := checkWorkdir(cfg.Workdir)
	result.Checks = append(result.Checks, workdirCheck)
	if !workdirCheck.Passed {
		result.Passed = false
	}

	benchCheck := checkCommandTool("benchmark_tool", cfg.BenchmarkCommand, false)
	result.Checks = append(result.Checks, benchCheck)
	if !benchCheck.Passed {
		result.Passed = false
	}

	// Warning only: the run tolerates a broken visualizer, the chart just
	// never appears
	visCheck := checkCommandTool("visualizer_tool", cfg.VisualizerCommand, true)
	result.Checks = append(result.Checks, visCheck)

	return result
}

// checkShell verifies the shell used to spawn commands exists.
func checkShell() Check {
	const shell = "/bin/sh"
	fi, err := os.Stat(shell)
	if err != nil {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", shell, err),
		}
	}
	if fi.Mode()&0o111 == 0 {
		return Check{
			Name:    "shell",
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable", shell),
		}
	}
	return Check{
		Name:    "shell",
		Passed:  true,
		Message: shell,
	}
}

// checkWorkdir verifies the working directory exists and is writable, since
// both the result file and the artifact land there.
func checkWorkdir(dir string) Check {
	fi, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "workdir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !fi.IsDir() {
		return Check{
			Name:    "workdir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}

	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "workdir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return Check{
		Name:    "workdir",
		Passed:  true,
		Message: fmt.Sprintf("%s (writable)", dir),
	}
}

// checkCommandTool resolves the command word of a shell command on PATH,
// skipping leading NAME=value environment assignments the way the shell
// does. Shell syntax in the command word (variables, subshells) cannot be
// resolved statically and degrades to a warning.
func checkCommandTool(name, command string, warnOnly bool) Check {
	fields := strings.Fields(command)
	tool := ""
	for _, f := range fields {
		if isEnvAssignment(f) {
			continue
		}
		tool = f
		break
	}
	if tool == "" {
		return Check{
			Name:    name,
			Passed:  !warnOnly,
			Warning: warnOnly,
			Message: "command is empty",
		}
	}

	if strings.ContainsAny(tool, "$(){};|&<>") {
		return Check{
			Name:    name,
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%q uses shell syntax, skipping lookup", tool),
		}
	}

	path, err := exec.LookPath(tool)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  warnOnly,
			Warning: warnOnly,
			Message: fmt.Sprintf("%q not found on PATH", tool),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("%s found at %s", tool, path),
	}
}

// isEnvAssignment reports whether a token is a NAME=value environment
// assignment preceding the command word.
func isEnvAssignment(token string) bool {
	i := strings.IndexByte(token, '=')
	if i <= 0 {
		return false
	}
	for pos, r := range token[:i] {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if pos == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "shell":
		return "install a POSIX shell at /bin/sh"
	case "workdir":
		return "create the directory or pass -workdir pointing at a writable one"
	case "benchmark_tool":
		return "install the benchmark toolchain or adjust -benchmark-cmd"
	case "visualizer_tool":
		return "install the visualizer toolchain or adjust -visualizer-cmd"
	default:
		return "see documentation"
	}
}
