package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.BenchmarkCommand) == "" {
		errs = append(errs, ValidationError{
			Field:   "benchmark_command",
			Message: "benchmark command is required",
		})
	}

	if strings.TrimSpace(cfg.VisualizerCommand) == "" {
		errs = append(errs, ValidationError{
			Field:   "visualizer_command",
			Message: "visualizer command is required",
		})
	}

	if cfg.ResultFile == "" {
		errs = append(errs, ValidationError{
			Field:   "result_file",
			Message: "result file name is required",
		})
	}

	if cfg.ArtifactFile == "" {
		errs = append(errs, ValidationError{
			Field:   "artifact_file",
			Message: "artifact file name is required",
		})
	}

	if !strings.HasPrefix(cfg.ArtifactPublicPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "artifact_public_path",
			Message: fmt.Sprintf("must start with / (got %q)", cfg.ArtifactPublicPath),
		})
	}

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}

	if cfg.StaleRefreshEvery < 1 {
		errs = append(errs, ValidationError{
			Field:   "stale_refresh_every",
			Message: "must be at least 1",
		})
	}

	if cfg.GraceDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "grace_delay",
			Message: "must not be negative",
		})
	}

	if cfg.TerminateGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "terminate_grace",
			Message: "must be positive",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be one of: json, text (got %q)", cfg.LogFormat),
		})
	}

	if cfg.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "listen_addr",
			Message: "listen address is required",
		})
	}

	if cfg.MetricsAddr == cfg.ListenAddr && cfg.MetricsAddr != "" {
		errs = append(errs, ValidationError{
			Field:   "metrics_addr",
			Message: "must differ from the demo API listen address",
		})
	}

	return errors.Join(errs...)
}
