// Package watcher polls the visualizer's output image and republishes a
// versioned reference to it whenever the file changes.
//
// The watcher runs concurrently with the benchmark and never fails the run:
// a missing file is expected early on, and stat errors are logged and
// counted but do not stop the loop. Poll I/O errors surface only in the
// log and the watch-error counters, never on the status payload: the
// payload's error field is reserved for fatal run failures. Cancellation
// is cooperative, checked once per poll tick.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ethercoretech/avatar-walrus/internal/metrics"
	"github.com/ethercoretech/avatar-walrus/internal/stats"
	"github.com/ethercoretech/avatar-walrus/internal/status"
	"github.com/ethercoretech/avatar-walrus/internal/timeseries"
)

// Config holds configuration for creating a Watcher.
type Config struct {
	// ArtifactPath is the filesystem path polled for size changes.
	ArtifactPath string

	// PublicPath is the URL path published in artifact references.
	PublicPath string

	// PollInterval is the time between polls.
	PollInterval time.Duration

	// StaleRefreshEvery republishes the unchanged artifact every N stale
	// ticks to defeat downstream caching.
	StaleRefreshEvery int

	View    *status.WatcherView
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Stats   *stats.ArtifactStats
	Growth  *timeseries.GrowthTracker

	// Clock is optional; defaults to the real clock. Version tokens come
	// from it, so tests can make successive tokens distinct.
	Clock timeseries.Clock
}

// Watcher owns one poll loop over the artifact file. Its observation state
// (last size, stale count) is private and discarded when the loop stops.
type Watcher struct {
	cfg   Config
	clock timeseries.Clock

	// Poll state, touched only by Run's goroutine
	lastSize   int64
	staleCount int
	firstImage bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// New creates a Watcher. Run may be called once per Watcher.
func New(cfg Config) *Watcher {
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Watcher{
		cfg:        cfg,
		clock:      clock,
		firstImage: true,
	}
}

// Run executes the poll loop until ctx is cancelled. Exit latency is
// bounded by one poll interval.
func (w *Watcher) Run(ctx context.Context) {
	w.cfg.View.MarkStarted()
	w.cfg.Logger.Info("watcher_started",
		"path", w.cfg.ArtifactPath,
		"poll_interval", w.cfg.PollInterval.String(),
		"stale_refresh_every", w.cfg.StaleRefreshEvery,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.cfg.Logger.Info("watcher_stopped", "path", w.cfg.ArtifactPath)
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll performs one observation of the artifact file.
func (w *Watcher) poll() {
	fi, err := os.Stat(w.cfg.ArtifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// The visualizer may not have written anything yet
			w.cfg.Logger.Debug("artifact_not_found_yet", "path", w.cfg.ArtifactPath)
			return
		}
		// Transient stat failure; keep polling
		w.cfg.Logger.Warn("artifact_stat_failed", "path", w.cfg.ArtifactPath, "error", err)
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.WatchError()
		}
		if w.cfg.Stats != nil {
			w.cfg.Stats.RecordWatchError()
		}
		return
	}

	size := fi.Size()
	if w.cfg.Growth != nil {
		w.cfg.Growth.Observe(size)
		w.reportGrowth()
	}

	if size <= 0 {
		return
	}

	if w.firstImage || size != w.lastSize {
		ref := w.versionedRef()
		w.cfg.View.PublishArtifact(ref)
		w.lastSize = size
		w.firstImage = false
		w.staleCount = 0

		if w.cfg.Metrics != nil {
			w.cfg.Metrics.ArtifactPublished(size)
		}
		if w.cfg.Stats != nil {
			w.cfg.Stats.RecordPublish(w.clock.Now(), size)
		}
		w.cfg.Logger.Info("artifact_updated", "size", size, "ref", ref)
		return
	}

	w.staleCount++
	if w.staleCount%w.cfg.StaleRefreshEvery == 0 {
		ref := w.versionedRef()
		w.cfg.View.PublishArtifact(ref)

		if w.cfg.Metrics != nil {
			w.cfg.Metrics.StaleRefresh()
		}
		if w.cfg.Stats != nil {
			w.cfg.Stats.RecordStaleRefresh()
		}
		w.cfg.Logger.Info("artifact_refreshed_unchanged", "size", size, "ref", ref)
	}
}

// versionedRef builds an artifact reference with a fresh cache-busting
// token. The token defeats client caching and carries no other meaning.
func (w *Watcher) versionedRef() string {
	return fmt.Sprintf("%s?t=%d", w.cfg.PublicPath, w.clock.Now().Unix())
}

// reportGrowth exports the rolling growth rates.
func (w *Watcher) reportGrowth() {
	if w.cfg.Metrics == nil {
		return
	}
	gs := w.cfg.Growth.GetStats()
	w.cfg.Metrics.SetGrowthRate("1s", gs.Rate1s)
	w.cfg.Metrics.SetGrowthRate("30s", gs.Rate30s)
	w.cfg.Metrics.SetGrowthRate("60s", gs.Rate60s)
}
