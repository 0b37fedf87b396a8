// Package stats provides artifact publication statistics for a benchmark run.
//
// The watcher feeds every artifact publish into ArtifactStats; the digest
// keeps publish-to-publish intervals and size deltas so the run summary can
// report percentiles without retaining every sample.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// ArtifactStats aggregates artifact publish events over one run.
type ArtifactStats struct {
	mu sync.Mutex

	publishes     int64
	staleRefresh  int64
	watchErrors   int64
	lastPublishAt time.Time
	lastSize      int64
	peakSize      int64

	intervalDigest  *tdigest.TDigest // seconds between publishes
	sizeDeltaDigest *tdigest.TDigest // bytes grown per real publish
	sizeDeltaCount  int64
}

// NewArtifactStats creates an empty stats aggregator.
func NewArtifactStats() *ArtifactStats {
	return &ArtifactStats{
		intervalDigest:  tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
		sizeDeltaDigest: tdigest.NewWithCompression(100),
	}
}

// RecordPublish records a real artifact publish (size changed or first
// observation) at the given time.
func (a *ArtifactStats) RecordPublish(at time.Time, size int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.publishes++
	if !a.lastPublishAt.IsZero() {
		a.intervalDigest.Add(at.Sub(a.lastPublishAt).Seconds(), 1)
	}
	if a.lastSize > 0 && size > a.lastSize {
		a.sizeDeltaDigest.Add(float64(size-a.lastSize), 1)
		a.sizeDeltaCount++
	}
	if size > a.peakSize {
		a.peakSize = size
	}
	a.lastPublishAt = at
	a.lastSize = size
}

// RecordStaleRefresh records a cache-bust republish with no size change.
func (a *ArtifactStats) RecordStaleRefresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.staleRefresh++
}

// RecordWatchError records a non-fatal poll I/O error.
func (a *ArtifactStats) RecordWatchError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchErrors++
}

// Summary is a point-in-time aggregation of the run's artifact activity.
type Summary struct {
	Publishes    int64
	StaleRefresh int64
	WatchErrors  int64
	PeakSize     int64
	FinalSize    int64
	IntervalP50  time.Duration
	IntervalP95  time.Duration
	SizeDeltaP50 int64
	SizeDeltaP95 int64
}

// Snapshot returns the current summary.
func (a *ArtifactStats) Snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		Publishes:    a.publishes,
		StaleRefresh: a.staleRefresh,
		WatchErrors:  a.watchErrors,
		PeakSize:     a.peakSize,
		FinalSize:    a.lastSize,
	}
	if a.publishes > 1 {
		s.IntervalP50 = secondsToDuration(a.intervalDigest.Quantile(0.50))
		s.IntervalP95 = secondsToDuration(a.intervalDigest.Quantile(0.95))
	}
	if a.sizeDeltaCount > 0 {
		s.SizeDeltaP50 = int64(a.sizeDeltaDigest.Quantile(0.50))
		s.SizeDeltaP95 = int64(a.sizeDeltaDigest.Quantile(0.95))
	}
	return s
}

// Reset clears all recorded data for a fresh run.
func (a *ArtifactStats) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.publishes = 0
	a.staleRefresh = 0
	a.watchErrors = 0
	a.lastPublishAt = time.Time{}
	a.lastSize = 0
	a.peakSize = 0
	a.sizeDeltaCount = 0
	a.intervalDigest = tdigest.NewWithCompression(100)
	a.sizeDeltaDigest = tdigest.NewWithCompression(100)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
