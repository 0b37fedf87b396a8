// Package timeseries provides time-windowed tracking of artifact growth.
//
// This is an internal library designed for simplicity and testability.
// It records the observed byte size of the artifact file and computes
// rolling growth rates over configurable time windows (1s, 30s, 60s).
//
// Thread-safe: Observe() and GetStats() acquire the ring buffer lock.
// Memory: ~5KB for 300 samples (5 minutes at 1 observation/sec).
package timeseries

import (
	"sync"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 observation/sec)
	ringBufferSize = 300

	// Window durations for rolling growth rates
	window1s  = 1 * time.Second
	window30s = 30 * time.Second
	window60s = 60 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// sample represents a point-in-time observation of the artifact size.
type sample struct {
	timestamp time.Time
	size      int64
}

// GrowthTracker records artifact file sizes and computes rolling growth
// rates. The visualizer rewrites the whole file each cycle, so rates can be
// negative when a rewrite produces a smaller image.
//
// Usage:
//
//	tracker := NewGrowthTracker()
//	tracker.Observe(size)  // Called once per watcher poll tick
//	stats := tracker.GetStats()
type GrowthTracker struct {
	samples  []sample
	writeIdx int // Next write position in ring buffer
	mu       sync.RWMutex

	currentSize int64
	startTime   time.Time

	// Clock for testability
	clock Clock
}

// GrowthStats contains computed rolling growth rates at a point in time.
type GrowthStats struct {
	// CurrentSize is the most recently observed artifact size in bytes
	CurrentSize int64

	// Rolling growth rates (bytes per second)
	Rate1s  float64
	Rate30s float64
	Rate60s float64

	// RateOverall is the growth rate since tracking started
	RateOverall float64
}

// NewGrowthTracker creates a new tracker with real clock.
func NewGrowthTracker() *GrowthTracker {
	return NewGrowthTrackerWithClock(realClock{})
}

// NewGrowthTrackerWithClock creates a tracker with custom clock for testing.
func NewGrowthTrackerWithClock(clock Clock) *GrowthTracker {
	now := clock.Now()
	t := &GrowthTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	// Record initial sample at t=0 with size 0
	t.samples = append(t.samples, sample{timestamp: now, size: 0})
	return t
}

// Observe records the current artifact size with a timestamp.
// Call this once per watcher poll tick.
func (t *GrowthTracker) Observe(size int64) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentSize = size
	newSample := sample{timestamp: now, size: size}

	if len(t.samples) < ringBufferSize {
		// Buffer not yet full - append
		t.samples = append(t.samples, newSample)
	} else {
		// Buffer full - overwrite oldest
		t.samples[t.writeIdx] = newSample
		t.writeIdx = (t.writeIdx + 1) % ringBufferSize
	}
}

// GetStats computes and returns current growth statistics.
// Always returns valid data, using whatever history is available.
func (t *GrowthTracker) GetStats() GrowthStats {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := GrowthStats{
		CurrentSize: t.currentSize,
	}

	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed > 0 {
		stats.RateOverall = float64(t.currentSize) / elapsed
	}

	stats.Rate1s = t.rateOverWindow(now, window1s)
	stats.Rate30s = t.rateOverWindow(now, window30s)
	stats.Rate60s = t.rateOverWindow(now, window60s)

	return stats
}

// rateOverWindow calculates growth in bytes/sec over the specified window.
// Must be called with mu held (at least RLock).
func (t *GrowthTracker) rateOverWindow(now time.Time, window time.Duration) float64 {
	if len(t.samples) == 0 {
		return 0
	}

	targetTime := now.Add(-window)

	// Find the sample closest to (but not after) targetTime
	var bestSample *sample
	var bestDiff time.Duration = -1

	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(targetTime) {
			continue // Sample is within the window, skip
		}
		diff := targetTime.Sub(s.timestamp)
		if bestDiff < 0 || diff < bestDiff {
			bestSample = s
			bestDiff = diff
		}
	}

	// If no sample before targetTime, use the oldest sample we have
	if bestSample == nil {
		bestSample = t.oldestSample()
	}

	if bestSample == nil {
		return 0
	}

	grown := t.currentSize - bestSample.size
	actualElapsed := now.Sub(bestSample.timestamp).Seconds()

	if actualElapsed <= 0 {
		return 0 // Avoid division by zero
	}

	return float64(grown) / actualElapsed
}

// oldestSample returns the oldest sample in the ring buffer.
// Must be called with mu held.
func (t *GrowthTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}

	if len(t.samples) < ringBufferSize {
		// Buffer not full yet - oldest is at index 0
		return &t.samples[0]
	}

	// Buffer full - oldest is at writeIdx (next to be overwritten)
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *GrowthTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.currentSize = 0
	t.samples = t.samples[:0]
	t.samples = append(t.samples, sample{timestamp: now, size: 0})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
// Useful for testing.
func (t *GrowthTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
