// Package bandwidth measures download throughput over a bounded window.
package bandwidth

import (
	"sync"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Tracker keeps the most recent samples in a fixed-size ring buffer and
// lifetime totals that are never evicted.
type Tracker struct {
	mu sync.RWMutex

	samples []types.BandwidthSample
	next    int // write position
	count   int // retained samples
	last    int // index of the most recent sample, -1 if none

	windowBytes int64
	windowTime  time.Duration

	totalBytes int64
	totalTime  time.Duration
}

// NewTracker returns a tracker that retains up to capacity samples.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = types.DefaultBandwidthSampleSize
	}
	return &Tracker{
		samples: make([]types.BandwidthSample, capacity),
		last:    -1,
	}
}

// Capacity returns the ring buffer size.
func (t *Tracker) Capacity() int {
	return len(t.samples)
}

// RecordSample appends a sample, evicting the oldest one when full.
func (t *Tracker) RecordSample(bytes int64, elapsed time.Duration) {
	if bytes < 0 || elapsed < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == len(t.samples) {
		old := t.samples[t.next]
		t.windowBytes -= old.Bytes
		t.windowTime -= old.Elapsed
	} else {
		t.count++
	}
	t.samples[t.next] = types.BandwidthSample{Bytes: bytes, Elapsed: elapsed}
	t.last = t.next
	t.next = (t.next + 1) % len(t.samples)

	t.windowBytes += bytes
	t.windowTime += elapsed
	t.totalBytes += bytes
	t.totalTime += elapsed
}

func rate(bytes int64, elapsed time.Duration) float64 {
	ms := float64(elapsed) / float64(time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return float64(bytes) / ms * 1000
}

func (t *Tracker) averageLocked() float64 {
	if t.count == 0 {
		return 0
	}
	return rate(t.windowBytes, t.windowTime)
}

// AverageBytesPerSecond is sum(bytes)/sum(ms)*1000 over the retained samples.
func (t *Tracker) AverageBytesPerSecond() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.averageLocked()
}

// CurrentBytesPerSecond uses the most recent sample only.
func (t *Tracker) CurrentBytesPerSecond() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last < 0 {
		return t.averageLocked()
	}
	s := t.samples[t.last]
	return rate(s.Bytes, s.Elapsed)
}

// HasSamples reports whether any sample is retained.
func (t *Tracker) HasSamples() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count > 0
}

// TotalBytesDownloaded returns the lifetime byte count.
func (t *Tracker) TotalBytesDownloaded() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalBytes
}

// TotalDownloadTime returns the lifetime summed download time.
func (t *Tracker) TotalDownloadTime() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalTime
}

// Samples returns the retained samples, oldest first.
func (t *Tracker) Samples() []types.BandwidthSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.BandwidthSample, 0, t.count)
	start := (t.next - t.count + len(t.samples)) % len(t.samples)
	for i := 0; i < t.count; i++ {
		out = append(out, t.samples[(start+i)%len(t.samples)])
	}
	return out
}

// Stats returns a snapshot of the tracker.
func (t *Tracker) Stats() types.BandwidthStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	current := t.averageLocked()
	if t.last >= 0 {
		s := t.samples[t.last]
		current = rate(s.Bytes, s.Elapsed)
	}
	return types.BandwidthStats{
		AverageBytesPerSecond: t.averageLocked(),
		CurrentBytesPerSecond: current,
		TotalBytes:            t.totalBytes,
		TotalTime:             t.totalTime,
		Samples:               t.count,
	}
}

// Reset clears the window and the lifetime totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.samples {
		t.samples[i] = types.BandwidthSample{}
	}
	t.next, t.count, t.last = 0, 0, -1
	t.windowBytes, t.windowTime = 0, 0
	t.totalBytes, t.totalTime = 0, 0
}
