package bandwidth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

func TestEmptyTracker(t *testing.T) {
	tr := NewTracker(10)

	assert.Zero(t, tr.AverageBytesPerSecond())
	assert.Zero(t, tr.CurrentBytesPerSecond())
	assert.False(t, tr.HasSamples())
	assert.Empty(t, tr.Samples())
}

func TestAverageAndCurrent(t *testing.T) {
	tr := NewTracker(10)
	tr.RecordSample(1_000_000, 1000*time.Millisecond)
	tr.RecordSample(2_000_000, 1000*time.Millisecond)

	assert.InDelta(t, 1_500_000, tr.AverageBytesPerSecond(), 1)
	assert.InDelta(t, 2_000_000, tr.CurrentBytesPerSecond(), 1)
}

func TestEviction(t *testing.T) {
	tr := NewTracker(2)
	tr.RecordSample(100, time.Second)
	tr.RecordSample(200, time.Second)
	tr.RecordSample(400, time.Second) // evicts 100

	assert.InDelta(t, 300, tr.AverageBytesPerSecond(), 0.001)
	assert.Equal(t, []types.BandwidthSample{
		{Bytes: 200, Elapsed: time.Second},
		{Bytes: 400, Elapsed: time.Second},
	}, tr.Samples())

	// Lifetime totals are never evicted.
	assert.Equal(t, int64(700), tr.TotalBytesDownloaded())
	assert.Equal(t, 3*time.Second, tr.TotalDownloadTime())
}

func TestZeroElapsedSample(t *testing.T) {
	tr := NewTracker(4)
	tr.RecordSample(500, 0)

	assert.Zero(t, tr.CurrentBytesPerSecond())
	assert.Zero(t, tr.AverageBytesPerSecond())

	tr.RecordSample(500, 500*time.Millisecond)
	assert.InDelta(t, 2000, tr.AverageBytesPerSecond(), 0.001)
}

func TestNegativeSamplesIgnored(t *testing.T) {
	tr := NewTracker(4)
	tr.RecordSample(-1, time.Second)
	tr.RecordSample(10, -time.Second)
	assert.False(t, tr.HasSamples())
}

func TestStats(t *testing.T) {
	tr := NewTracker(3)
	tr.RecordSample(3000, 3*time.Second)
	tr.RecordSample(500, 250*time.Millisecond)

	s := tr.Stats()
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, int64(3500), s.TotalBytes)
	assert.Equal(t, 3250*time.Millisecond, s.TotalTime)
	assert.InDelta(t, 2000, s.CurrentBytesPerSecond, 0.001)
	assert.InDelta(t, 3500.0/3.25, s.AverageBytesPerSecond, 0.001)
}

func TestReset(t *testing.T) {
	tr := NewTracker(3)
	tr.RecordSample(3000, time.Second)
	tr.Reset()

	assert.False(t, tr.HasSamples())
	assert.Zero(t, tr.TotalBytesDownloaded())
	assert.Zero(t, tr.Stats().Samples)
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, types.DefaultBandwidthSampleSize, NewTracker(0).Capacity())
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordSample(100, 10*time.Millisecond)
			_ = tr.Stats()
		}()
	}
	wg.Wait()

	require.Equal(t, int64(5000), tr.TotalBytesDownloaded())
	assert.Len(t, tr.Samples(), 8)
	assert.InDelta(t, 10_000, tr.AverageBytesPerSecond(), 0.001)
}
