package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// IsLoaded reports whether (layer, index) holds a payload. Unknown keys are
// not loaded.
func (s *Scheduler) IsLoaded(layer types.LayerID, index int) bool {
	return s.store.IsLoaded(layer, index)
}

// IsLoading reports whether (layer, index) is being fetched.
func (s *Scheduler) IsLoading(layer types.LayerID, index int) bool {
	return s.store.IsLoading(layer, index)
}

// GetState returns the record of (layer, index).
func (s *Scheduler) GetState(layer types.LayerID, index int) (types.TimestampState, error) {
	return s.store.Get(layer, index)
}

// GetData returns the payload of a loaded timestep.
func (s *Scheduler) GetData(layer types.LayerID, index int) (*types.Payload, error) {
	st, err := s.store.Get(layer, index)
	if err != nil {
		return nil, err
	}
	if st.Status != types.StatusLoaded {
		return nil, fmt.Errorf("%q[%d] is %s: %w", layer, index, st.Status, types.ErrNotLoaded)
	}
	return st.Payload, nil
}

func (s *Scheduler) GetLoadedIndices(layer types.LayerID) ([]int, error) {
	return s.store.LoadedIndices(layer)
}

func (s *Scheduler) GetFailedIndices(layer types.LayerID) ([]int, error) {
	return s.store.FailedIndices(layer)
}

func (s *Scheduler) GetLoadingIndices(layer types.LayerID) ([]int, error) {
	return s.store.LoadingIndices(layer)
}

// GetStatuses returns the status of every timestep of layer, by index.
func (s *Scheduler) GetStatuses(layer types.LayerID) ([]types.Status, error) {
	return s.store.Statuses(layer)
}

// GetProgress returns the counts of layer with percentage and ETA.
func (s *Scheduler) GetProgress(layer types.LayerID) (types.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked(layer)
}

func (s *Scheduler) progressLocked(layer types.LayerID) (types.Progress, error) {
	p, meanBytes, err := s.store.Counts(layer)
	if err != nil {
		return types.Progress{}, err
	}
	if p.Total > 0 {
		p.PercentComplete = float64(p.Loaded) / float64(p.Total) * 100
	}
	if s.bandwidth.HasSamples() {
		p.ETA, p.HasETA = computeETA(meanBytes, p.Empty, s.bandwidth.AverageBytesPerSecond())
	}
	return p, nil
}

// computeETA estimates the time to fetch empty more timesteps of
// meanBytes each at bytesPerSecond.
func computeETA(meanBytes float64, empty int, bytesPerSecond float64) (time.Duration, bool) {
	if empty <= 0 || meanBytes <= 0 || bytesPerSecond <= 0 {
		return 0, false
	}
	seconds := meanBytes * float64(empty) / bytesPerSecond
	return time.Duration(seconds * float64(time.Second)), true
}

// GetBandwidthStats returns the shared bandwidth measurements.
func (s *Scheduler) GetBandwidthStats() types.BandwidthStats {
	return s.bandwidth.Stats()
}

// Layers returns the registered layers in lexical order.
func (s *Scheduler) Layers() []types.LayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LayerID, 0, len(s.steps))
	for l := range s.steps {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TimeSteps returns a copy of the timeline of layer.
func (s *Scheduler) TimeSteps(layer types.LayerID) ([]types.TimeStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps, err := s.stepsLocked(layer)
	if err != nil {
		return nil, err
	}
	return append([]types.TimeStep(nil), steps...), nil
}

// ActiveDownloads returns the number of fetches in flight.
func (s *Scheduler) ActiveDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// QueueLength returns the number of queued requests.
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
