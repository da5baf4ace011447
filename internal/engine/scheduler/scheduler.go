// Package scheduler decides which timestep to fetch next across all
// registered layers, bounded by a global concurrency limit.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/surge-downloader/gridsync/internal/engine/bandwidth"
	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/metrics"
	"github.com/surge-downloader/gridsync/internal/engine/queue"
	"github.com/surge-downloader/gridsync/internal/engine/state"
	"github.com/surge-downloader/gridsync/internal/engine/timeline"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Loader fetches the payload of one timestep.
type Loader interface {
	Load(ctx context.Context, layer types.LayerID, step types.TimeStep) (*types.Payload, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, layer types.LayerID, step types.TimeStep) (*types.Payload, error)

func (f LoaderFunc) Load(ctx context.Context, layer types.LayerID, step types.TimeStep) (*types.Payload, error) {
	return f(ctx, layer, step)
}

// inflight is one running fetch.
type inflight struct {
	id         string
	layer      types.LayerID
	index      int
	step       types.TimeStep
	priority   types.Priority
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

// Scheduler owns the per-layer state, the request queue and the dispatch loop.
type Scheduler struct {
	loader  Loader
	runtime *types.RuntimeConfig
	logger  zerolog.Logger
	metrics metrics.Collector
	bus     *events.Bus
	now     func() time.Time

	store     *state.Store
	bandwidth *bandwidth.Tracker
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	queue       *queue.PriorityQueue[*types.DownloadRequest]
	steps       map[types.LayerID][]types.TimeStep
	generations map[types.LayerID]uint64
	inflight    map[string]*inflight
	processing  bool
	closed      bool
	changed     chan struct{}
	nextTicket  uint64 // completion order, taken under mu

	// Fetch results are delivered in the order their snapshots were taken.
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitTurn uint64
}

// New creates a scheduler that fetches through loader.
func New(loader Loader, opts ...Option) *Scheduler {
	s := &Scheduler{
		loader:      loader,
		logger:      zerolog.Nop(),
		metrics:     metrics.Noop(),
		now:         time.Now,
		store:       state.NewStore(),
		queue:       queue.New[*types.DownloadRequest](),
		steps:       make(map[types.LayerID][]types.TimeStep),
		generations: make(map[types.LayerID]uint64),
		inflight:    make(map[string]*inflight),
		changed:     make(chan struct{}),
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}
	s.bandwidth = bandwidth.NewTracker(s.runtime.GetBandwidthSampleSize())
	s.sem = semaphore.NewWeighted(int64(s.runtime.GetMaxConcurrentDownloads()))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// MaxConcurrentDownloads returns the global dispatch bound.
func (s *Scheduler) MaxConcurrentDownloads() int {
	return s.runtime.GetMaxConcurrentDownloads()
}

// notifyLocked wakes everything blocked in waitUntil.
func (s *Scheduler) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// queueChangedLocked publishes the queue depth and wakes waiters.
func (s *Scheduler) queueChangedLocked() {
	s.metrics.SetQueueDepth(s.queue.Len())
	s.notifyLocked()
}

// waitUntil blocks until cond (evaluated under s.mu) holds.
func (s *Scheduler) waitUntil(ctx context.Context, cond func() (bool, error)) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return types.ErrSchedulerClosed
		}
		ch := s.changed
		ok, err := cond()
		s.mu.Unlock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) stepsLocked(layer types.LayerID) ([]types.TimeStep, error) {
	steps, ok := s.steps[layer]
	if !ok {
		return nil, fmt.Errorf("%q: %w", layer, types.ErrNotRegistered)
	}
	return steps, nil
}

// RegisterLayer creates an empty record for every step of layer.
func (s *Scheduler) RegisterLayer(layer types.LayerID, steps []types.TimeStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%q: %w", layer, types.ErrNoTimeSteps)
	}
	for i := 1; i < len(steps); i++ {
		if !steps[i].Time.After(steps[i-1].Time) {
			return fmt.Errorf("%q step %d (%s): %w", layer, i, steps[i].Label(), types.ErrUnorderedTimeSteps)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrSchedulerClosed
	}
	if err := s.store.Register(layer, len(steps)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.steps[layer] = append([]types.TimeStep(nil), steps...)
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info().Str("layer", string(layer)).Int("steps", len(steps)).Msg("layer registered")
	s.bus.Emit(events.LayerRegisteredMsg{Layer: layer, Steps: len(steps)})
	return nil
}

// InitializeLayer loads the timesteps around current at critical priority
// and waits for them to settle, reporting progress after each one. With
// the aggressive strategy every remaining empty step is then queued at
// background priority.
func (s *Scheduler) InitializeLayer(ctx context.Context, layer types.LayerID, current time.Time, strategy types.Strategy, onProgress func(done, total int)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrSchedulerClosed
	}
	steps, err := s.stepsLocked(layer)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	indices := timeline.Window(steps, current, s.runtime.GetWindowSize())
	for _, idx := range indices {
		if err := s.raiseLocked(layer, idx, types.PriorityCritical); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.queueChangedLocked()
	s.mu.Unlock()

	s.logger.Debug().
		Str("layer", string(layer)).
		Ints("indices", indices).
		Str("strategy", string(strategy)).
		Msg("initializing layer")
	s.kick()

	total := len(indices)
	reported := 0
	err = s.waitUntil(ctx, func() (bool, error) {
		done := 0
		for _, idx := range indices {
			st, err := s.store.Get(layer, idx)
			if err != nil {
				return false, err
			}
			if st.Status == types.StatusLoaded || st.Status == types.StatusFailed {
				done++
			}
		}
		if done > reported && onProgress != nil {
			reported = done
			// Called under s.mu; release it so the callback may query.
			s.mu.Unlock()
			onProgress(done, total)
			s.mu.Lock()
		}
		return done == total, nil
	})
	if err != nil {
		return err
	}

	if strategy == types.StrategyAggressive {
		if _, err := s.DownloadAllTimesteps(layer); err != nil {
			return err
		}
	}
	return nil
}

// PrioritizeTimestamps moves the timesteps around current to the front of
// the queue at high priority without disturbing other queued work.
func (s *Scheduler) PrioritizeTimestamps(layer types.LayerID, current time.Time) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrSchedulerClosed
	}
	steps, err := s.stepsLocked(layer)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	indices := timeline.Window(steps, current, s.runtime.GetWindowSize())
	for _, idx := range indices {
		if err := s.raiseLocked(layer, idx, types.PriorityHigh); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.queueChangedLocked()
	s.mu.Unlock()

	s.kick()
	return nil
}

func matchRequest(layer types.LayerID, index int) func(*types.DownloadRequest) bool {
	return func(r *types.DownloadRequest) bool {
		return r.Layer == layer && r.Index == index
	}
}

// raiseLocked makes sure (layer, index) is handled at priority p or above.
// Empty indices are promoted or enqueued, loading indices have their
// in-flight priority raised, loaded and failed indices are left alone.
func (s *Scheduler) raiseLocked(layer types.LayerID, index int, p types.Priority) error {
	st, err := s.store.Get(layer, index)
	if err != nil {
		return err
	}
	switch st.Status {
	case types.StatusEmpty:
		match := matchRequest(layer, index)
		if s.queue.Promote(match, p) == 0 && !s.queue.Contains(match) {
			s.enqueueLocked(layer, index, p)
		}
	case types.StatusLoading:
		if _, err := s.store.Raise(layer, index, p); err != nil {
			return err
		}
		for _, f := range s.inflight {
			if f.layer == layer && f.index == index && f.priority < p {
				f.priority = p
			}
		}
	}
	return nil
}

func (s *Scheduler) enqueueLocked(layer types.LayerID, index int, p types.Priority) {
	s.queue.Enqueue(&types.DownloadRequest{
		ID:         uuid.NewString(),
		Layer:      layer,
		Index:      index,
		Step:       s.steps[layer][index],
		Priority:   p,
		EnqueuedAt: s.now(),
	}, p)
}

// queuedIndicesLocked returns the indices of layer that have a queued request.
func (s *Scheduler) queuedIndicesLocked(layer types.LayerID) map[int]bool {
	queued := make(map[int]bool)
	for _, r := range s.queue.Items() {
		if r.Layer == layer {
			queued[r.Index] = true
		}
	}
	return queued
}

// DownloadAllTimesteps queues every empty, not yet queued step of layer at
// background priority and returns how many were queued.
func (s *Scheduler) DownloadAllTimesteps(layer types.LayerID) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, types.ErrSchedulerClosed
	}
	empty, err := s.store.EmptyIndices(layer)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	queued := s.queuedIndicesLocked(layer)
	n := 0
	for _, idx := range empty {
		if !queued[idx] {
			s.enqueueLocked(layer, idx, types.PriorityBackground)
			n++
		}
	}
	s.queueChangedLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("layer", string(layer)).Int("queued", n).Msg("download all")
	s.kick()
	return n, nil
}

// RetryFailed resets the failed steps of layer to empty and queues them at
// background priority. Failed steps are never retried otherwise.
func (s *Scheduler) RetryFailed(layer types.LayerID) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, types.ErrSchedulerClosed
	}
	failed, err := s.store.FailedIndices(layer)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	queued := s.queuedIndicesLocked(layer)
	for _, idx := range failed {
		if err := s.store.Reset(layer, idx); err != nil {
			s.mu.Unlock()
			return 0, err
		}
		if !queued[idx] {
			s.enqueueLocked(layer, idx, types.PriorityBackground)
		}
	}
	s.queueChangedLocked()
	s.mu.Unlock()

	if len(failed) > 0 {
		s.logger.Info().Str("layer", string(layer)).Ints("indices", failed).Msg("retrying failed timesteps")
	}
	s.kick()
	return len(failed), nil
}

// ClearLayer drops everything known about layer. Queued requests are
// removed, in-flight fetches are cancelled and their late results ignored.
func (s *Scheduler) ClearLayer(layer types.LayerID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrSchedulerClosed
	}
	if _, err := s.stepsLocked(layer); err != nil {
		s.mu.Unlock()
		return err
	}
	removed := s.queue.RemoveWhere(func(r *types.DownloadRequest) bool { return r.Layer == layer })
	cancelled := 0
	for _, f := range s.inflight {
		if f.layer == layer {
			f.cancel()
			cancelled++
		}
	}
	s.generations[layer]++
	s.store.Remove(layer)
	delete(s.steps, layer)
	s.queueChangedLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("layer", string(layer)).
		Int("dequeued", removed).
		Int("cancelled", cancelled).
		Msg("layer cleared")
	s.bus.Emit(events.LayerClearedMsg{Layer: layer})
	return nil
}

// UnregisterLayer is ClearLayer; the layer can be registered again afterwards.
func (s *Scheduler) UnregisterLayer(layer types.LayerID) error {
	return s.ClearLayer(layer)
}

func (s *Scheduler) urgentPendingLocked() bool {
	for _, f := range s.inflight {
		if f.priority.IsUrgent() && f.generation == s.generations[f.layer] {
			return true
		}
	}
	return s.queue.CountWhere(func(_ *types.DownloadRequest, p types.Priority) bool {
		return p.IsUrgent()
	}) > 0
}

// Done blocks while any critical or high priority work is queued or in
// flight. Background work may continue after it returns.
func (s *Scheduler) Done(ctx context.Context) error {
	return s.waitUntil(ctx, func() (bool, error) {
		return !s.urgentPendingLocked(), nil
	})
}

// Idle blocks until nothing is queued or in flight.
func (s *Scheduler) Idle(ctx context.Context) error {
	return s.waitUntil(ctx, func() (bool, error) {
		return len(s.inflight) == 0 && s.queue.Len() == 0, nil
	})
}

// Dispose cancels all work and waits for running fetches to return. Later
// calls that change state fail with ErrSchedulerClosed.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue.RemoveWhere(func(*types.DownloadRequest) bool { return true })
	for _, f := range s.inflight {
		f.cancel()
	}
	s.queueChangedLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Debug().Msg("scheduler disposed")
}

// On subscribes handler to the named event.
func (s *Scheduler) On(name events.Name, handler events.Handler) string {
	return s.bus.On(name, handler)
}

// Off removes a subscription made with On.
func (s *Scheduler) Off(name events.Name, id string) bool {
	return s.bus.Off(name, id)
}

// Events streams every event into a buffered channel. See events.Bus.Stream.
func (s *Scheduler) Events(buffer int) (<-chan events.Event, func()) {
	return s.bus.Stream(buffer)
}
