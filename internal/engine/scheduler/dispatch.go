package scheduler

import (
	"context"
	"fmt"

	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/metrics"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// kick starts the dispatch loop unless one is already running. Concurrent
// callers coalesce into the running loop.
func (s *Scheduler) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.processing || s.queue.Len() == 0 {
		return
	}
	s.processing = true
	s.wg.Add(1)
	go s.dispatchLoop()
}

// dispatchLoop hands queued requests to fetch goroutines while slots are
// free. It exits once the queue is drained.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.mu.Lock()
			s.processing = false
			s.notifyLocked()
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		req, prio, ok := s.queue.Dequeue()
		if !ok || s.closed {
			s.processing = false
			s.notifyLocked()
			s.mu.Unlock()
			s.sem.Release(1)
			return
		}
		req.Priority = prio

		begun, err := s.store.Begin(req.Layer, req.Index, prio)
		if err != nil || !begun {
			s.queueChangedLocked()
			s.mu.Unlock()
			s.sem.Release(1)
			if err != nil {
				s.logger.Debug().Err(err).Str("layer", string(req.Layer)).Int("index", req.Index).Msg("dropping request")
			}
			continue
		}

		ctx, cancel := context.WithCancel(s.ctx)
		f := &inflight{
			id:         req.ID,
			layer:      req.Layer,
			index:      req.Index,
			step:       req.Step,
			priority:   prio,
			generation: s.generations[req.Layer],
			ctx:        ctx,
			cancel:     cancel,
		}
		s.inflight[f.id] = f
		s.metrics.FetchStarted(string(f.layer))
		s.queueChangedLocked()
		s.wg.Add(1)
		s.mu.Unlock()

		s.logger.Debug().
			Str("layer", string(f.layer)).
			Int("index", f.index).
			Stringer("priority", prio).
			Msg("dispatching")
		s.bus.Emit(events.TimestampLoadingMsg{
			Layer:    f.layer,
			Index:    f.index,
			Step:     f.step,
			Priority: prio,
		})
		go s.fetch(f)
	}
}

// load calls the loader, turning panics and nil payloads into errors.
func (s *Scheduler) load(f *inflight) (payload *types.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	payload, err = s.loader.Load(f.ctx, f.layer, f.step)
	if err == nil && payload == nil {
		err = fmt.Errorf("loader returned no payload for %s", f.step.Label())
	}
	return payload, err
}

// fetch runs one request to completion and records the outcome. Results
// of requests whose layer was cleared meanwhile are dropped silently.
func (s *Scheduler) fetch(f *inflight) {
	defer s.wg.Done()

	start := s.now()
	payload, loadErr := s.load(f)
	elapsed := s.now().Sub(start)

	var (
		pending  []events.Event
		bytes    int64
		progress types.Progress
		ticket   uint64
	)

	s.mu.Lock()
	stale := s.closed || f.generation != s.generations[f.layer]
	if stale {
		s.metrics.FetchDiscarded(string(f.layer))
	} else {
		ticket = s.nextTicket
		s.nextTicket++
		if loadErr == nil {
			bytes = payload.Size()
			s.bandwidth.RecordSample(bytes, elapsed)
		}
		if err := s.store.Finish(f.layer, f.index, payload, bytes, elapsed, loadErr); err != nil {
			s.logger.Error().Err(err).Str("layer", string(f.layer)).Int("index", f.index).Msg("recording fetch result")
		}
		result := metrics.ResultLoaded
		if loadErr != nil {
			result = metrics.ResultFailed
		}
		s.metrics.FetchFinished(string(f.layer), result, bytes, elapsed)

		if loadErr != nil {
			pending = append(pending, events.TimestampFailedMsg{
				Layer:    f.layer,
				Index:    f.index,
				Step:     f.step,
				Priority: f.priority,
				Err:      loadErr,
			})
		} else {
			pending = append(pending, events.TimestampLoadedMsg{
				Layer:    f.layer,
				Index:    f.index,
				Step:     f.step,
				Payload:  payload,
				Priority: f.priority,
				Bytes:    bytes,
				Elapsed:  elapsed,
			})
		}
		if p, err := s.progressLocked(f.layer); err == nil {
			progress = p
			pending = append(pending, events.DownloadProgressMsg{
				Layer:    f.layer,
				Index:    f.index,
				Step:     f.step,
				Progress: progress,
			})
		}
	}
	s.mu.Unlock()

	switch {
	case stale:
		s.logger.Debug().Str("layer", string(f.layer)).Int("index", f.index).Msg("discarding result of cleared layer")
	case loadErr != nil:
		s.logger.Warn().Err(loadErr).
			Str("layer", string(f.layer)).
			Int("index", f.index).
			Str("step", f.step.Label()).
			Msg("timestep failed")
	default:
		s.logger.Debug().
			Str("layer", string(f.layer)).
			Int("index", f.index).
			Int64("bytes", bytes).
			Dur("elapsed", elapsed).
			Int("loaded", progress.Loaded).
			Int("total", progress.Total).
			Msg("timestep loaded")
	}
	if !stale {
		s.deliverInOrder(ticket, pending)
	}

	// The slot is only freed after listeners have seen the result so the
	// dispatch order stays observable.
	s.mu.Lock()
	delete(s.inflight, f.id)
	s.notifyLocked()
	s.mu.Unlock()
	f.cancel()
	s.sem.Release(1)
}

// deliverInOrder emits evs once every result with a lower ticket has been
// delivered, so progress snapshots reach listeners in the order they were
// taken. It never holds s.mu, handlers may call back into the scheduler.
func (s *Scheduler) deliverInOrder(ticket uint64, evs []events.Event) {
	s.emitMu.Lock()
	for s.emitTurn != ticket {
		s.emitCond.Wait()
	}
	s.emitMu.Unlock()

	for _, ev := range evs {
		s.bus.Emit(ev)
	}

	s.emitMu.Lock()
	s.emitTurn++
	s.emitCond.Broadcast()
	s.emitMu.Unlock()
}
