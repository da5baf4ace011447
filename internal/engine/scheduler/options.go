package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/metrics"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRuntime sets the concurrency, bandwidth window and adjacency window.
func WithRuntime(rc *types.RuntimeConfig) Option {
	return func(s *Scheduler) {
		s.runtime = rc
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.metrics = c
		}
	}
}

// WithBus shares an event bus with other components.
func WithBus(b *events.Bus) Option {
	return func(s *Scheduler) {
		if b != nil {
			s.bus = b
		}
	}
}

// WithClock replaces time.Now for timing fetches and stamping requests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}
