// Package metrics instruments the download scheduler.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels a finished fetch.
type Result string

const (
	ResultLoaded Result = "loaded"
	ResultFailed Result = "failed"
)

// Collector receives scheduler measurements. Calls happen inline with
// dispatch and must be cheap.
type Collector interface {
	FetchStarted(layer string)
	FetchFinished(layer string, result Result, bytes int64, elapsed time.Duration)
	FetchDiscarded(layer string)
	SetQueueDepth(n int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) FetchStarted(string)                                 {}
func (noopCollector) FetchFinished(string, Result, int64, time.Duration) {}
func (noopCollector) FetchDiscarded(string)                               {}
func (noopCollector) SetQueueDepth(int)                                   {}

// PrometheusCollector exposes scheduler metrics via Prometheus.
type PrometheusCollector struct {
	inFlight   prometheus.Gauge
	fetches    *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	discarded  *prometheus.CounterVec
}

// NewPrometheusCollector registers the scheduler metrics with reg. Metrics
// that are already registered are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var (
		p   PrometheusCollector
		err error
	)
	if p.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsync_fetches_in_flight",
		Help: "Number of timestep fetches currently running.",
	})); err != nil {
		return nil, err
	}
	if p.fetches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsync_fetches_total",
		Help: "Finished timestep fetches by layer and result.",
	}, []string{"layer", "result"})); err != nil {
		return nil, err
	}
	if p.bytes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsync_bytes_downloaded_total",
		Help: "Payload bytes of successfully loaded timesteps.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridsync_fetch_duration_seconds",
		Help:    "Duration of successful timestep fetches.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if p.queueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridsync_queue_depth",
		Help: "Number of queued download requests.",
	})); err != nil {
		return nil, err
	}
	if p.discarded, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsync_fetches_discarded_total",
		Help: "Fetch results dropped because their layer was cleared.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	return &p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// FetchStarted increments the in-flight gauge.
func (p *PrometheusCollector) FetchStarted(string) {
	if p == nil {
		return
	}
	p.inFlight.Inc()
}

// FetchFinished records the outcome of a fetch.
func (p *PrometheusCollector) FetchFinished(layer string, result Result, bytes int64, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.inFlight.Dec()
	p.fetches.WithLabelValues(layer, string(result)).Inc()
	if result == ResultLoaded {
		p.bytes.WithLabelValues(layer).Add(float64(bytes))
		p.duration.WithLabelValues(layer).Observe(elapsed.Seconds())
	}
}

// FetchDiscarded records a late result for a cleared layer.
func (p *PrometheusCollector) FetchDiscarded(layer string) {
	if p == nil {
		return
	}
	p.inFlight.Dec()
	p.discarded.WithLabelValues(layer).Inc()
}

// SetQueueDepth updates the queue gauge.
func (p *PrometheusCollector) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
