package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.FetchStarted("a")
	collector.FetchFinished("a", ResultLoaded, 1, time.Second)
	collector.FetchDiscarded("a")
	collector.SetQueueDepth(3)
}

func TestNilPrometheusCollector(t *testing.T) {
	var p *PrometheusCollector
	require.NotPanics(t, func() {
		p.FetchStarted("a")
		p.FetchFinished("a", ResultFailed, 0, 0)
		p.FetchDiscarded("a")
		p.SetQueueDepth(1)
	})
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	p.FetchStarted("temp2m")
	p.FetchStarted("temp2m")
	p.FetchStarted("wind10m")
	p.FetchFinished("temp2m", ResultLoaded, 2048, 250*time.Millisecond)
	p.FetchFinished("temp2m", ResultFailed, 0, 0)
	p.FetchDiscarded("wind10m")
	p.SetQueueDepth(7)

	families := gather(t, reg)

	require.Equal(t, 0.0, families["gridsync_fetches_in_flight"].Metric[0].GetGauge().GetValue())
	require.Equal(t, 7.0, families["gridsync_queue_depth"].Metric[0].GetGauge().GetValue())

	fetches := families["gridsync_fetches_total"]
	require.Len(t, fetches.Metric, 2)
	for _, m := range fetches.Metric {
		require.Equal(t, "temp2m", labelValue(m, "layer"))
		require.Equal(t, 1.0, m.GetCounter().GetValue())
	}

	bytes := families["gridsync_bytes_downloaded_total"]
	require.Len(t, bytes.Metric, 1)
	require.Equal(t, 2048.0, bytes.Metric[0].GetCounter().GetValue())

	hist := families["gridsync_fetch_duration_seconds"].Metric[0].GetHistogram()
	require.EqualValues(t, 1, hist.GetSampleCount())
	require.InDelta(t, 0.25, hist.GetSampleSum(), 1e-9)

	discarded := families["gridsync_fetches_discarded_total"]
	require.Equal(t, "wind10m", labelValue(discarded.Metric[0], "layer"))
	require.Equal(t, 1.0, discarded.Metric[0].GetCounter().GetValue())
}

func TestPrometheusCollectorReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, first.fetches, again.fetches)

	first.FetchFinished("a", ResultFailed, 0, 0)
	again.FetchFinished("a", ResultFailed, 0, 0)

	families := gather(t, reg)
	require.Equal(t, 2.0, families["gridsync_fetches_total"].Metric[0].GetCounter().GetValue())
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	p.SetQueueDepth(3)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "gridsync_queue_depth 3"), string(body))
}
