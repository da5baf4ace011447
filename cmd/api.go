package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/gridsync/internal/engine/metrics"
	"github.com/surge-downloader/gridsync/internal/engine/scheduler"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// layerSummary is one entry of GET /layers.
type layerSummary struct {
	Layer    types.LayerID    `json:"layer"`
	Steps    int              `json:"steps"`
	Progress types.Progress   `json:"progress"`
	Statuses []string         `json:"statuses"`
	Times    []types.TimeStep `json:"timesteps,omitempty"`
}

type api struct {
	sched  *scheduler.Scheduler
	logger zerolog.Logger
}

// newRouter exposes the scheduler over HTTP.
func newRouter(sched *scheduler.Scheduler, gatherer prometheus.Gatherer, logger zerolog.Logger) http.Handler {
	h := &api{sched: sched, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/layers", h.listLayers)
	r.Route("/layers/{layer}", func(r chi.Router) {
		r.Get("/", h.getLayer)
		r.Delete("/", h.clearLayer)
		r.Get("/progress", h.getProgress)
		r.Post("/prioritize", h.prioritize)
		r.Post("/download-all", h.downloadAll)
		r.Post("/retry", h.retry)
	})
	r.Get("/bandwidth", h.bandwidth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (h *api) summary(layer types.LayerID, withSteps bool) (layerSummary, error) {
	steps, err := h.sched.TimeSteps(layer)
	if err != nil {
		return layerSummary{}, err
	}
	progress, err := h.sched.GetProgress(layer)
	if err != nil {
		return layerSummary{}, err
	}
	statuses, err := h.sched.GetStatuses(layer)
	if err != nil {
		return layerSummary{}, err
	}
	out := layerSummary{Layer: layer, Steps: len(steps), Progress: progress}
	out.Statuses = make([]string, len(statuses))
	for i, st := range statuses {
		out.Statuses[i] = st.String()
	}
	if withSteps {
		out.Times = steps
	}
	return out, nil
}

func (h *api) listLayers(w http.ResponseWriter, r *http.Request) {
	layers := h.sched.Layers()
	out := make([]layerSummary, 0, len(layers))
	for _, layer := range layers {
		s, err := h.summary(layer, false)
		if err != nil {
			// Cleared between Layers and summary.
			continue
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *api) getLayer(w http.ResponseWriter, r *http.Request) {
	s, err := h.summary(layerParam(r), true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *api) getProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.sched.GetProgress(layerParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *api) prioritize(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at: " + err.Error()})
			return
		}
		at = t
	}
	if err := h.sched.PrioritizeTimestamps(layerParam(r), at); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *api) downloadAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.sched.DownloadAllTimesteps(layerParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

func (h *api) retry(w http.ResponseWriter, r *http.Request) {
	n, err := h.sched.RetryFailed(layerParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"retried": n})
}

func (h *api) clearLayer(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.ClearLayer(layerParam(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *api) bandwidth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.GetBandwidthStats())
}

func layerParam(r *http.Request) types.LayerID {
	return types.LayerID(chi.URLParam(r, "layer"))
}

func (h *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotRegistered):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrSchedulerClosed):
		status = http.StatusServiceUnavailable
	default:
		h.logger.Error().Err(err).Msg("api request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
