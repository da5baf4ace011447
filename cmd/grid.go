package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/gridsync/internal/config"
	"github.com/surge-downloader/gridsync/internal/engine/fetch"
	"github.com/surge-downloader/gridsync/internal/engine/metrics"
	"github.com/surge-downloader/gridsync/internal/engine/scheduler"
	"github.com/surge-downloader/gridsync/internal/engine/timeline"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

const dateLayout = "20060102"

// gridOptions is the dataset selection shared by fetch and serve.
type gridOptions struct {
	BaseURL  string
	Layers   []config.LayerSpec
	From     time.Time
	To       time.Time
	Cycles   []int
	At       time.Time
	Strategy types.Strategy
}

func addGridFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", "", "dataset root URL (default from settings)")
	cmd.Flags().StringSlice("layers", nil, "layers to fetch, e.g. temp2m,wind10m:dual (default from settings)")
	cmd.Flags().String("from", "", "first day, YYYYMMDD (default: today)")
	cmd.Flags().String("to", "", "last day, YYYYMMDD (default: two days after --from)")
	cmd.Flags().String("cycles", "", "cycle hours, e.g. 0,6,12,18 (default from settings)")
	cmd.Flags().String("at", "", "current time, RFC3339 (default: now)")
	cmd.Flags().String("strategy", "", "on-demand or aggressive (default from settings)")
}

// parseGridFlags merges the grid flags with the settings.
func parseGridFlags(cmd *cobra.Command, s *config.Settings, now time.Time) (gridOptions, error) {
	var opts gridOptions
	flags := cmd.Flags()

	opts.BaseURL, _ = flags.GetString("base-url")
	if opts.BaseURL == "" {
		opts.BaseURL = s.Network.BaseURL
	}

	layerList, _ := flags.GetStringSlice("layers")
	if len(layerList) == 0 {
		layerList = s.Grid.Layers
	}
	layers, err := config.ParseLayers(layerList)
	if err != nil {
		return opts, fmt.Errorf("--layers: %w", err)
	}
	if len(layers) == 0 {
		return opts, fmt.Errorf("no layers selected")
	}
	opts.Layers = layers

	today := now.UTC().Truncate(24 * time.Hour)
	fromStr, _ := flags.GetString("from")
	opts.From, err = parseDay(fromStr, today)
	if err != nil {
		return opts, fmt.Errorf("--from: %w", err)
	}
	toStr, _ := flags.GetString("to")
	to, err := parseDay(toStr, opts.From.AddDate(0, 0, 2))
	if err != nil {
		return opts, fmt.Errorf("--to: %w", err)
	}
	// The last day is inclusive.
	opts.To = to.Add(24*time.Hour - time.Second)
	if opts.To.Before(opts.From) {
		return opts, fmt.Errorf("--to is before --from")
	}

	cyclesStr, _ := flags.GetString("cycles")
	opts.Cycles = s.Grid.Cycles
	if cyclesStr != "" {
		if opts.Cycles, err = parseCycles(cyclesStr); err != nil {
			return opts, fmt.Errorf("--cycles: %w", err)
		}
	}

	atStr, _ := flags.GetString("at")
	opts.At = now
	if atStr != "" {
		if opts.At, err = time.Parse(time.RFC3339, atStr); err != nil {
			return opts, fmt.Errorf("--at: %w", err)
		}
	}

	strategy, _ := flags.GetString("strategy")
	if strategy == "" {
		strategy = s.Scheduler.Strategy
	}
	if opts.Strategy, err = types.ParseStrategy(strategy); err != nil {
		return opts, fmt.Errorf("--strategy: %w", err)
	}
	return opts, nil
}

func parseDay(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func parseCycles(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := strconv.Atoi(strings.TrimSuffix(part, "z"))
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid cycle hour %q", part)
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cycle hours given")
	}
	return out, nil
}

// engine is a scheduler wired to the HTTP loader and a private metrics
// registry.
type engine struct {
	sched    *scheduler.Scheduler
	registry *prometheus.Registry
	layers   []types.LayerID
}

func newEngine(s *config.Settings, opts gridOptions, logger zerolog.Logger) (*engine, error) {
	rc := types.ConvertRuntimeConfig(s.ToRuntimeConfig())

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheusCollector(registry)
	if err != nil {
		return nil, err
	}

	loader := fetch.NewLoader(opts.BaseURL, rc)
	sched := scheduler.New(loader,
		scheduler.WithRuntime(rc),
		scheduler.WithLogger(logger.With().Str("component", "scheduler").Logger()),
		scheduler.WithMetrics(collector),
	)

	e := &engine{sched: sched, registry: registry}
	for _, spec := range opts.Layers {
		steps, err := timeline.Generate(opts.From, opts.To, opts.Cycles, spec.Dual)
		if err != nil {
			sched.Dispose()
			return nil, fmt.Errorf("layer %s: %w", spec.Name, err)
		}
		id := types.LayerID(spec.Name)
		if err := sched.RegisterLayer(id, steps); err != nil {
			sched.Dispose()
			return nil, err
		}
		e.layers = append(e.layers, id)
	}
	return e, nil
}
