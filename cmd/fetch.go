package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/gridsync/internal/engine/events"
	"github.com/surge-downloader/gridsync/internal/engine/scheduler"
	"github.com/surge-downloader/gridsync/internal/engine/types"
	"github.com/surge-downloader/gridsync/internal/tui"
	"github.com/surge-downloader/gridsync/internal/utils"
)

const lockFileName = ".gridsync.lock"

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the timesteps around a point in time",
		Long: `Fetch registers the selected layers, loads the timesteps adjacent to --at
first and waits for them. With --strategy aggressive every remaining
timestep is fetched in the background afterwards.`,
		Example: `  gridsync fetch --layers temp2m,wind10m:dual --from 20251028 --to 20251030
  gridsync fetch --strategy aggressive --output ./grids
  gridsync fetch --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseGridFlags(cmd, a.settings, time.Now())
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			useTUI, _ := cmd.Flags().GetBool("tui")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if output != "" {
				unlock, err := lockOutput(output)
				if err != nil {
					return err
				}
				defer unlock()
			}

			if useTUI {
				// The dashboard owns the terminal; keep only the log file.
				if err := a.redirectLog(io.Discard); err != nil {
					return err
				}
			}

			e, err := newEngine(a.settings, opts, a.logger)
			if err != nil {
				return err
			}
			defer e.sched.Dispose()

			if useTUI {
				err = runTUI(ctx, e, opts, a.logger)
			} else {
				err = runHeadless(ctx, cmd.OutOrStdout(), e, opts)
			}
			if err != nil {
				return err
			}

			if output != "" {
				n, err := exportLoaded(e.sched, e.layers, output)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s\n", n, output)
			}
			return nil
		},
	}

	addGridFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "write loaded timesteps under this directory")
	cmd.Flags().Bool("tui", false, "show the interactive dashboard")
	return cmd
}

// lockOutput takes an exclusive lock on the output directory so that two
// runs never write the same files.
func lockOutput(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("output directory %s is in use by another gridsync process", dir)
	}
	return func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}, nil
}

// initializeAll runs InitializeLayer for every layer concurrently.
func initializeAll(ctx context.Context, e *engine, opts gridOptions, onProgress func(types.LayerID, int, int)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, layer := range e.layers {
		g.Go(func() error {
			var report func(done, total int)
			if onProgress != nil {
				report = func(done, total int) { onProgress(layer, done, total) }
			}
			if err := e.sched.InitializeLayer(gctx, layer, opts.At, opts.Strategy, report); err != nil {
				return fmt.Errorf("initialize %s: %w", layer, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func runHeadless(ctx context.Context, out io.Writer, e *engine, opts gridOptions) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	e.sched.On(events.TimestampLoaded, func(ev events.Event) {
		m := ev.(events.TimestampLoadedMsg)
		printf("  %-10s %s  %8s  %s\n", m.Layer, m.Step.Label(),
			humanize.Bytes(uint64(m.Bytes)), m.Elapsed.Round(time.Millisecond))
	})
	e.sched.On(events.TimestampFailed, func(ev events.Event) {
		m := ev.(events.TimestampFailedMsg)
		printf("  %-10s %s  failed: %v\n", m.Layer, m.Step.Label(), m.Err)
	})

	printf("Fetching %d layers around %s (%s)\n", len(e.layers), opts.At.UTC().Format(time.RFC3339), opts.Strategy)
	if err := initializeAll(ctx, e, opts, nil); err != nil {
		return err
	}
	if err := e.sched.Done(ctx); err != nil {
		return err
	}
	if opts.Strategy == types.StrategyAggressive {
		if err := e.sched.Idle(ctx); err != nil {
			return err
		}
	}

	printSummary(out, e.sched, e.layers)
	return nil
}

func printSummary(out io.Writer, sched *scheduler.Scheduler, layers []types.LayerID) {
	fmt.Fprintln(out)
	for _, layer := range layers {
		p, err := sched.GetProgress(layer)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "%-10s %d/%d loaded, %d failed (%.0f%%)\n",
			layer, p.Loaded, p.Total, p.Failed, p.PercentComplete)
	}
	bw := sched.GetBandwidthStats()
	fmt.Fprintf(out, "Downloaded %s in %d requests, avg %s\n",
		humanize.Bytes(uint64(bw.TotalBytes)), bw.Samples, utils.FormatRate(bw.AverageBytesPerSecond))
}

// runTUI initializes the layers in the background and hands the terminal to
// the dashboard until the user quits.
func runTUI(ctx context.Context, e *engine, opts gridOptions, logger zerolog.Logger) error {
	stream, unsubscribe := e.sched.Events(tui.EventChannelBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := initializeAll(ctx, e, opts, nil); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("initialize layers")
		}
	}()

	return tui.Run(ctx, e.sched, stream, opts.At)
}
