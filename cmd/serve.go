package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler behind an HTTP control API",
		Long: `Serve registers the selected layers, starts loading around --at and
exposes progress, prioritization and Prometheus metrics over HTTP until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseGridFlags(cmd, a.settings, time.Now())
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("addr")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := newEngine(a.settings, opts, a.logger)
			if err != nil {
				return err
			}
			defer e.sched.Dispose()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gridsync API listening on http://%s\n", ln.Addr())
			return serve(ctx, ln, e, opts, a)
		},
	}

	addGridFlags(cmd)
	cmd.Flags().String("addr", "127.0.0.1:7070", "listen address")
	return cmd
}

// serve runs the API on ln until ctx is cancelled. Layer initialization runs
// alongside; its failures are logged and do not stop the server.
func serve(ctx context.Context, ln net.Listener, e *engine, opts gridOptions, a *app) error {
	srv := &http.Server{
		Handler:           newRouter(e.sched, e.registry, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, layer := range e.layers {
		g.Go(func() error {
			err := e.sched.InitializeLayer(gctx, layer, opts.At, opts.Strategy, nil)
			switch {
			case err == nil:
				a.logger.Info().Str("layer", string(layer)).Msg("adjacent timesteps ready")
			case gctx.Err() != nil, errors.Is(err, types.ErrSchedulerClosed):
			default:
				a.logger.Warn().Err(err).Str("layer", string(layer)).Msg("initialize layer")
			}
			return nil
		})
	}
	return g.Wait()
}
