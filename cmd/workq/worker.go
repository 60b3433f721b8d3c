package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/workq/api"
	"github.com/xraph/workq/engine"
)

func newWorkerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker pool until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.withEngine(ctx, func(eng *engine.Engine) error {
				return runWorker(ctx, a, eng)
			})
		},
	}

	f := cmd.Flags()
	f.Int("workers", 2, "number of dispatcher loops")
	f.Duration("job-timeout", 0, "deadline for jobs without their own timeout (0 = none)")
	f.String("backoff", "none", "retry delay strategy: none, constant, linear, exponential, jitter")
	f.String("api-addr", "", "admin HTTP listen address (empty disables)")
	f.Float64("claim-rate", 0, "max claims per second across the pool (0 = unlimited)")
	f.Duration("poll", time.Second, "sleep after an empty poll")
	f.Duration("visibility", 5*time.Minute, "lease granted on claim")
	f.Bool("audit", false, "log an audit event for every job lifecycle transition")
	return cmd
}

// runWorker runs the pool, and the admin API when configured, until ctx is
// cancelled, then drains within the shutdown timeout.
func runWorker(ctx context.Context, a *app, eng *engine.Engine) error {
	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.API.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.New(eng).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("admin api listening", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down worker pool")
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Worker.ShutdownTimeout)
		defer cancel()
		return eng.Stop(stopCtx)
	})

	return g.Wait()
}
