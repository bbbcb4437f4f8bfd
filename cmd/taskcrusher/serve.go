// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/account"
	"github.com/holomush/taskcrusher/internal/notify"
	"github.com/holomush/taskcrusher/internal/observability"
	"github.com/holomush/taskcrusher/pkg/errutil"
)

// shutdownTimeout bounds stopping the observability server and flushing
// notifications.
const shutdownTimeout = 10 * time.Second

// newServeCmd creates the serve subcommand.
func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification worker with metrics and health endpoints",
		Long: `Run the long-lived process: it delivers queued welcome and deletion
notifications and serves /metrics, /healthz/liveness, and /healthz/readiness
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd)
		},
	}
}

func (c *cli) runServe(cmd *cobra.Command) error {
	cfg, logger, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := c.deps.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("connected to database")

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = c.deps.NewObservabilityServer(observability.Config{
			Addr:    cfg.Metrics.Addr,
			Ready:   app.Ready,
			Metrics: []func(prometheus.Registerer){account.RegisterMetrics, notify.RegisterMetrics},
			Logger:  logger,
		})
		obsErrChan, err := obsServer.Start()
		if err != nil {
			closeApp(app, logger)
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	cmd.Println("Task Crusher started")
	logger.Info("taskcrusher ready", "metrics_addr", cfg.Metrics.Addr)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	if err := app.Close(shutdownCtx); err != nil {
		errutil.LogError(logger, "shutdown incomplete", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func closeApp(app *App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		errutil.LogError(logger, "shutdown incomplete", err)
	}
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
