package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/piwi3910/cvmsync/pkg/cloud"
	"github.com/piwi3910/cvmsync/pkg/config"
	"github.com/piwi3910/cvmsync/pkg/server"
	"github.com/piwi3910/cvmsync/pkg/stores"
	"github.com/piwi3910/cvmsync/pkg/syncer"
	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory sync control endpoint",
		Long: `Start the HTTP control surface.

Endpoints:
  GET  /health       liveness probe
  POST /preload_all  synchronous full inventory refresh
  GET  /metrics      Prometheus metrics`,
		Example: `  # Serve with defaults (listens on :8088)
  cvmsync serve

  # Serve with a config file
  cvmsync serve --config cvmsync.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(ctx context.Context, configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	metrics := telemetry.NewMetrics(cfg.Metrics)

	tracer, err := telemetry.NewTracer(cfg.Tracing, "cvmsync", "")
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	if configPath != "" {
		err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
			logger.SetLevel(next.Logging.Level)
			logger.Infof("config reloaded, log level now %s", next.Logging.Level)
		})
		if err != nil {
			logger.WithError(err).Warn("config watch disabled")
		}
	}

	engine := syncer.New(
		stores.Config{Path: cfg.Store.Path},
		cloud.NewTencentFactory(),
		logger.NewComponentLogger("syncer"),
		metrics,
		tracer,
		syncer.Options{
			Concurrency:      cfg.Sync.Concurrency,
			ImagePageSize:    cfg.Sync.ImagePageSize,
			InstancePageSize: cfg.Sync.InstancePageSize,
		},
	)

	ctrl := server.New(engine, logger.NewComponentLogger("server"), metrics, server.Config{
		DefaultRegion:  cfg.Sync.DefaultRegion,
		PreloadTimeout: cfg.Sync.Timeout.Std(),
	})

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     ctrl.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("control endpoint listening on %s", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		logger.Info("control endpoint stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}
