// The worker binary runs the prediction scheduler loop: every poll interval
// it claims the cross-replica cycle lock and dispatches due jobs to the
// property prediction engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/platform"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/handlers"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = logger.Named("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble platform: %w", err)
	}
	defer p.Close()

	healthSrv := startHealthServer(cfg, p, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
		defer cancel()
		_ = healthSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started",
		logging.String("version", version),
		logging.Duration("poll_interval", cfg.Prediction.PollInterval),
	)

	runLoop(ctx, cfg, p, logger)

	logger.Info("worker stopped")
	return nil
}

// runLoop runs scheduler cycles until ctx is cancelled.  A failed cycle is
// logged and retried on the next tick; transient infrastructure outages
// must not kill the loop.
func runLoop(ctx context.Context, cfg *config.Config, p *platform.Platform, logger logging.Logger) {
	ticker := time.NewTicker(cfg.Prediction.PollInterval)
	defer ticker.Stop()

	heartbeat := time.NewTicker(cfg.Worker.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := p.HealthCheck(ctx); err != nil {
				logger.Warn("heartbeat found unhealthy dependency", logging.Err(err))
			}
		case <-ticker.C:
			report, err := p.Prediction.RunCycle(ctx)
			if err != nil {
				logger.Error("scheduler cycle failed", logging.Err(err))
				continue
			}
			if report.Skipped {
				continue
			}
			if report.Dispatched > 0 {
				logger.Info("scheduler cycle completed",
					logging.Int("dispatched", report.Dispatched),
					logging.Int("succeeded", report.Succeeded),
					logging.Int("retried", report.Retried),
					logging.Int("failed", report.Failed),
				)
			}
		}
	}
}

// startHealthServer serves the probe and metrics endpoints for the worker.
func startHealthServer(cfg *config.Config, p *platform.Platform, logger logging.Logger) *http.Server {
	health := handlers.NewHealthHandler(version,
		handlers.NamedCheck("postgres", p.DB.HealthCheck),
		handlers.NamedCheck("redis", p.Redis.Ping),
		handlers.NamedCheck("minio", p.MinIO.HealthCheck),
	)

	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", p.Collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", logging.Err(err))
		}
	}()
	return srv
}
