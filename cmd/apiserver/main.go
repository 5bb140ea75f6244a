// The apiserver binary hosts the HTTP API: molecule upload, the prediction
// operator surface, and the CRO submission lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/platform"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	httpserver "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/handlers"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/http/middleware"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble platform: %w", err)
	}
	defer p.Close()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		MoleculeHandler: handlers.NewMoleculeHandler(p.Ingestion, p.Molecules, cfg.Ingestion.MaxFileBytes),
		PredictionHandler: handlers.NewPredictionHandler(p.Prediction),
		SubmissionHandler: handlers.NewSubmissionHandler(p.Submissions),
		ResultHandler:     handlers.NewResultHandler(p.Results, p.Documents, cfg.MinIO.PresignExpiry),
		HealthHandler: handlers.NewHealthHandler(version,
			handlers.NamedCheck("postgres", p.DB.HealthCheck),
			handlers.NamedCheck("redis", p.Redis.Ping),
			handlers.NamedCheck("minio", p.MinIO.HealthCheck),
		),
		ActorMiddleware:   middleware.NewActorMiddleware(),
		CORSMiddleware:    middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()),
		LoggingMiddleware: middleware.NewLoggingMiddleware(logger, middleware.DefaultLoggingConfig()),
		Logger:            logger,
		MetricsCollector:  p.Collector,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("apiserver started",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
