// Package platform is the composition root of the pipeline: it assembles the
// infrastructure clients, repositories, and application services from one
// Config, and owns their shutdown order.
package platform

import (
	"context"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/ingestion"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/results"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/submission"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	domainMol "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/molecule"
	domainPred "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/prediction"
	domainRes "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/domain/result"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/postgres"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/postgres/repositories"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/database/redis"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/messaging/kafka"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/prometheus"
	engine "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/prediction"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/storage/minio"
)

// Platform bundles the assembled services and the infrastructure they run on.
type Platform struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics
	// Collector serves the /metrics scrape endpoint.
	Collector prometheus.MetricsCollector

	DB    *postgres.Connection
	Redis *redis.Client
	Kafka *kafka.Producer
	MinIO *minio.Client

	Ingestion   ingestion.Service
	Prediction  prediction.Service
	Submissions submission.Service
	Results     results.Service

	// Molecules and Documents back the read-side HTTP endpoints.
	Molecules domainMol.Repository
	Documents minio.DocumentStore
}

// New assembles the full platform from cfg.  Components come up in
// dependency order; any failure tears down what already started.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Platform, error) {
	p := &Platform{Config: cfg, Logger: logger}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "cromkt",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return nil, err
	}
	p.Collector = collector
	p.Metrics = prometheus.NewAppMetrics(collector)

	if err := postgres.RunMigrations(cfg.Database, logger); err != nil {
		return nil, err
	}
	db, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	p.DB = db

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Redis = redisClient

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Kafka = producer

	minioClient, err := minio.NewClient(cfg.MinIO, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.MinIO = minioClient

	engineClient, err := engine.NewEngineClient(cfg.Prediction, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	pool := db.Pool()
	moleculeRepo := repositories.NewMoleculeRepository(pool, logger)
	jobRepo := repositories.NewPredictionJobRepository(pool, logger)
	submissionRepo := repositories.NewSubmissionRepository(pool, logger)
	resultRepo := repositories.NewResultRepository(pool, logger)

	cache := redis.NewCache(redisClient, logger,
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
	locks := redis.NewLockFactory(redisClient, logger)
	documents := minio.NewDocumentStore(minioClient, logger)
	p.Molecules = moleculeRepo
	p.Documents = documents

	validator := domainMol.NewValidator(domainMol.ValidatorConfig{
		ElementBlacklist: cfg.Ingestion.ElementBlacklist,
		MaxHeavyAtoms:    cfg.Ingestion.MaxHeavyAtoms,
	})
	policy := domainPred.NewRetryPolicy(
		cfg.Prediction.MaxRetries,
		cfg.Prediction.RetryDelay,
		cfg.Prediction.BackoffFactor,
		cfg.Prediction.BackoffCap,
		cfg.Prediction.BackoffJitter,
	)

	p.Prediction = prediction.NewService(prediction.Config{
		Properties:   cfg.Prediction.Properties,
		BatchSize:    cfg.Prediction.BatchSize,
		Concurrency:  cfg.Prediction.Concurrency,
		CycleLockTTL: cfg.Worker.CycleLockTTL,
		Policy:       policy,
	}, jobRepo, moleculeRepo, engineClient, locks, producer, p.Metrics, logger)

	p.Ingestion = ingestion.NewService(ingestion.Config{
		MaxRows:   cfg.Ingestion.MaxRows,
		ChunkSize: cfg.Ingestion.ChunkSize,
	}, validator, moleculeRepo, p.Prediction, cache, producer, p.Metrics, logger)

	p.Submissions = submission.NewService(
		submissionRepo, moleculeRepo, cache, producer, p.Metrics, logger)

	p.Results = results.NewService(domainRes.QCConfig{
		RequiredProperties: nil,
		PlausibleRanges:    domainRes.DefaultPlausibleRanges,
	}, resultRepo, submissionRepo, moleculeRepo, documents, producer, p.Metrics, logger)

	return p, nil
}

// HealthCheck pings every infrastructure dependency and returns the first
// failure.  The per-component gauge is updated either way.
func (p *Platform) HealthCheck(ctx context.Context) error {
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"postgres", p.DB.HealthCheck},
		{"redis", p.Redis.Ping},
		{"minio", p.MinIO.HealthCheck},
	}

	var firstErr error
	for _, check := range checks {
		err := check.fn(ctx)
		healthy := 1.0
		if err != nil {
			healthy = 0
			if firstErr == nil {
				firstErr = err
			}
			p.Logger.Warn("health check failed",
				logging.String("component", check.name), logging.Err(err))
		}
		p.Metrics.HealthCheckStatus.WithLabelValues(check.name).Set(healthy)
	}
	return firstErr
}

// Close shuts the platform down in reverse dependency order.  Safe to call
// on a partially assembled platform.
func (p *Platform) Close() {
	if p.Kafka != nil {
		if err := p.Kafka.Close(); err != nil {
			p.Logger.Warn("failed to close kafka producer", logging.Err(err))
		}
	}
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			p.Logger.Warn("failed to close redis client", logging.Err(err))
		}
	}
	if p.DB != nil {
		p.DB.Close()
	}
}
