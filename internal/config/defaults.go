package config

import "time"

// ApplyDefaults fills every unset field of cfg with the platform default.
// Explicit zero values that are semantically meaningful (e.g. backoff_jitter: 0
// to disable jitter) survive because the corresponding checks only replace the
// zero value where zero is not a legal setting.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 64 << 20 // 64 MiB, large CSV uploads
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// Database
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "prefer"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30 * time.Minute
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// Redis
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "cromkt"
	}

	// Kafka
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = time.Second
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = "all"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// MinIO
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "cro-results"
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 15 * time.Minute
	}

	// Ingestion
	if cfg.Ingestion.MaxRows == 0 {
		cfg.Ingestion.MaxRows = 500_000
	}
	if cfg.Ingestion.MaxFileBytes == 0 {
		cfg.Ingestion.MaxFileBytes = 100 << 20 // 100 MiB
	}
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 1000
	}
	if cfg.Ingestion.ElementBlacklist == nil {
		// Radioactive / restricted elements rejected by default policy.
		cfg.Ingestion.ElementBlacklist = []string{"U", "Pu", "Tc", "Ra", "Po"}
	}
	if cfg.Ingestion.MaxHeavyAtoms == 0 {
		cfg.Ingestion.MaxHeavyAtoms = 200
	}

	// Prediction
	if len(cfg.Prediction.Properties) == 0 {
		cfg.Prediction.Properties = []string{"logp", "solubility", "permeability"}
	}
	if cfg.Prediction.BatchSize == 0 {
		cfg.Prediction.BatchSize = 100
	}
	if cfg.Prediction.CallTimeout == 0 {
		cfg.Prediction.CallTimeout = 300 * time.Second
	}
	if cfg.Prediction.MaxRetries == 0 {
		cfg.Prediction.MaxRetries = 3
	}
	if cfg.Prediction.RetryDelay == 0 {
		cfg.Prediction.RetryDelay = 30 * time.Second
	}
	if cfg.Prediction.BackoffFactor == 0 {
		cfg.Prediction.BackoffFactor = 2.0
	}
	if cfg.Prediction.BackoffCap == 0 {
		cfg.Prediction.BackoffCap = 10 * time.Minute
	}
	if cfg.Prediction.BackoffJitter == 0 {
		cfg.Prediction.BackoffJitter = 0.2
	}
	if cfg.Prediction.Concurrency == 0 {
		cfg.Prediction.Concurrency = 4
	}
	if cfg.Prediction.PollInterval == 0 {
		cfg.Prediction.PollInterval = 15 * time.Second
	}

	// Worker
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = 8081
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Worker.ShutdownTimeout == 0 {
		cfg.Worker.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Worker.CycleLockTTL == 0 {
		cfg.Worker.CycleLockTTL = time.Minute
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
	if len(cfg.Log.ErrorOutputPaths) == 0 {
		cfg.Log.ErrorOutputPaths = []string{"stderr"}
	}
}
