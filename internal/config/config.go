// Package config defines all configuration structures for the CRO marketplace
// core.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	Acks            string        `mapstructure:"acks"` // "none" | "one" | "all"
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters used for
// raw result-document storage.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// IngestionConfig holds batch upload and structure validation parameters.
type IngestionConfig struct {
	// MaxRows is the per-upload row-count ceiling.
	MaxRows int `mapstructure:"max_rows"`
	// MaxFileBytes is the per-upload file-size ceiling.
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
	// ChunkSize is the number of accepted rows persisted per transaction so
	// partial progress survives a crash mid-batch.
	ChunkSize int `mapstructure:"chunk_size"`
	// ElementBlacklist lists element symbols rejected by policy.
	ElementBlacklist []string `mapstructure:"element_blacklist"`
	// MaxHeavyAtoms bounds the heavy (non-hydrogen) atom count per structure.
	MaxHeavyAtoms int `mapstructure:"max_heavy_atoms"`
}

// PredictionConfig holds external prediction-engine call parameters.
type PredictionConfig struct {
	EngineURL string `mapstructure:"engine_url"`
	APIKey    string `mapstructure:"api_key"`
	// Properties is the list of property names requested per molecule.
	Properties []string `mapstructure:"properties"`
	// BatchSize is the maximum molecules per engine call.
	BatchSize int `mapstructure:"batch_size"`
	// CallTimeout is the hard per-call deadline; exceeding it counts as a
	// call failure for retry purposes.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxRetries is the attempt ceiling before a job turns FAILED.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay before the first retry.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// BackoffFactor multiplies the delay per attempt.
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	// BackoffCap bounds the computed delay.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
	// BackoffJitter is the fractional jitter (0 disables, 0.2 = ±20%).
	BackoffJitter float64 `mapstructure:"backoff_jitter"`
	// Concurrency is the number of jobs dispatched in parallel per cycle.
	Concurrency int `mapstructure:"concurrency"`
	// PollInterval is the worker's RunCycle cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	HealthPort        int           `mapstructure:"health_port"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// CycleLockTTL bounds how long one worker may hold the scheduling lock.
	CycleLockTTL time.Duration `mapstructure:"cycle_lock_ttl"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the pipeline core.  Every
// infrastructure component and application service reads its settings from the
// relevant sub-struct; nothing reads ambient/global state.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	// Ingestion
	if c.Ingestion.MaxRows < 1 {
		return fmt.Errorf("config: ingestion.max_rows must be >= 1, got %d", c.Ingestion.MaxRows)
	}
	if c.Ingestion.ChunkSize < 1 {
		return fmt.Errorf("config: ingestion.chunk_size must be >= 1, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkSize > c.Ingestion.MaxRows {
		return fmt.Errorf("config: ingestion.chunk_size %d exceeds ingestion.max_rows %d",
			c.Ingestion.ChunkSize, c.Ingestion.MaxRows)
	}
	if c.Ingestion.MaxHeavyAtoms < 1 {
		return fmt.Errorf("config: ingestion.max_heavy_atoms must be >= 1, got %d", c.Ingestion.MaxHeavyAtoms)
	}

	// Prediction
	if c.Prediction.EngineURL == "" {
		return fmt.Errorf("config: prediction.engine_url is required")
	}
	if c.Prediction.BatchSize < 1 {
		return fmt.Errorf("config: prediction.batch_size must be >= 1, got %d", c.Prediction.BatchSize)
	}
	if c.Prediction.MaxRetries < 0 {
		return fmt.Errorf("config: prediction.max_retries must be >= 0, got %d", c.Prediction.MaxRetries)
	}
	if c.Prediction.BackoffFactor < 1.0 {
		return fmt.Errorf("config: prediction.backoff_factor must be >= 1.0, got %g", c.Prediction.BackoffFactor)
	}
	if c.Prediction.BackoffJitter < 0 || c.Prediction.BackoffJitter >= 1.0 {
		return fmt.Errorf("config: prediction.backoff_jitter must be in [0, 1), got %g", c.Prediction.BackoffJitter)
	}
	if c.Prediction.Concurrency < 1 {
		return fmt.Errorf("config: prediction.concurrency must be >= 1, got %d", c.Prediction.Concurrency)
	}
	if len(c.Prediction.Properties) == 0 {
		return fmt.Errorf("config: prediction.properties must name at least one property")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
