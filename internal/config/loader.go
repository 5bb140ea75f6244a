// Package config provides configuration loading, defaults, and validation for
// the CRO marketplace core.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform settings.
const envPrefix = "CROMKT"

// newViper builds a pre-configured Viper instance with the platform's standard
// settings: YAML file type, CROMKT_ env prefix, automatic env binding, and a
// key replacer that maps "." → "_" so that nested keys like "database.host"
// resolve to "CROMKT_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerKeys(v)
	return v
}

// registerKeys declares every configuration key to viper so that AutomaticEnv
// can resolve CROMKT_* overrides even when no config file supplies the key.
func registerKeys(v *viper.Viper) {
	keys := []string{
		"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
		"server.max_body_size", "server.shutdown_timeout",
		"database.host", "database.port", "database.user", "database.password",
		"database.db_name", "database.ssl_mode", "database.max_conns", "database.min_conns",
		"database.conn_max_lifetime", "database.conn_max_idle_time", "database.migration_path",
		"redis.addr", "redis.password", "redis.db", "redis.pool_size", "redis.min_idle_conns",
		"redis.dial_timeout", "redis.read_timeout", "redis.write_timeout",
		"redis.default_ttl", "redis.key_prefix",
		"kafka.brokers", "kafka.producer_retries", "kafka.batch_size",
		"kafka.batch_timeout", "kafka.acks", "kafka.write_timeout",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
		"minio.use_ssl", "minio.presign_expiry",
		"ingestion.max_rows", "ingestion.max_file_bytes", "ingestion.chunk_size",
		"ingestion.element_blacklist", "ingestion.max_heavy_atoms",
		"prediction.engine_url", "prediction.api_key", "prediction.properties",
		"prediction.batch_size", "prediction.call_timeout", "prediction.max_retries",
		"prediction.retry_delay", "prediction.backoff_factor", "prediction.backoff_cap",
		"prediction.backoff_jitter", "prediction.concurrency", "prediction.poll_interval",
		"worker.health_port", "worker.heartbeat_interval", "worker.shutdown_timeout",
		"worker.cycle_lock_ttl",
		"log.level", "log.format", "log.output_paths", "log.error_output_paths",
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			// BindEnv only errors on an empty key; the list above is static.
			panic(fmt.Sprintf("config: BindEnv(%q): %v", k, err))
		}
	}
}

// Load reads the YAML file at configPath, merges any CROMKT_* environment
// variable overrides, applies platform defaults for unset fields, and
// validates the result.  It returns a fully-populated *Config or a
// descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadOrEnv loads the YAML file at configPath when it exists and falls back
// to environment-only loading when it does not.  Binaries default to a
// relative config path, so a containerised deployment that ships no file
// still boots from CROMKT_* variables alone.
func LoadOrEnv(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return LoadFromEnv()
		}
		return nil, fmt.Errorf("config: failed to stat config file %q: %w", configPath, err)
	}
	return Load(configPath)
}

// LoadFromEnv builds a Config entirely from CROMKT_* environment variables,
// with no config file required.  This is the preferred loading strategy for
// containerised (12-factor) deployments.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  Intended for
// hot-reloading non-critical settings such as log level or the prediction
// poll interval; callers are responsible for applying only the safe subset of
// changes at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is NOT called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read errors are ignored here; callers should call Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			// Reject invalid hot-reload payloads; keep running on the last
			// known-good configuration.
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// It is intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
