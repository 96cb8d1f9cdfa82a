// Package config loads evalforge's runtime configuration from environment
// variables (optionally backed by a local .env file and a config.yaml) via
// viper, the same layering the platform this codebase grew out of uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "evalforge/pkg/errors"
)

// Config is the root configuration object for the evalforge worker process.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
}

// AppConfig carries process identity, used in logs and workflow ids.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the Postgres-backed task/eval/run/score store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig configures the Redis connection the worker pool uses as its
// distributed task-claim lock.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Database     int           `mapstructure:"database"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// EngineConfig carries the evaluation engine's defaults from spec §4.5/§5.
type EngineConfig struct {
	// ConcurrencyLimit is the default counting-semaphore capacity for
	// per-item engine parallelism. Lower bound 1.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// ComparisonThreshold is the default significance threshold for
	// the comparison engine (§4.8).
	ComparisonThreshold float64 `mapstructure:"comparison_threshold"`
	// MinRegressions is the default deployment-gate threshold (§4.8).
	MinRegressions int `mapstructure:"min_regressions"`
}

// WorkersConfig carries the task-manager worker pool defaults from spec §4.6.
type WorkersConfig struct {
	// MaxConcurrent bounds how many PENDING tasks a worker processes
	// concurrently (default 3).
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// PollInterval is how long the worker sleeps when no PENDING task
	// is available.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// GuardrailConfig carries defaults for the policy engine.
type GuardrailConfig struct {
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	DefaultAction    string  `mapstructure:"default_action"`
}

// Load reads configuration from .env, an optional config.yaml, and the
// environment (EVALFORGE_-prefixed, taking precedence over the file).
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/evalforge")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("EVALFORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//nolint:errcheck // BindEnv only errors on invalid args, safe with string literals
	viper.BindEnv("database.url", "DATABASE_URL")
	//nolint:errcheck
	viper.BindEnv("redis.url", "REDIS_URL")

	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "evalforge")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.idle_timeout", 5*time.Minute)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("engine.concurrency_limit", 5)
	viper.SetDefault("engine.comparison_threshold", 0.01)
	viper.SetDefault("engine.min_regressions", 1)

	viper.SetDefault("workers.max_concurrent", 3)
	viper.SetDefault("workers.poll_interval", 2*time.Second)

	viper.SetDefault("guardrail.default_threshold", 0.5)
	viper.SetDefault("guardrail.default_action", "warn")
}

// Validate enforces invariants on the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return apperrors.NewErrorWithCode(apperrors.CodeConfigInvalid, "database.url or database.host is required")
	}
	if c.Engine.ConcurrencyLimit < 1 {
		return apperrors.NewErrorWithCode(apperrors.CodeConfigInvalid, "engine.concurrency_limit must be >= 1")
	}
	if c.Workers.MaxConcurrent < 1 {
		return apperrors.NewErrorWithCode(apperrors.CodeConfigInvalid, "workers.max_concurrent must be >= 1")
	}
	if c.Engine.ComparisonThreshold < 0 {
		return apperrors.NewErrorWithCode(apperrors.CodeConfigInvalid, "engine.comparison_threshold must be >= 0")
	}
	return nil
}

// GetDatabaseURL returns the Postgres connection URL, constructing it from
// discrete fields when no URL is set directly.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host,
		c.Database.Port, c.Database.Database, c.Database.SSLMode)
}

// GetRedisURL returns the Redis connection URL.
func (c *Config) GetRedisURL() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return "redis://localhost:6379/0"
}
