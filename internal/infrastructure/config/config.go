// Package config loads service configuration with viper.
//
// Priority (highest to lowest):
//  1. Environment variables with the STOCKWISE_ prefix (STOCKWISE_DATABASE_URL)
//  2. config.yaml in the working directory, ./config or /etc/stockwise
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stockwise/internal/core/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOCKWISE"

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Log      LogConfig
	Ledger   LedgerConfig
	Outbox   OutboxConfig
	Policy   PolicyConfig
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string
	Env  string
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	IdempotencyTTL  time.Duration
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
	LockTimeout      time.Duration
	RunMigrations    bool
}

// RedisConfig holds Redis settings used by the outbox worker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string
	Development bool
}

// LedgerConfig tunes stock posting.
type LedgerConfig struct {
	// CostPrecision is the number of decimal places kept for unit costs.
	CostPrecision     int32
	MaxConversionHops int
	ConversionCache   time.Duration
	NumberPrefix      string
	// NumberRangeSize is how many movement numbers one instance reserves from
	// sys_sequences at a time.
	NumberRangeSize   int64
}

// OutboxConfig tunes the relay in cmd/worker.
type OutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Retention    time.Duration

	// CleanupInterval paces purging of published messages and expired
	// idempotency keys.
	CleanupInterval time.Duration
	// MetricsAddr serves the worker's /metrics; empty disables it.
	MetricsAddr string
}

// PolicyConfig maps permission names to CEL expressions. The "*" rule
// applies to permissions without their own rule.
type PolicyConfig struct {
	Rules map[string]string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockwise")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 20*time.Second)
	v.SetDefault("http.idempotency_ttl", 24*time.Hour)

	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.lock_timeout", 5*time.Second)
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "stockwise.events")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("ledger.cost_precision", 4)
	v.SetDefault("ledger.max_conversion_hops", 3)
	v.SetDefault("ledger.conversion_cache", 30*time.Second)
	v.SetDefault("ledger.number_prefix", "MV")
	v.SetDefault("ledger.number_range_size", 50)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.retry_backoff", time.Minute)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)
	v.SetDefault("outbox.metrics_addr", ":9091")
}

// Load reads configuration. Extra search paths are tried before the defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/stockwise")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			IdempotencyTTL:  v.GetDuration("http.idempotency_ttl"),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
			LockTimeout:      v.GetDuration("database.lock_timeout"),
			RunMigrations:    v.GetBool("database.run_migrations"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		Ledger: LedgerConfig{
			CostPrecision:     v.GetInt32("ledger.cost_precision"),
			MaxConversionHops: v.GetInt("ledger.max_conversion_hops"),
			ConversionCache:   v.GetDuration("ledger.conversion_cache"),
			NumberPrefix:      v.GetString("ledger.number_prefix"),
			NumberRangeSize:   v.GetInt64("ledger.number_range_size"),
		},
		Outbox: OutboxConfig{
			BatchSize:    v.GetInt("outbox.batch_size"),
			PollInterval: v.GetDuration("outbox.poll_interval"),
			MaxRetries:   v.GetInt("outbox.max_retries"),
			RetryBackoff: v.GetDuration("outbox.retry_backoff"),
			Retention:    v.GetDuration("outbox.retention"),

			CleanupInterval: v.GetDuration("outbox.cleanup_interval"),
			MetricsAddr:     v.GetString("outbox.metrics_addr"),
		},
		Policy: PolicyConfig{
			Rules: v.GetStringMapString("policy.rules"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("database.max_conns must be positive"))
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("database.min_conns must be between 0 and max_conns"))
	}
	if c.Database.LockTimeout <= 0 {
		errs = append(errs, errors.New("database.lock_timeout must be positive"))
	}
	if c.Ledger.CostPrecision <= 0 || c.Ledger.CostPrecision > types.MaxCostPlaces {
		errs = append(errs, fmt.Errorf("ledger.cost_precision must be between 1 and %d", types.MaxCostPlaces))
	}
	if c.Ledger.MaxConversionHops <= 0 {
		errs = append(errs, errors.New("ledger.max_conversion_hops must be positive"))
	}
	if c.Ledger.NumberRangeSize <= 0 {
		errs = append(errs, errors.New("ledger.number_range_size must be positive"))
	}
	if strings.TrimSpace(c.Ledger.NumberPrefix) == "" {
		errs = append(errs, errors.New("ledger.number_prefix is required"))
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("outbox.batch_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}
