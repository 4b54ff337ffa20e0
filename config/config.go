// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Usage     UsageConfig     `yaml:"usage"`
	Billing   BillingConfig   `yaml:"billing"`
	Database  DatabaseConfig  `yaml:"database"`
	Plans     []plan.Plan     `yaml:"plans"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig configures the filing parser service.
type UpstreamConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"` // default 50MB
}

// AuthConfig configures authentication.
type AuthConfig struct {
	KeyPrefix     string        `yaml:"key_prefix"`
	Header        string        `yaml:"header"`         // Header name for API key (default: X-API-Key)
	SessionCookie string        `yaml:"session_cookie"` // Cookie carrying the session JWT (default: session)
	JWTSecret     string        `yaml:"jwt_secret,omitempty"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

// SessionsEnabled reports whether session cookies are verified.
func (a AuthConfig) SessionsEnabled() bool {
	return a.JWTSecret != ""
}

// RateLimitConfig configures per-key quotas and the counter store.
type RateLimitConfig struct {
	Default   ratelimit.Policy            `yaml:"default"`
	Overrides map[string]ratelimit.Policy `yaml:"overrides"` // key ID -> policy
	// Atomic admits with one check-and-increment store operation. When
	// false the gate checks and then increments separately.
	Atomic    *bool         `yaml:"atomic"`
	FailOpen  bool          `yaml:"fail_open"`
	KeyPrefix string        `yaml:"key_prefix"`
	Store     string        `yaml:"store"` // "memory", "sqlite" or "redis"
	Redis     RedisConfig   `yaml:"redis"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// IsAtomic reports whether admission is atomic (the default).
func (r RateLimitConfig) IsAtomic() bool {
	return r.Atomic == nil || *r.Atomic
}

// RedisConfig configures the Redis counter store.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BreakerConfig configures the circuit breaker around the counter store.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// UsageConfig configures usage tracking.
// Use "store" for buffered writes to the usage store or "memory" to keep
// events in process.
type UsageConfig struct {
	Mode          string         `yaml:"mode"`  // "store" or "memory"
	Store         string         `yaml:"store"` // "sqlite" or "postgres"
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
	MaxBuffer     int            `yaml:"max_buffer"`
	Retention     time.Duration  `yaml:"retention"`
	DefaultDays   int            `yaml:"default_days"`
	MaxQueryDays  int            `yaml:"max_query_days"`
	Postgres      PostgresConfig `yaml:"postgres"`
}

// PostgresConfig configures the Postgres usage store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BillingConfig configures where subscription plans come from.
// Use "none", "stripe" or "static".
type BillingConfig struct {
	Mode        string            `yaml:"mode"`
	StripeKey   string            `yaml:"stripe_key,omitempty"`
	StripeURL   string            `yaml:"stripe_url,omitempty"` // API base URL override
	CacheTTL    time.Duration     `yaml:"cache_ttl"`
	Timeout     time.Duration     `yaml:"timeout"`
	Subscribers map[string]string `yaml:"subscribers,omitempty"` // customer ID -> price ID, static mode
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /swagger endpoints
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for container deployments where no config file is needed.
//
// Environment variables:
//
//	FILINGGATE_UPSTREAM_URL          - Filing parser service URL (required)
//	FILINGGATE_DATABASE_DSN          - SQLite path (default: filinggate.db)
//	FILINGGATE_SERVER_HOST           - Server host (default: 0.0.0.0)
//	FILINGGATE_SERVER_PORT           - Server port (default: 8080)
//	FILINGGATE_AUTH_KEY_PREFIX       - API key prefix (default: fg_)
//	FILINGGATE_AUTH_JWT_SECRET       - Session JWT secret (sessions disabled when empty)
//	FILINGGATE_RATELIMIT_STORE       - Counter store: memory, sqlite or redis (default: sqlite)
//	FILINGGATE_RATELIMIT_REDIS_URL   - Redis URL for the redis counter store
//	FILINGGATE_RATELIMIT_RPM         - Default requests per minute (default: 60)
//	FILINGGATE_RATELIMIT_RPD         - Default requests per day (default: 10000)
//	FILINGGATE_RATELIMIT_FAIL_OPEN   - Admit requests when the counter store is down
//	FILINGGATE_USAGE_STORE           - Usage store: sqlite or postgres (default: sqlite)
//	FILINGGATE_USAGE_POSTGRES_DSN    - Postgres DSN for the postgres usage store
//	FILINGGATE_BILLING_MODE          - none, stripe or static (default: none)
//	FILINGGATE_BILLING_STRIPE_KEY    - Stripe secret key
//	FILINGGATE_LOG_LEVEL             - Log level: debug, info, warn, error (default: info)
//	FILINGGATE_LOG_FORMAT            - Log format: json or console (default: json)
//	FILINGGATE_METRICS_ENABLED       - Enable /metrics endpoint (default: true)
//	FILINGGATE_OPENAPI_ENABLED       - Enable OpenAPI/Swagger (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	// Try loading from file first
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	// Check if we have enough env vars to run
	if HasEnvConfig() {
		return LoadFromEnv()
	}

	// No config available
	return nil, fmt.Errorf("no configuration found: provide config file or set FILINGGATE_UPSTREAM_URL")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("FILINGGATE_UPSTREAM_URL") != ""
}

// applyEnvOverrides applies FILINGGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("FILINGGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FILINGGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FILINGGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("FILINGGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Upstream configuration
	if v := os.Getenv("FILINGGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("FILINGGATE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Auth configuration
	if v := os.Getenv("FILINGGATE_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}
	if v := os.Getenv("FILINGGATE_AUTH_HEADER"); v != "" {
		cfg.Auth.Header = v
	}
	if v := os.Getenv("FILINGGATE_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// Rate limit configuration
	if v := os.Getenv("FILINGGATE_RATELIMIT_STORE"); v != "" {
		cfg.RateLimit.Store = v
	}
	if v := os.Getenv("FILINGGATE_RATELIMIT_REDIS_URL"); v != "" {
		cfg.RateLimit.Redis.URL = v
	}
	if v := os.Getenv("FILINGGATE_RATELIMIT_RPM"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RateLimit.Default.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("FILINGGATE_RATELIMIT_RPD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RateLimit.Default.RequestsPerDay = n
		}
	}
	if v := os.Getenv("FILINGGATE_RATELIMIT_ATOMIC"); v != "" {
		atomic := parseBool(v)
		cfg.RateLimit.Atomic = &atomic
	}
	if v := os.Getenv("FILINGGATE_RATELIMIT_FAIL_OPEN"); v != "" {
		cfg.RateLimit.FailOpen = parseBool(v)
	}

	// Usage configuration
	if v := os.Getenv("FILINGGATE_USAGE_MODE"); v != "" {
		cfg.Usage.Mode = v
	}
	if v := os.Getenv("FILINGGATE_USAGE_STORE"); v != "" {
		cfg.Usage.Store = v
	}
	if v := os.Getenv("FILINGGATE_USAGE_POSTGRES_DSN"); v != "" {
		cfg.Usage.Postgres.DSN = v
	}
	if v := os.Getenv("FILINGGATE_USAGE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Usage.Retention = d
		}
	}

	// Billing configuration
	if v := os.Getenv("FILINGGATE_BILLING_MODE"); v != "" {
		cfg.Billing.Mode = v
	}
	if v := os.Getenv("FILINGGATE_BILLING_STRIPE_KEY"); v != "" {
		cfg.Billing.StripeKey = v
	}

	// Database configuration
	if v := os.Getenv("FILINGGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("FILINGGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FILINGGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("FILINGGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}

	// OpenAPI configuration
	if v := os.Getenv("FILINGGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "fg_"
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-Key"
	}
	if cfg.Auth.SessionCookie == "" {
		cfg.Auth.SessionCookie = "session"
	}
	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "filinggate"
	}
	if cfg.Auth.JWTExpiration == 0 {
		cfg.Auth.JWTExpiration = 24 * time.Hour
	}

	if cfg.RateLimit.Default.RequestsPerMinute == 0 {
		cfg.RateLimit.Default.RequestsPerMinute = 60
	}
	if cfg.RateLimit.Default.RequestsPerDay == 0 {
		cfg.RateLimit.Default.RequestsPerDay = 10000
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = "ratelimit"
	}
	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = "sqlite"
	}

	if cfg.Usage.Mode == "" {
		cfg.Usage.Mode = "store"
	}
	if cfg.Usage.Store == "" {
		cfg.Usage.Store = "sqlite"
	}
	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 10 * time.Second
	}
	if cfg.Usage.Retention == 0 {
		cfg.Usage.Retention = 90 * 24 * time.Hour
	}
	if cfg.Usage.MaxQueryDays == 0 {
		cfg.Usage.MaxQueryDays = 90
	}
	if cfg.Usage.DefaultDays == 0 {
		cfg.Usage.DefaultDays = 30
	}

	if cfg.Billing.Mode == "" {
		cfg.Billing.Mode = "none"
	}
	if cfg.Billing.CacheTTL == 0 {
		cfg.Billing.CacheTTL = 5 * time.Minute
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "filinggate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Default free plan if none configured
	if len(cfg.Plans) == 0 {
		cfg.Plans = []plan.Plan{
			{
				ID:                "free",
				Name:              "Free",
				RequestsPerMinute: 10,
				RequestsPerDay:    1000,
				Default:           true,
			},
		}
	}
}

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}

	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validStores := map[string]bool{"memory": true, "sqlite": true, "redis": true}
	if !validStores[cfg.RateLimit.Store] {
		return fmt.Errorf("rate_limit.store must be 'memory', 'sqlite' or 'redis', got %q", cfg.RateLimit.Store)
	}
	if cfg.RateLimit.Store == "redis" && cfg.RateLimit.Redis.URL == "" {
		return fmt.Errorf("rate_limit.redis.url is required when rate_limit.store is 'redis'")
	}
	if err := validatePolicy("rate_limit.default", cfg.RateLimit.Default); err != nil {
		return err
	}
	for id, p := range cfg.RateLimit.Overrides {
		if err := validatePolicy("rate_limit.overrides."+id, p); err != nil {
			return err
		}
	}

	validUsageModes := map[string]bool{"store": true, "memory": true}
	if !validUsageModes[cfg.Usage.Mode] {
		return fmt.Errorf("usage.mode must be 'store' or 'memory', got %q", cfg.Usage.Mode)
	}
	validUsageStores := map[string]bool{"sqlite": true, "postgres": true}
	if !validUsageStores[cfg.Usage.Store] {
		return fmt.Errorf("usage.store must be 'sqlite' or 'postgres', got %q", cfg.Usage.Store)
	}
	if cfg.Usage.Mode == "store" && cfg.Usage.Store == "postgres" && cfg.Usage.Postgres.DSN == "" {
		return fmt.Errorf("usage.postgres.dsn is required when usage.store is 'postgres'")
	}
	if cfg.Usage.DefaultDays > cfg.Usage.MaxQueryDays {
		return fmt.Errorf("usage.default_days (%d) exceeds usage.max_query_days (%d)", cfg.Usage.DefaultDays, cfg.Usage.MaxQueryDays)
	}

	validBillingModes := map[string]bool{"none": true, "stripe": true, "static": true}
	if !validBillingModes[cfg.Billing.Mode] {
		return fmt.Errorf("billing.mode must be one of: none, stripe, static")
	}
	if cfg.Billing.Mode == "stripe" && cfg.Billing.StripeKey == "" {
		return fmt.Errorf("billing.stripe_key is required when billing.mode is 'stripe'")
	}

	seen := make(map[string]bool, len(cfg.Plans))
	defaults := 0
	for i, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("plans[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
		if err := validatePolicy(fmt.Sprintf("plans[%d]", i), p.Policy()); err != nil {
			return err
		}
		if p.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one plan may be the default, got %d", defaults)
	}

	return nil
}

func validatePolicy(name string, p ratelimit.Policy) error {
	if p.RequestsPerMinute < 0 || p.RequestsPerDay < 0 {
		return fmt.Errorf("%s: limits must not be negative", name)
	}
	return nil
}
