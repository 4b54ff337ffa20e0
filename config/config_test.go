package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/filinggate/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090

upstream:
  url: "http://localhost:3000"
  timeout: 15s

auth:
  key_prefix: "test_"
  jwt_secret: "s3cret"

rate_limit:
  default:
    requests_per_minute: 30
    requests_per_day: 500
  overrides:
    key_abc:
      requests_per_minute: 1000
  store: "memory"

database:
  driver: "sqlite"
  dsn: ":memory:"

plans:
  - id: "free"
    name: "Free Plan"
    requests_per_minute: 10
    requests_per_day: 100
    default: true
  - id: "pro"
    name: "Pro Plan"
    requests_per_minute: 100
    requests_per_day: 50000
    stripe_price_id: "price_pro"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 15s", cfg.Upstream.Timeout)
	}
	if cfg.Auth.KeyPrefix != "test_" {
		t.Errorf("Auth.KeyPrefix = %s, want test_", cfg.Auth.KeyPrefix)
	}
	if !cfg.Auth.SessionsEnabled() {
		t.Error("sessions should be enabled with a jwt_secret")
	}
	if cfg.RateLimit.Default.RequestsPerMinute != 30 || cfg.RateLimit.Default.RequestsPerDay != 500 {
		t.Errorf("RateLimit.Default = %+v", cfg.RateLimit.Default)
	}
	if got := cfg.RateLimit.Overrides["key_abc"]; got.RequestsPerMinute != 1000 || got.RequestsPerDay != 0 {
		t.Errorf("override = %+v, want rpm 1000 and rpd unset", got)
	}
	if cfg.RateLimit.Store != "memory" {
		t.Errorf("RateLimit.Store = %s, want memory", cfg.RateLimit.Store)
	}
	if len(cfg.Plans) != 2 {
		t.Fatalf("len(Plans) = %d, want 2", len(cfg.Plans))
	}
	if cfg.Plans[1].StripePriceID != "price_pro" || cfg.Plans[1].RequestsPerDay != 50000 {
		t.Errorf("Plans[1] = %+v", cfg.Plans[1])
	}
	if !cfg.Plans[0].Default {
		t.Error("Plans[0] should be the default")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, `
upstream:
  url: "http://localhost:3000"
`)

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server = %s:%d, want 0.0.0.0:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Auth.KeyPrefix != "fg_" {
		t.Errorf("default Auth.KeyPrefix = %s, want fg_", cfg.Auth.KeyPrefix)
	}
	if cfg.Auth.Header != "X-API-Key" || cfg.Auth.SessionCookie != "session" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Auth.SessionsEnabled() {
		t.Error("sessions should be disabled without a jwt_secret")
	}
	if !cfg.RateLimit.IsAtomic() {
		t.Error("admission should be atomic by default")
	}
	if cfg.RateLimit.FailOpen {
		t.Error("should fail closed by default")
	}
	if cfg.RateLimit.Store != "sqlite" {
		t.Errorf("default RateLimit.Store = %s, want sqlite", cfg.RateLimit.Store)
	}
	if cfg.Usage.Mode != "store" || cfg.Usage.Store != "sqlite" {
		t.Errorf("usage = %s/%s, want store/sqlite", cfg.Usage.Mode, cfg.Usage.Store)
	}
	if cfg.Usage.DefaultDays != 30 || cfg.Usage.MaxQueryDays != 90 {
		t.Errorf("usage days = %d/%d, want 30/90", cfg.Usage.DefaultDays, cfg.Usage.MaxQueryDays)
	}
	if cfg.Usage.Retention != 90*24*time.Hour {
		t.Errorf("Usage.Retention = %v", cfg.Usage.Retention)
	}
	if cfg.Billing.Mode != "none" {
		t.Errorf("default Billing.Mode = %s, want none", cfg.Billing.Mode)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || !cfg.OpenAPI.Enabled {
		t.Error("metrics and openapi should be enabled by default")
	}
	// Default free plan should be added
	if len(cfg.Plans) != 1 || cfg.Plans[0].ID != "free" || !cfg.Plans[0].Default {
		t.Errorf("default plan not added: %v", cfg.Plans)
	}
}

func TestLoad_LenientAdmission(t *testing.T) {
	cfg := writeAndLoad(t, `
upstream:
  url: "http://localhost:3000"
rate_limit:
  atomic: false
  fail_open: true
`)

	if cfg.RateLimit.IsAtomic() {
		t.Error("atomic: false should select lenient admission")
	}
	if !cfg.RateLimit.FailOpen {
		t.Error("fail_open not loaded")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_URL", "http://env-test:3000")

	cfg := writeAndLoad(t, `
upstream:
  url: "${TEST_UPSTREAM_URL}"
`)

	if cfg.Upstream.URL != "http://env-test:3000" {
		t.Errorf("Upstream.URL = %s, want http://env-test:3000", cfg.Upstream.URL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing upstream",
			content: "server:\n  port: 8080\n",
			want:    "upstream.url",
		},
		{
			name:    "bad counter store",
			content: "upstream:\n  url: http://x\nrate_limit:\n  store: memcached\n",
			want:    "rate_limit.store",
		},
		{
			name:    "redis without url",
			content: "upstream:\n  url: http://x\nrate_limit:\n  store: redis\n",
			want:    "rate_limit.redis.url",
		},
		{
			name:    "negative default",
			content: "upstream:\n  url: http://x\nrate_limit:\n  default:\n    requests_per_minute: -1\n",
			want:    "rate_limit.default",
		},
		{
			name:    "bad usage mode",
			content: "upstream:\n  url: http://x\nusage:\n  mode: remote\n",
			want:    "usage.mode",
		},
		{
			name:    "postgres without dsn",
			content: "upstream:\n  url: http://x\nusage:\n  store: postgres\n",
			want:    "usage.postgres.dsn",
		},
		{
			name:    "default days above max",
			content: "upstream:\n  url: http://x\nusage:\n  default_days: 100\n  max_query_days: 60\n",
			want:    "usage.default_days",
		},
		{
			name:    "bad billing mode",
			content: "upstream:\n  url: http://x\nbilling:\n  mode: paddle\n",
			want:    "billing.mode",
		},
		{
			name:    "stripe without key",
			content: "upstream:\n  url: http://x\nbilling:\n  mode: stripe\n",
			want:    "billing.stripe_key",
		},
		{
			name:    "plan without id",
			content: "upstream:\n  url: http://x\nplans:\n  - name: Free\n",
			want:    "plans[0].id",
		},
		{
			name:    "duplicate plan",
			content: "upstream:\n  url: http://x\nplans:\n  - id: free\n  - id: free\n",
			want:    "duplicated",
		},
		{
			name:    "two defaults",
			content: "upstream:\n  url: http://x\nplans:\n  - id: a\n    default: true\n  - id: b\n    default: true\n",
			want:    "default",
		},
		{
			name:    "bad database driver",
			content: "upstream:\n  url: http://x\ndatabase:\n  driver: mysql\n",
			want:    "database.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "upstream: [unclosed"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FILINGGATE_UPSTREAM_URL", "http://parser:9000")
	t.Setenv("FILINGGATE_SERVER_PORT", "9999")
	t.Setenv("FILINGGATE_RATELIMIT_STORE", "redis")
	t.Setenv("FILINGGATE_RATELIMIT_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FILINGGATE_RATELIMIT_RPM", "5")
	t.Setenv("FILINGGATE_RATELIMIT_RPD", "50")
	t.Setenv("FILINGGATE_RATELIMIT_ATOMIC", "false")
	t.Setenv("FILINGGATE_RATELIMIT_FAIL_OPEN", "yes")
	t.Setenv("FILINGGATE_USAGE_STORE", "postgres")
	t.Setenv("FILINGGATE_USAGE_POSTGRES_DSN", "postgres://localhost/usage")
	t.Setenv("FILINGGATE_METRICS_ENABLED", "false")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Upstream.URL != "http://parser:9000" || cfg.Server.Port != 9999 {
		t.Errorf("upstream/port = %s/%d", cfg.Upstream.URL, cfg.Server.Port)
	}
	if cfg.RateLimit.Store != "redis" || cfg.RateLimit.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("rate limit store = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Default.RequestsPerMinute != 5 || cfg.RateLimit.Default.RequestsPerDay != 50 {
		t.Errorf("default policy = %+v", cfg.RateLimit.Default)
	}
	if cfg.RateLimit.IsAtomic() || !cfg.RateLimit.FailOpen {
		t.Errorf("atomic/fail_open = %v/%v, want false/true", cfg.RateLimit.IsAtomic(), cfg.RateLimit.FailOpen)
	}
	if cfg.Usage.Store != "postgres" || cfg.Usage.Postgres.DSN != "postgres://localhost/usage" {
		t.Errorf("usage = %+v", cfg.Usage)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("FILINGGATE_UPSTREAM_URL", "")
	if _, err := config.LoadFromEnv(); err == nil {
		t.Error("expected error without upstream url")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("FILINGGATE_SERVER_PORT", "7070")
	t.Setenv("FILINGGATE_LOG_LEVEL", "debug")
	t.Setenv("FILINGGATE_SERVER_READ_TIMEOUT", "not-a-duration")

	cfg := writeAndLoad(t, `
server:
  port: 8081
  read_timeout: 5s
upstream:
  url: "http://localhost:3000"
logging:
  level: "warn"
`)

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, invalid env value should be ignored", cfg.Server.ReadTimeout)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeConfig(t, validConfig())
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback: %v", err)
		}
		if cfg.Upstream.URL != "http://localhost:3000" {
			t.Errorf("Upstream.URL = %s", cfg.Upstream.URL)
		}
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("FILINGGATE_UPSTREAM_URL", "http://env:3000")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback: %v", err)
		}
		if cfg.Upstream.URL != "http://env:3000" {
			t.Errorf("Upstream.URL = %s", cfg.Upstream.URL)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("FILINGGATE_UPSTREAM_URL", "")
		if _, err := config.LoadWithFallback(""); err == nil {
			t.Error("expected error without any configuration")
		}
	})
}

func TestHasEnvConfig(t *testing.T) {
	t.Setenv("FILINGGATE_UPSTREAM_URL", "")
	if config.HasEnvConfig() {
		t.Error("HasEnvConfig = true without FILINGGATE_UPSTREAM_URL")
	}
	t.Setenv("FILINGGATE_UPSTREAM_URL", "http://x")
	if !config.HasEnvConfig() {
		t.Error("HasEnvConfig = false with FILINGGATE_UPSTREAM_URL")
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "on": true,
		"false": false, "0": false, "no": false, "off": false, "": false, "maybe": false,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			t.Setenv("FILINGGATE_UPSTREAM_URL", "http://x")
			t.Setenv("FILINGGATE_RATELIMIT_FAIL_OPEN", in)
			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv: %v", err)
			}
			if cfg.RateLimit.FailOpen != want {
				t.Errorf("parseBool(%q) = %v, want %v", in, cfg.RateLimit.FailOpen, want)
			}
		})
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return config.Load(path)
}
