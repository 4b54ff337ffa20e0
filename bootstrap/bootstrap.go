// Package bootstrap wires all dependencies and starts the application.
// Construction is explicit: every adapter is chosen from the loaded
// configuration and handed to the services that use it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/filinggate/adapters/auth"
	"github.com/artpar/filinggate/adapters/clock"
	"github.com/artpar/filinggate/adapters/hasher"
	apihttp "github.com/artpar/filinggate/adapters/http"
	"github.com/artpar/filinggate/adapters/idgen"
	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/adapters/sqlite"
	"github.com/artpar/filinggate/app"
	"github.com/artpar/filinggate/config"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options are process-level settings that do not come from the config file.
type Options struct {
	Clock    ports.Clock           // default: real clock
	Registry prometheus.Registerer // default: the global registry
	Version  string
	Commit   string
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector // nil when metrics are disabled

	Policies *app.PolicyResolver
	Limiter  *app.RateLimiter
	Tracker  ports.UsageTracker
	Usage    ports.UsageStore // nil in memory usage mode
	Keys     *app.KeyService
	Users    ports.UserStore
	Plans    ports.PlanStore
	Sessions *auth.TokenService // nil when sessions are disabled

	clock    ports.Clock
	upstream *apihttp.UpstreamClient
	janitor  *Janitor
	holder   *config.Holder
	closers  []closer

	closeOnce sync.Once
}

type closer struct {
	name string
	fn   func() error
}

// New creates and initializes the application from a loaded configuration.
// Resources opened before a failure are released.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger := NewLogger(cfg.Logging)
	logger.Info().Str("version", opts.Version).Msg("initializing filinggate")

	a := &App{
		Logger:  logger,
		Config:  cfg,
		clock:   opts.Clock,
		janitor: NewJanitor(time.Minute, logger),
	}
	if err := a.build(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) error {
	cfg := a.Config

	if cfg.Metrics.Enabled {
		if opts.Registry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.Registry)
		} else {
			a.Metrics = metrics.New()
		}
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	ctx := context.Background()

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	counters, err := a.openCounterStore(ctx)
	if err != nil {
		return fmt.Errorf("init counter store: %w", err)
	}

	a.Policies = app.NewPolicyResolver(policyConfig(cfg), a.subscriptionSource(), a.clock, cfg.Billing.CacheTTL, a.Logger)
	a.Limiter = app.NewRateLimiter(counters, a.Policies, a.clock, app.RateLimiterConfig{
		KeyPrefix: cfg.RateLimit.KeyPrefix,
		FailOpen:  cfg.RateLimit.FailOpen,
	}, a.Logger, a.Metrics)

	if err := a.initTracker(ctx); err != nil {
		return fmt.Errorf("init usage tracker: %w", err)
	}

	if err := a.initHTTPServer(opts); err != nil {
		return fmt.Errorf("init http server: %w", err)
	}
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := sqlite.Open(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	a.addCloser("database", db.Close)

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db

	a.Users = sqlite.NewUserStore(db)
	a.Plans = sqlite.NewPlanStore(db)
	return a.syncPlans(ctx, a.Config.Plans)
}

// syncPlans mirrors the configured plans into the plan store so the CLI
// and the database agree with the running policy.
func (a *App) syncPlans(ctx context.Context, plans []plan.Plan) error {
	for _, p := range plans {
		if err := a.Plans.Upsert(ctx, p); err != nil {
			return fmt.Errorf("store plan %s: %w", p.ID, err)
		}
	}
	return nil
}

func (a *App) initHTTPServer(opts Options) error {
	cfg := a.Config

	keys := sqlite.NewKeyStore(a.DB)
	h := hasher.NewBcrypt(cfg.Auth.BcryptCost)
	a.Keys = app.NewKeyService(keys, a.Users, h, a.clock, cfg.Auth.KeyPrefix)

	deps := app.AuthDeps{
		Keys:   keys,
		Users:  a.Users,
		Hasher: h,
		Clock:  a.clock,
	}
	if cfg.Auth.SessionsEnabled() {
		a.Sessions = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTExpiration, a.clock)
		deps.Sessions = a.Sessions
	}
	authenticator := app.NewAuthenticator(deps, cfg.Auth.KeyPrefix, a.Logger)

	upstream, err := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{
		BaseURL:         cfg.Upstream.URL,
		Timeout:         cfg.Upstream.Timeout,
		MaxIdleConns:    cfg.Upstream.MaxIdleConns,
		IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
		MaxBodyBytes:    cfg.Upstream.MaxBodyBytes,
		APIKeyHeaders:   []string{cfg.Auth.Header},
	})
	if err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	a.upstream = upstream

	gate := apihttp.NewGate(authenticator, a.Limiter, a.Tracker, a.clock, apihttp.GateConfig{
		APIKeyHeader:  cfg.Auth.Header,
		SessionCookie: cfg.Auth.SessionCookie,
		Lenient:       !cfg.RateLimit.IsAtomic(),
	}, a.Logger, a.Metrics)

	checks := map[string]apihttp.HealthChecker{
		"counter_store":  apihttp.HealthCheckFunc(a.Limiter.Ping),
		"filing_service": upstream,
	}
	if p, ok := a.Usage.(interface{ Ping(context.Context) error }); ok {
		checks["usage_store"] = apihttp.HealthCheckFunc(p.Ping)
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Gate:    gate,
		Usage:   apihttp.NewUsageHandler(a.Tracker, a.clock, cfg.Usage.DefaultDays, cfg.Usage.MaxQueryDays, a.Logger),
		Filings: apihttp.NewFilingsHandler(upstream, a.clock, a.Logger, a.Metrics),
		Health:  apihttp.NewHealthHandler(checks),
		IDGen:          idgen.UUID{},
		Metrics:        a.Metrics,
		EnableSwagger:  cfg.OpenAPI.Enabled,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        opts.Version,
		Commit:         opts.Commit,
	}, a.Logger)

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return nil
}

// WatchConfig applies reloaded configuration from h while the app runs.
// Only policies, plans, the failure mode and the log level are reloaded;
// the rest requires a restart.
func (a *App) WatchConfig(h *config.Holder) {
	a.holder = h
	if a.Metrics != nil {
		h.SetMetrics(a.Metrics)
	}
	h.OnChange(a.ApplyConfig)
}

// ApplyConfig swaps in the reloadable parts of cfg.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Policies.Update(policyConfig(cfg))
	a.Limiter.SetFailOpen(cfg.RateLimit.FailOpen)
	if err := a.syncPlans(context.Background(), cfg.Plans); err != nil {
		a.Logger.Error().Err(err).Msg("plan sync failed")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Logger.Info().
		Int("plans", len(cfg.Plans)).
		Int("overrides", len(cfg.RateLimit.Overrides)).
		Bool("fail_open", cfg.RateLimit.FailOpen).
		Msg("rate limit policy reloaded")
}

// Handler returns the HTTP handler (for tests and embedding).
func (a *App) Handler() http.Handler {
	return a.HTTPServer.Handler
}

// Run starts the HTTP server, the janitor and the config watchers, and
// blocks until ctx is cancelled, SIGINT or SIGTERM arrives, or the server
// fails. Shutdown is graceful.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
		return nil
	})

	g.Go(func() error {
		return a.janitor.Run(ctx)
	})

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
		g.Go(func() error {
			<-ctx.Done()
			a.holder.Stop()
			return nil
		})
	}

	err := g.Wait()
	a.Close()
	return err
}

// Close flushes buffered usage and releases every resource. Safe to call
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.Tracker != nil {
			if err := a.Tracker.Close(); err != nil {
				a.Logger.Error().Err(err).Msg("usage tracker close error")
			}
		}
		if a.upstream != nil {
			a.upstream.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.fn(); err != nil {
				a.Logger.Error().Err(err).Str("resource", c.name).Msg("close error")
			}
		}
		a.Logger.Info().Msg("shutdown complete")
	})
	return nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func policyConfig(cfg *config.Config) app.PolicyConfig {
	return app.PolicyConfig{
		Default:   cfg.RateLimit.Default,
		Overrides: cfg.RateLimit.Overrides,
		Plans:     cfg.Plans,
	}
}

// NewLogger builds the process logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Sweep runs the retention sweeps once.
func (a *App) Sweep(ctx context.Context) {
	a.janitor.Sweep(ctx)
}
