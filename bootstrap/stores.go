package bootstrap

import (
	"context"
	"fmt"

	"github.com/artpar/filinggate/adapters/breaker"
	"github.com/artpar/filinggate/adapters/memory"
	"github.com/artpar/filinggate/adapters/payment"
	"github.com/artpar/filinggate/adapters/postgres"
	"github.com/artpar/filinggate/adapters/redis"
	"github.com/artpar/filinggate/adapters/sqlite"
	"github.com/artpar/filinggate/app"
	"github.com/artpar/filinggate/ports"
)

// openCounterStore builds the configured rate limit counter store and
// wraps it in a circuit breaker when enabled.
func (a *App) openCounterStore(ctx context.Context) (ports.CounterStore, error) {
	cfg := a.Config.RateLimit

	var store ports.CounterStore
	switch cfg.Store {
	case "memory":
		s := memory.NewCounterStore(a.clock, memory.CounterStoreConfig{})
		a.addCloser("counter_store", s.Close)
		store = s

	case "redis":
		client, err := redis.Open(ctx, redis.Config{
			URL:         cfg.Redis.URL,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		s := redis.NewCounterStore(client)
		a.addCloser("counter_store", s.Close)
		store = s

	case "sqlite", "":
		s := sqlite.NewCounterStore(a.DB, a.clock)
		a.janitor.Add("rate_limit_counters", s.Cleanup)
		store = s

	default:
		return nil, fmt.Errorf("unknown counter store %q", cfg.Store)
	}

	a.Logger.Info().Str("store", cfg.Store).Msg("rate limit counter store ready")

	if cfg.Breaker.Enabled {
		store = breaker.New(store, breaker.Config{
			Name:        "counter_store",
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}, a.Logger)
	}
	return store, nil
}

// subscriptionSource returns the configured billing source, or nil when
// plans come only from stored user records.
func (a *App) subscriptionSource() ports.SubscriptionSource {
	cfg := a.Config.Billing
	switch cfg.Mode {
	case "stripe":
		a.Logger.Info().Msg("resolving plans from stripe subscriptions")
		return payment.NewStripeSubscriptions(payment.StripeConfig{
			SecretKey:  cfg.StripeKey,
			BackendURL: cfg.StripeURL,
			Timeout:    cfg.Timeout,
		})
	case "static":
		return payment.Static(cfg.Subscribers)
	default:
		return nil
	}
}

// initTracker builds the usage tracker. Stored usage is purged after the
// retention period by the janitor.
func (a *App) initTracker(ctx context.Context) error {
	cfg := a.Config.Usage

	if cfg.Mode == "memory" {
		a.Tracker = memory.NewTracker(a.clock)
		return nil
	}

	var store ports.UsageStore
	var purge func(context.Context) (int64, error)

	switch cfg.Store {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Postgres.DSN, postgres.PoolConfig{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		a.addCloser("usage_store", db.Close)

		s := postgres.NewUsageStore(db)
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate usage store: %w", err)
		}
		store = s
		purge = func(ctx context.Context) (int64, error) {
			return s.Purge(ctx, a.clock.Now().Add(-cfg.Retention))
		}

	case "sqlite", "":
		s := sqlite.NewUsageStore(a.DB)
		store = s
		purge = func(ctx context.Context) (int64, error) {
			return s.Purge(ctx, a.clock.Now().Add(-cfg.Retention))
		}

	default:
		return fmt.Errorf("unknown usage store %q", cfg.Store)
	}

	if cfg.Retention > 0 {
		a.janitor.Add("usage_retention", purge)
	}

	a.Tracker = app.NewStoreTracker(store, a.clock, app.TrackerConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxBuffer:     cfg.MaxBuffer,
	}, a.Logger, a.Metrics)
	a.Usage = store
	return nil
}
