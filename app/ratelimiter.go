package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
)

// DefaultCounterPrefix namespaces counter keys in a shared store.
const DefaultCounterPrefix = "ratelimit"

// RateLimiterConfig contains configuration for RateLimiter.
type RateLimiterConfig struct {
	KeyPrefix string
	// FailOpen admits requests without counting when the store fails.
	FailOpen bool
}

// RateLimiter enforces fixed-window quotas on top of a CounterStore.
type RateLimiter struct {
	store    ports.CounterStore
	policies *PolicyResolver
	clock    ports.Clock
	logger   zerolog.Logger
	metrics  *metrics.Collector // optional
	prefix   string

	failOpen atomic.Bool
}

// NewRateLimiter creates a rate limiter. m may be nil.
func NewRateLimiter(store ports.CounterStore, policies *PolicyResolver, clk ports.Clock, cfg RateLimiterConfig, logger zerolog.Logger, m *metrics.Collector) *RateLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultCounterPrefix
	}
	l := &RateLimiter{
		store:    store,
		policies: policies,
		clock:    clk,
		logger:   logger,
		metrics:  m,
		prefix:   cfg.KeyPrefix,
	}
	l.failOpen.Store(cfg.FailOpen)
	return l
}

// SetFailOpen switches the store failure mode. Safe to call at runtime.
func (l *RateLimiter) SetFailOpen(v bool) {
	l.failOpen.Store(v)
}

// FailOpen reports whether store failures admit requests.
func (l *RateLimiter) FailOpen() bool {
	return l.failOpen.Load()
}

// Policy returns the effective policy for an identity.
func (l *RateLimiter) Policy(ctx context.Context, id gate.Identity) ratelimit.Policy {
	return l.policies.Resolve(ctx, id)
}

// CheckRateLimit reads the current counts without mutating them.
func (l *RateLimiter) CheckRateLimit(ctx context.Context, id gate.Identity) (ratelimit.Info, error) {
	p, counters, now := l.counters(ctx, id)

	counts := make([]int64, len(counters))
	for i, c := range counters {
		n, err := l.store.Get(ctx, c.Key)
		if err != nil {
			return l.degrade(p, now, "get", err)
		}
		counts[i] = n
	}
	return ratelimit.Evaluate(p, counts[0], counts[1], now), nil
}

// IncrementRateLimit counts one request in both windows. A counter created
// by this increment gets its expiry set to the end of its window.
func (l *RateLimiter) IncrementRateLimit(ctx context.Context, id gate.Identity) (ratelimit.Info, error) {
	p, counters, now := l.counters(ctx, id)

	counts := make([]int64, len(counters))
	for i, c := range counters {
		n, err := l.store.Increment(ctx, c.Key)
		if err != nil {
			return l.degrade(p, now, "increment", err)
		}
		if n == 1 {
			if err := l.store.Expire(ctx, c.Key, c.TTL(now)); err != nil {
				return l.degrade(p, now, "expire", err)
			}
		}
		counts[i] = n
	}
	return ratelimit.Evaluate(p, counts[0], counts[1], now), nil
}

// Admit counts the request only if both windows have room, as a single
// atomic store operation. When it returns false the request must be
// rejected and no counter changed.
func (l *RateLimiter) Admit(ctx context.Context, id gate.Identity) (ratelimit.Info, bool, error) {
	p, counters, now := l.counters(ctx, id)

	counts, admitted, err := l.store.Admit(ctx, counters)
	if err != nil {
		info, err := l.degrade(p, now, "admit", err)
		return info, err == nil, err
	}
	return ratelimit.Evaluate(p, counts[0], counts[1], now), admitted, nil
}

// Ping checks the counter store. It ignores the fail-open setting so
// readiness probes report the real state.
func (l *RateLimiter) Ping(ctx context.Context) error {
	if err := l.store.Ping(ctx); err != nil {
		l.countError("ping")
		return &gate.InfrastructureError{Op: "ping", Err: err}
	}
	return nil
}

func (l *RateLimiter) counters(ctx context.Context, id gate.Identity) (ratelimit.Policy, []ratelimit.Counter, time.Time) {
	now := l.clock.Now()
	p := l.policies.Resolve(ctx, id)
	return p, ratelimit.Counters(l.prefix, id.KeyID, p, now), now
}

// degrade turns a store failure into an InfrastructureError, or into an
// unlimited Info when failing open.
func (l *RateLimiter) degrade(p ratelimit.Policy, now time.Time, op string, err error) (ratelimit.Info, error) {
	l.countError(op)
	if l.failOpen.Load() {
		l.logger.Warn().Err(err).Str("op", op).Msg("counter store failed, admitting without counting")
		return ratelimit.Evaluate(p, 0, 0, now), nil
	}
	return ratelimit.Info{}, &gate.InfrastructureError{Op: op, Err: err}
}

func (l *RateLimiter) countError(op string) {
	if l.metrics != nil {
		l.metrics.CounterStoreErrors.WithLabelValues(op).Inc()
	}
}
