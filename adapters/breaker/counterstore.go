// Package breaker wraps the counter store in a circuit breaker so a dead
// store fails requests immediately instead of after a dial timeout.
// An open circuit is still a store failure: gated routes fail closed.
package breaker

import (
	"context"
	"time"

	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config configures the breaker.
type Config struct {
	Name        string
	MaxFailures uint32        // consecutive failures that open the circuit
	OpenTimeout time.Duration // time in open state before a trial request
	HalfOpenMax uint32        // trial requests allowed in half-open state
}

// CounterStore is a ports.CounterStore guarded by a circuit breaker.
type CounterStore struct {
	inner ports.CounterStore
	cb    *gobreaker.CircuitBreaker
}

// New wraps inner. State changes are logged as warnings.
func New(inner ports.CounterStore, cfg Config, logger zerolog.Logger) *CounterStore {
	if cfg.Name == "" {
		cfg.Name = "counter-store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMax == 0 {
		cfg.HalfOpenMax = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("circuit", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &CounterStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the current breaker state.
func (s *CounterStore) State() gobreaker.State {
	return s.cb.State()
}

// Increment implements ports.CounterStore.
func (s *CounterStore) Increment(ctx context.Context, key string) (int64, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Increment(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Get implements ports.CounterStore.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Expire implements ports.CounterStore.
func (s *CounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Expire(ctx, key, ttl)
	})
	return err
}

// Ping implements ports.CounterStore.
func (s *CounterStore) Ping(ctx context.Context) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Ping(ctx)
	})
	return err
}

type admitResult struct {
	counts   []int64
	admitted bool
}

// Admit implements ports.CounterStore.
func (s *CounterStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		counts, ok, err := s.inner.Admit(ctx, counters)
		return admitResult{counts: counts, admitted: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(admitResult)
	return r.counts, r.admitted, nil
}

var _ ports.CounterStore = (*CounterStore)(nil)
