package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/filinggate/adapters/clock"
	"github.com/artpar/filinggate/adapters/hasher"
	"github.com/artpar/filinggate/adapters/memory"
	"github.com/artpar/filinggate/app"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 30, 0, time.UTC)

const testKeyPrefix = "fg_"

var testPlans = []plan.Plan{
	{ID: "free", Name: "Free", RequestsPerMinute: 2, RequestsPerDay: 100, Default: true},
	{ID: "pro", Name: "Pro", RequestsPerMinute: 60, RequestsPerDay: 10000, StripePriceID: "price_pro"},
}

type fixture struct {
	clock    *clock.Fake
	keys     *memory.KeyStore
	users    *memory.UserStore
	counters *memory.CounterStore
	policies *app.PolicyResolver
	limiter  *app.RateLimiter
	auth     *app.Authenticator
	keySvc   *app.KeyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(baseTime)
	f := &fixture{
		clock:    clk,
		keys:     memory.NewKeyStore(),
		users:    memory.NewUserStore(),
		counters: memory.NewCounterStore(clk, memory.CounterStoreConfig{}),
	}
	t.Cleanup(func() { f.counters.Close() })

	f.policies = app.NewPolicyResolver(app.PolicyConfig{
		Default: ratelimit.Policy{RequestsPerMinute: 60, RequestsPerDay: 1000},
		Plans:   testPlans,
	}, nil, clk, 0, zerolog.Nop())
	f.limiter = app.NewRateLimiter(f.counters, f.policies, clk, app.RateLimiterConfig{}, zerolog.Nop(), nil)
	f.auth = app.NewAuthenticator(app.AuthDeps{
		Keys:   f.keys,
		Users:  f.users,
		Hasher: hasher.Plain{},
		Clock:  clk,
	}, testKeyPrefix, zerolog.Nop())
	f.keySvc = app.NewKeyService(f.keys, f.users, hasher.Plain{}, clk, testKeyPrefix)
	return f
}

// user creates an active user on a plan and one key for it.
func (f *fixture) user(t *testing.T, email, planID string) (int64, string) {
	t.Helper()
	ctx := context.Background()
	id, err := f.users.Create(ctx, ports.User{Email: email, PlanID: planID})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	raw, _, err := f.keySvc.CreateKey(ctx, id, "default", ratelimit.Policy{})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	return id, raw
}

// identity authenticates a raw key.
func (f *fixture) identity(t *testing.T, raw string) gate.Identity {
	t.Helper()
	id, err := f.auth.Authenticate(context.Background(), gate.Credentials{APIKey: raw})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return id
}

var errStoreDown = errors.New("dial tcp: connection refused")

// failingStore is a CounterStore whose every operation fails.
type failingStore struct{}

func (failingStore) Increment(ctx context.Context, key string) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) Get(ctx context.Context, key string) (int64, error) { return 0, errStoreDown }
func (failingStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errStoreDown
}
func (failingStore) Ping(ctx context.Context) error { return errStoreDown }
func (failingStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	return nil, false, errStoreDown
}

// expireRecorder wraps a CounterStore and records Expire calls.
type expireRecorder struct {
	ports.CounterStore
	mu      sync.Mutex
	expired map[string]time.Duration
}

func (r *expireRecorder) Expire(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	if r.expired == nil {
		r.expired = make(map[string]time.Duration)
	}
	r.expired[key] = ttl
	r.mu.Unlock()
	return r.CounterStore.Expire(ctx, key, ttl)
}

// fakeSubscriptions is a SubscriptionSource that counts lookups.
type fakeSubscriptions struct {
	mu     sync.Mutex
	prices map[string]string
	err    error
	calls  int
}

func (s *fakeSubscriptions) ActivePriceID(ctx context.Context, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.prices[customerID], nil
}
