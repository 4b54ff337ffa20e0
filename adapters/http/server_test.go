package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/artpar/filinggate/adapters/auth"
	"github.com/artpar/filinggate/adapters/clock"
	"github.com/artpar/filinggate/adapters/hasher"
	apihttp "github.com/artpar/filinggate/adapters/http"
	"github.com/artpar/filinggate/adapters/idgen"
	"github.com/artpar/filinggate/adapters/memory"
	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/app"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 30, 0, time.UTC)

type serverConfig struct {
	store        ports.CounterStore // default: memory store
	tracker      ports.UsageTracker // default: memory tracker
	source       ports.FilingSource // default: fakeFilings
	apiKeyHeader string
	lenient      bool
	failOpen     bool
}

type testServer struct {
	handler  http.Handler
	clock    *clock.Fake
	tracker  *memory.Tracker
	counters *memory.CounterStore
	filings  *fakeFilings
	tokens   *auth.TokenService
	metrics  *metrics.Collector
	users    *memory.UserStore
	keySvc   *app.KeyService
	userID   int64
	rawKey   string
	keyID    string
}

func newServer(t *testing.T, cfg serverConfig) *testServer {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFake(baseTime)

	counters := memory.NewCounterStore(clk, memory.CounterStoreConfig{})
	t.Cleanup(func() { counters.Close() })
	var store ports.CounterStore = counters
	if cfg.store != nil {
		store = cfg.store
	}

	keys := memory.NewKeyStore()
	users := memory.NewUserStore()
	tracker := memory.NewTracker(clk)
	tokens := auth.NewTokenService("test-secret", "filinggate", time.Hour, clk)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	policies := app.NewPolicyResolver(app.PolicyConfig{
		Default: ratelimit.Policy{RequestsPerMinute: 60, RequestsPerDay: 1000},
		Plans: []plan.Plan{
			{ID: "free", Name: "Free", RequestsPerMinute: 2, RequestsPerDay: 100, Default: true},
		},
	}, nil, clk, 0, zerolog.Nop())
	limiter := app.NewRateLimiter(store, policies, clk, app.RateLimiterConfig{FailOpen: cfg.failOpen}, zerolog.Nop(), m)
	authn := app.NewAuthenticator(app.AuthDeps{
		Keys:     keys,
		Users:    users,
		Hasher:   hasher.Plain{},
		Sessions: tokens,
		Clock:    clk,
	}, "fg_", zerolog.Nop())
	keySvc := app.NewKeyService(keys, users, hasher.Plain{}, clk, "fg_")

	userID, _ := users.Create(ctx, ports.User{Email: "dev@example.com", PlanID: "free"})
	raw, k, err := keySvc.CreateKey(ctx, userID, "default", ratelimit.Policy{})
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	filings := &fakeFilings{status: http.StatusOK, contentType: "application/json", body: `{"cik":"320193","filings":[]}`}
	var source ports.FilingSource = filings
	if cfg.source != nil {
		source = cfg.source
	}
	var usageTracker ports.UsageTracker = tracker
	if cfg.tracker != nil {
		usageTracker = cfg.tracker
	}
	g := apihttp.NewGate(authn, limiter, usageTracker, clk, apihttp.GateConfig{
		Lenient:      cfg.lenient,
		APIKeyHeader: cfg.apiKeyHeader,
	}, zerolog.Nop(), m)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Gate:    g,
		Usage:   apihttp.NewUsageHandler(usageTracker, clk, 30, 90, zerolog.Nop()),
		Filings: apihttp.NewFilingsHandler(source, clk, zerolog.Nop(), m),
		Health: apihttp.NewHealthHandler(map[string]apihttp.HealthChecker{
			"counter_store": apihttp.HealthCheckFunc(limiter.Ping),
		}),
		IDGen:   idgen.NewSequential("req-"),
		Metrics: m,
		Version: "test",
	}, zerolog.Nop())

	return &testServer{
		handler:  router,
		clock:    clk,
		tracker:  tracker,
		counters: counters,
		filings:  filings,
		tokens:   tokens,
		metrics:  m,
		users:    users,
		keySvc:   keySvc,
		userID:   userID,
		rawKey:   raw,
		keyID:    k.ID,
	}
}

func (s *testServer) get(t *testing.T, path string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, f := range setup {
		f(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func withKey(raw string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("X-API-Key", raw) }
}

func withBearer(raw string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+raw) }
}

func withSession(token string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: token}) }
}

type errorBody struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	RateLimitInfo *struct {
		IsLimited          bool   `json:"isLimited"`
		LimitedBy          string `json:"limitedBy"`
		CurrentMinuteCount int64  `json:"currentMinuteCount"`
		MinuteResetAt      string `json:"minuteResetAt"`
	} `json:"rateLimitInfo"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	if body.Success {
		t.Error("error envelope must have success=false")
	}
	return body
}

// fakeFilings is a FilingSource returning a canned response.
type fakeFilings struct {
	mu          sync.Mutex
	status      int
	contentType string
	body        string
	err         error
	requests    []ports.FilingRequest
}

func (f *fakeFilings) Fetch(ctx context.Context, req ports.FilingRequest) (ports.FilingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return ports.FilingResponse{}, f.err
	}
	return ports.FilingResponse{Status: f.status, ContentType: f.contentType, Body: []byte(f.body), LatencyMs: 12}, nil
}

func (f *fakeFilings) HealthCheck(ctx context.Context) error { return f.err }

func (f *fakeFilings) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var errStoreDown = errors.New("dial tcp 127.0.0.1:6379: connection refused")

// downStore is a CounterStore that cannot be reached.
type downStore struct{}

func (downStore) Increment(ctx context.Context, key string) (int64, error) { return 0, errStoreDown }
func (downStore) Get(ctx context.Context, key string) (int64, error)       { return 0, errStoreDown }
func (downStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errStoreDown
}
func (downStore) Ping(ctx context.Context) error { return errStoreDown }
func (downStore) Admit(ctx context.Context, counters []ratelimit.Counter) ([]int64, bool, error) {
	return nil, false, errStoreDown
}
