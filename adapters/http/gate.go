package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/filinggate/adapters/metrics"
	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/domain/usage"
	"github.com/artpar/filinggate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Authenticator verifies request credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds gate.Credentials) (gate.Identity, error)
}

// Limiter is the rate limiter consulted by the gate.
type Limiter interface {
	Ping(ctx context.Context) error
	CheckRateLimit(ctx context.Context, id gate.Identity) (ratelimit.Info, error)
	IncrementRateLimit(ctx context.Context, id gate.Identity) (ratelimit.Info, error)
	Admit(ctx context.Context, id gate.Identity) (ratelimit.Info, bool, error)
	FailOpen() bool
}

// GateConfig contains configuration for Gate.
type GateConfig struct {
	APIKeyHeader  string // default X-API-Key
	SessionCookie string // default session
	// Lenient counts with a separate increment after the check instead of
	// one atomic admit. Concurrent requests near the limit can then all
	// pass the check.
	Lenient bool
}

// Gate authenticates, rate limits and meters requests to the routes it wraps.
type Gate struct {
	auth    Authenticator
	limiter Limiter
	tracker ports.UsageTracker
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector // optional
	cfg     GateConfig
}

// NewGate creates the gate middleware. m may be nil.
func NewGate(auth Authenticator, limiter Limiter, tracker ports.UsageTracker, clk ports.Clock, cfg GateConfig, logger zerolog.Logger, m *metrics.Collector) *Gate {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "session"
	}
	return &Gate{
		auth:    auth,
		limiter: limiter,
		tracker: tracker,
		clock:   clk,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}
}

// Handler wraps next. A request passes Authenticate, Check and Admit in
// order, each terminal on failure; a request that reaches next is always
// recorded, whether next returns or panics.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		// 1. Authenticate
		id, err := g.auth.Authenticate(ctx, g.credentials(r))
		if err != nil {
			g.reject(w, r, err)
			return
		}

		// 2. Check
		if err := g.limiter.Ping(ctx); err != nil {
			if !g.limiter.FailOpen() {
				g.reject(w, r, err)
				return
			}
			g.logger.Warn().Err(err).Msg("counter store unreachable, failing open")
		}
		info, err := g.limiter.CheckRateLimit(ctx, id)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		if info.IsLimited {
			g.reject(w, r, &gate.RateLimitError{Info: info})
			return
		}

		// 3. Admit
		info, err = g.admit(ctx, id)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		setRateLimitHeaders(w, info)

		// 4. Record
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec := recover()
			if rec != nil {
				status = http.StatusInternalServerError
			}
			g.record(ctx, r, id, status, start)
			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r.WithContext(WithIdentity(ctx, id, info)))
	})
}

func (g *Gate) admit(ctx context.Context, id gate.Identity) (ratelimit.Info, error) {
	if g.cfg.Lenient {
		return g.limiter.IncrementRateLimit(ctx, id)
	}
	info, admitted, err := g.limiter.Admit(ctx, id)
	if err != nil {
		return info, err
	}
	if !admitted {
		// Another request took the last slot between Check and Admit.
		return info, &gate.RateLimitError{Info: info}
	}
	return info, nil
}

// credentials extracts the API key from the Authorization bearer token,
// the API key header or the api_key query parameter, and the session
// cookie.
func (g *Gate) credentials(r *http.Request) gate.Credentials {
	var creds gate.Credentials

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		creds.APIKey = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if creds.APIKey == "" {
		creds.APIKey = r.Header.Get(g.cfg.APIKeyHeader)
	}
	if creds.APIKey == "" {
		creds.APIKey = r.URL.Query().Get("api_key")
	}
	if cookie, err := r.Cookie(g.cfg.SessionCookie); err == nil {
		creds.SessionToken = cookie.Value
	}
	return creds
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	resp := gate.Response(err)
	reqID := middleware.GetReqID(r.Context())

	var authErr *gate.AuthError
	var limitErr *gate.RateLimitError
	var infraErr *gate.InfrastructureError

	switch {
	case errors.As(err, &authErr):
		g.logger.Warn().Str("request_id", reqID).Str("reason", authErr.Reason).Msg("authentication failed")
		if g.metrics != nil {
			g.metrics.AuthFailures.WithLabelValues(authErr.Reason).Inc()
		}
	case errors.As(err, &limitErr):
		g.logger.Warn().Str("request_id", reqID).Str("window", string(limitErr.Info.LimitedBy)).Msg("rate limit exceeded")
		if g.metrics != nil {
			g.metrics.RateLimitHits.WithLabelValues(string(limitErr.Info.LimitedBy)).Inc()
		}
		now := g.clock.Now()
		setRateLimitHeaders(w, limitErr.Info)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limitErr.Info, now)))
		writeError(w, resp, &limitErr.Info)
		return
	case errors.As(err, &infraErr):
		g.logger.Error().Err(err).Str("request_id", reqID).Msg("rate limiter unavailable")
	default:
		g.logger.Error().Err(err).Str("request_id", reqID).Msg("gate failed")
	}
	writeError(w, resp, nil)
}

// record tracks the completed request. It runs after the response is
// written and never changes it.
func (g *Gate) record(ctx context.Context, r *http.Request, id gate.Identity, status int, start time.Time) {
	endpoint := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			endpoint = pattern
		}
	}

	e := usage.Event{
		RequestID:        middleware.GetReqID(r.Context()),
		APIKey:           id.KeyID,
		UserID:           id.UserID,
		Endpoint:         endpoint,
		Method:           r.Method,
		Timestamp:        g.clock.Now(),
		ResponseStatus:   status,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}

	// The client may already be gone; the event is still recorded.
	if err := g.tracker.Track(context.WithoutCancel(ctx), e); err != nil {
		g.logger.Warn().Err(err).Str("request_id", e.RequestID).Msg(gate.ErrRecording.Error())
	}
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	limit := info.Limits.RequestsPerMinute
	reset := info.MinuteResetAt
	if info.LimitedBy == ratelimit.Day {
		limit = info.Limits.RequestsPerDay
		reset = info.DayResetAt
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining(), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func retryAfterSeconds(info ratelimit.Info, now time.Time) int {
	secs := int(math.Ceil(info.RetryAfter(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
