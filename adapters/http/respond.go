// Package http provides the HTTP surface: the gate middleware, the usage
// and filing handlers, health endpoints and the router.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
)

// SuccessBody is the envelope of every successful response.
type SuccessBody struct {
	Success  bool     `json:"success" example:"true"`
	Data     any      `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes the response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
	Days      *int      `json:"days,omitempty"`
}

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Success       bool            `json:"success" example:"false"`
	Error         string          `json:"error" example:"rate_limit_exceeded"`
	Message       string          `json:"message" example:"Rate limit exceeded"`
	RateLimitInfo *ratelimit.Info `json:"rateLimitInfo,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, r *http.Request, now time.Time, data any, meta Metadata) {
	meta.Timestamp = now
	meta.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, http.StatusOK, SuccessBody{Success: true, Data: data, Metadata: meta})
}

func writeError(w http.ResponseWriter, resp gate.ErrorResponse, info *ratelimit.Info) {
	writeJSON(w, resp.Status, ErrorBody{
		Error:         resp.Code,
		Message:       resp.Message,
		RateLimitInfo: info,
	})
}

type ctxKey int

const (
	identityKey ctxKey = iota
	rateLimitKey
)

// WithIdentity returns a context carrying the caller identity and the
// quota state after admission.
func WithIdentity(ctx context.Context, id gate.Identity, info ratelimit.Info) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, rateLimitKey, info)
}

// IdentityFrom returns the identity set by the gate.
func IdentityFrom(ctx context.Context) (gate.Identity, bool) {
	id, ok := ctx.Value(identityKey).(gate.Identity)
	return id, ok
}

// RateLimitFrom returns the quota state set by the gate.
func RateLimitFrom(ctx context.Context) (ratelimit.Info, bool) {
	info, ok := ctx.Value(rateLimitKey).(ratelimit.Info)
	return info, ok
}
