// Package gate provides the value types and error taxonomy of the
// authenticated, rate limited request path.
package gate

import (
	"errors"
	"fmt"

	"github.com/artpar/filinggate/domain/ratelimit"
)

// Method identifies how a caller authenticated.
type Method string

const (
	MethodAPIKey  Method = "api_key"
	MethodSession Method = "session"
)

// Credentials are the raw authentication inputs of a request (value type).
type Credentials struct {
	APIKey       string
	SessionToken string
}

// Empty reports whether no credential was presented.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.SessionToken == ""
}

// Identity is a verified caller (value type).
// KeyID selects the counters and usage events; APIKey is the value shown
// back to the caller (masked) and is the raw key for API key callers or
// the stored key prefix for session callers.
type Identity struct {
	UserID           int64
	KeyID            string
	APIKey           string
	PlanID           string
	StripeCustomerID string
	Method           Method

	// Override is the key's own quota. Zero fields fall back to the plan.
	Override ratelimit.Policy
}

// ErrorResponse is an error to return to the client (value type).
type ErrorResponse struct {
	Status  int
	Code    string
	Message string
}

// Common error responses.
var (
	ErrMissingCredentials = ErrorResponse{
		Status:  401,
		Code:    "authentication_failed",
		Message: "API key or session is required",
	}
	ErrInvalidCredentials = ErrorResponse{
		Status:  401,
		Code:    "authentication_failed",
		Message: "Invalid, expired or revoked credentials",
	}
	ErrRateLimited = ErrorResponse{
		Status:  429,
		Code:    "rate_limit_exceeded",
		Message: "Rate limit exceeded",
	}
	ErrInfrastructure = ErrorResponse{
		Status:  500,
		Code:    "infrastructure_error",
		Message: "Rate limiter unavailable",
	}
	ErrInternal = ErrorResponse{
		Status:  500,
		Code:    "internal_error",
		Message: "Internal server error",
	}
	ErrBadRequest = ErrorResponse{
		Status:  400,
		Code:    "invalid_request",
		Message: "Invalid request",
	}
	ErrNotFound = ErrorResponse{
		Status:  404,
		Code:    "not_found",
		Message: "Resource not found",
	}
	ErrMethodNotAllowed = ErrorResponse{
		Status:  405,
		Code:    "method_not_allowed",
		Message: "Method not allowed",
	}
	ErrUpstream = ErrorResponse{
		Status:  502,
		Code:    "upstream_error",
		Message: "Filing service unavailable",
	}
)

// AuthError rejects a request before any counter is touched.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// RateLimitError rejects a request whose quota is exhausted.
type RateLimitError struct {
	Info ratelimit.Info
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window: minute=%d/%d day=%d/%d)",
		e.Info.LimitedBy,
		e.Info.MinuteCount, e.Info.Limits.RequestsPerMinute,
		e.Info.DayCount, e.Info.Limits.RequestsPerDay)
}

// InfrastructureError means the limiter could not be consulted.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("counter store %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// ErrRecording marks a usage event that could not be persisted.
// It is logged and never returned to a client.
var ErrRecording = errors.New("usage recording failed")

// Response maps an error to the response a client sees.
// Unknown errors become a generic 500 so internal detail never leaks.
func Response(err error) ErrorResponse {
	var authErr *AuthError
	var limitErr *RateLimitError
	var infraErr *InfrastructureError

	switch {
	case errors.As(err, &authErr):
		if authErr.Reason == ReasonMissing {
			return ErrMissingCredentials
		}
		return ErrInvalidCredentials
	case errors.As(err, &limitErr):
		return ErrRateLimited
	case errors.As(err, &infraErr):
		return ErrInfrastructure
	}
	return ErrInternal
}

// ReasonMissing is the AuthError reason for a request with no credentials.
const ReasonMissing = "missing_credentials"
