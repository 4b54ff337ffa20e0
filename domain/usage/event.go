// Package usage provides usage event types and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"errors"
	"time"
)

// Event is one completed request against a gated route (immutable value type).
// APIKey holds the key ID, never the raw secret.
type Event struct {
	RequestID        string    `json:"requestId"`
	APIKey           string    `json:"apiKey"`
	UserID           int64     `json:"userId"`
	Endpoint         string    `json:"endpoint"`
	Method           string    `json:"method"`
	Timestamp        time.Time `json:"timestamp"`
	ResponseStatus   int       `json:"responseStatus"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
}

// Validation errors.
var (
	ErrMissingRequestID = errors.New("usage event: request id is required")
	ErrMissingKey       = errors.New("usage event: api key is required")
	ErrMissingTimestamp = errors.New("usage event: timestamp is required")
)

// Validate checks that an event can be stored.
// This is a PURE function.
func (e Event) Validate() error {
	switch {
	case e.RequestID == "":
		return ErrMissingRequestID
	case e.APIKey == "":
		return ErrMissingKey
	case e.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// Succeeded reports whether the response was not an error (status < 400).
func (e Event) Succeeded() bool {
	return e.ResponseStatus < 400
}

// Filter selects events for a query. Zero values match everything.
type Filter struct {
	APIKey string
	UserID int64
	Start  time.Time
	End    time.Time
	Limit  int
}

// Matches reports whether e is selected by f.
// Start and End are inclusive.
// This is a PURE function.
func (f Filter) Matches(e Event) bool {
	if f.APIKey != "" && e.APIKey != f.APIKey {
		return false
	}
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}
