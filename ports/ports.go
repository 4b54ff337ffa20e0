// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/domain/usage"
)

// ErrNotFound is returned by stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides key hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Counter Store
// -----------------------------------------------------------------------------

// CounterStore is a key-value store with atomic increment and expiry.
// Missing or expired keys read as zero.
type CounterStore interface {
	// Increment atomically adds one and returns the new count.
	Increment(ctx context.Context, key string) (int64, error)

	// Get returns the current count.
	Get(ctx context.Context, key string) (int64, error)

	// Expire sets the key to expire ttl from now.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Admit increments every counter only if every counter is below its
	// limit, as one atomic operation. New counters expire at their End.
	// Returns the counts after the operation (unchanged when not admitted).
	Admit(ctx context.Context, counters []ratelimit.Counter) (counts []int64, admitted bool, err error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists API keys.
type KeyStore interface {
	// Get retrieves keys matching a prefix (for validation).
	Get(ctx context.Context, prefix string) ([]key.Key, error)

	// GetByID retrieves a key by ID.
	GetByID(ctx context.Context, id string) (key.Key, error)

	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Revoke marks a key as revoked.
	Revoke(ctx context.Context, id string, at time.Time) error

	// ListByUser returns all keys for a user, oldest first.
	ListByUser(ctx context.Context, userID int64) ([]key.Key, error)

	// UpdateLastUsed updates the last used timestamp.
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// User status values.
const (
	UserActive    = "active"
	UserSuspended = "suspended"
)

// User represents a user account.
type User struct {
	ID               int64
	Email            string
	Name             string
	PlanID           string
	StripeCustomerID string
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserStore persists user accounts.
type UserStore interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id int64) (User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (User, error)

	// Create stores a new user and returns its assigned ID.
	Create(ctx context.Context, u User) (int64, error)

	// Update modifies an existing user.
	Update(ctx context.Context, u User) error

	// List returns users with pagination.
	List(ctx context.Context, limit, offset int) ([]User, error)
}

// PlanStore persists subscription plans.
type PlanStore interface {
	// List returns all plans.
	List(ctx context.Context) ([]plan.Plan, error)

	// Get retrieves a plan by ID.
	Get(ctx context.Context, id string) (plan.Plan, error)

	// Upsert creates or replaces a plan.
	Upsert(ctx context.Context, p plan.Plan) error
}

// UsageStore persists usage events.
type UsageStore interface {
	// RecordBatch stores events. Events whose request ID is already
	// stored are skipped.
	RecordBatch(ctx context.Context, events []usage.Event) error

	// Events returns the events selected by the filter, oldest first.
	Events(ctx context.Context, f usage.Filter) ([]usage.Event, error)

	// Purge deletes events older than before and returns how many.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Usage Tracking
// -----------------------------------------------------------------------------

// UsageTracker records usage events and answers usage queries.
type UsageTracker interface {
	// Track accepts an event. It must not block on storage.
	Track(ctx context.Context, e usage.Event) error

	// Stats summarizes the key's events over the last q.Days days.
	Stats(ctx context.Context, q usage.Query) (usage.Stats, error)

	// Flush writes any buffered events.
	Flush(ctx context.Context) error

	// Close flushes and stops the tracker.
	Close() error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Session is a verified browser session.
type Session struct {
	UserID int64
	Email  string
}

// SessionVerifier verifies session cookies issued by the web front end.
type SessionVerifier interface {
	Verify(token string) (Session, error)
}

// SubscriptionSource reports the price a customer currently pays for.
type SubscriptionSource interface {
	// ActivePriceID returns the price of the customer's active subscription,
	// or "" when there is none.
	ActivePriceID(ctx context.Context, customerID string) (string, error)
}

// FilingRequest is a request for the filing parser service.
type FilingRequest struct {
	Path      string
	Query     string
	RequestID string
	Header    http.Header
}

// FilingResponse is the parser service's answer.
type FilingResponse struct {
	Status      int
	ContentType string
	Body        []byte
	LatencyMs   int64
}

// FilingSource is the external SEC filing parser service.
type FilingSource interface {
	// Fetch forwards a request to the parser service.
	Fetch(ctx context.Context, req FilingRequest) (FilingResponse, error)

	// HealthCheck verifies the service is reachable.
	HealthCheck(ctx context.Context) error
}
