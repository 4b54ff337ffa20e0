package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/key"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
)

// Session authentication failure reasons.
const (
	ReasonInvalidSession = "invalid_session"
	ReasonNoActiveKey    = "no_active_key"
)

// AuthDeps contains dependencies for Authenticator.
type AuthDeps struct {
	Keys     ports.KeyStore
	Users    ports.UserStore
	Hasher   ports.Hasher
	Sessions ports.SessionVerifier // optional
	Clock    ports.Clock
}

// Authenticator turns request credentials into a verified identity.
// API keys win over session cookies when both are present.
type Authenticator struct {
	keys      ports.KeyStore
	users     ports.UserStore
	hasher    ports.Hasher
	sessions  ports.SessionVerifier
	clock     ports.Clock
	logger    zerolog.Logger
	keyPrefix string
}

// NewAuthenticator creates an authenticator for keys with the given prefix.
func NewAuthenticator(deps AuthDeps, keyPrefix string, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		keys:      deps.Keys,
		users:     deps.Users,
		hasher:    deps.Hasher,
		sessions:  deps.Sessions,
		clock:     deps.Clock,
		logger:    logger,
		keyPrefix: keyPrefix,
	}
}

// Authenticate verifies credentials. Rejections are *gate.AuthError;
// any other error is a store failure.
func (a *Authenticator) Authenticate(ctx context.Context, creds gate.Credentials) (gate.Identity, error) {
	switch {
	case creds.APIKey != "":
		return a.authenticateKey(ctx, creds.APIKey)
	case creds.SessionToken != "" && a.sessions != nil:
		return a.authenticateSession(ctx, creds.SessionToken)
	}
	return gate.Identity{}, &gate.AuthError{Reason: gate.ReasonMissing}
}

func (a *Authenticator) authenticateKey(ctx context.Context, rawKey string) (gate.Identity, error) {
	now := a.clock.Now()

	// 1. Validate format (PURE)
	prefix, ok := key.ValidateFormat(rawKey, a.keyPrefix)
	if !ok {
		return gate.Identity{}, &gate.AuthError{Reason: key.ReasonBadFormat}
	}

	// 2. Lookup candidates by prefix (I/O)
	candidates, err := a.keys.Get(ctx, prefix)
	if err != nil {
		return gate.Identity{}, fmt.Errorf("lookup key: %w", err)
	}

	// 3. Compare hashes
	var matched key.Key
	found := false
	for _, k := range candidates {
		if a.hasher.Compare(k.Hash, rawKey) {
			matched, found = k, true
			break
		}
	}
	if !found {
		return gate.Identity{}, &gate.AuthError{Reason: key.ReasonNotFound}
	}

	// 4. Validate key (PURE)
	if v := key.Validate(matched, now); !v.Valid {
		return gate.Identity{}, &gate.AuthError{Reason: v.Reason}
	}

	// 5. Owner must be active (I/O)
	user, err := a.activeUser(ctx, matched.UserID)
	if err != nil {
		return gate.Identity{}, err
	}

	if err := a.keys.UpdateLastUsed(ctx, matched.ID, now); err != nil {
		a.logger.Debug().Err(err).Str("key_id", matched.ID).Msg("update last used failed")
	}

	return identity(user, matched, rawKey, gate.MethodAPIKey), nil
}

// authenticateSession verifies a session cookie and meters the request
// against the user's oldest usable key.
func (a *Authenticator) authenticateSession(ctx context.Context, token string) (gate.Identity, error) {
	sess, err := a.sessions.Verify(token)
	if err != nil {
		return gate.Identity{}, &gate.AuthError{Reason: ReasonInvalidSession}
	}

	user, err := a.activeUser(ctx, sess.UserID)
	if err != nil {
		return gate.Identity{}, err
	}

	keys, err := a.keys.ListByUser(ctx, user.ID)
	if err != nil {
		return gate.Identity{}, fmt.Errorf("list user keys: %w", err)
	}
	now := a.clock.Now()
	for _, k := range keys {
		if key.Validate(k, now).Valid {
			return identity(user, k, k.Prefix, gate.MethodSession), nil
		}
	}
	return gate.Identity{}, &gate.AuthError{Reason: ReasonNoActiveKey}
}

func (a *Authenticator) activeUser(ctx context.Context, id int64) (ports.User, error) {
	user, err := a.users.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return ports.User{}, &gate.AuthError{Reason: key.ReasonNotFound}
	}
	if err != nil {
		return ports.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.Status != ports.UserActive {
		return ports.User{}, &gate.AuthError{Reason: key.ReasonUserSuspend}
	}
	return user, nil
}

func identity(u ports.User, k key.Key, shown string, m gate.Method) gate.Identity {
	return gate.Identity{
		UserID:           u.ID,
		KeyID:            k.ID,
		APIKey:           shown,
		PlanID:           u.PlanID,
		StripeCustomerID: u.StripeCustomerID,
		Method:           m,
		Override: ratelimit.Policy{
			RequestsPerMinute: k.RequestsPerMinute,
			RequestsPerDay:    k.RequestsPerDay,
		},
	}
}
