// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/filinggate/domain/gate"
	"github.com/artpar/filinggate/domain/plan"
	"github.com/artpar/filinggate/domain/ratelimit"
	"github.com/artpar/filinggate/ports"
	"github.com/rs/zerolog"
)

// PolicyConfig contains hot-reloadable policy configuration.
type PolicyConfig struct {
	Default   ratelimit.Policy
	Overrides map[string]ratelimit.Policy // key ID -> policy
	Plans     []plan.Plan
}

// PolicyResolver picks the quota for an identity. The first source that
// sets a field wins, in this order: the key's stored override, the
// configured override for the key, the plan of the customer's active
// Stripe subscription, the user's stored plan, the default plan and the
// configured default.
type PolicyResolver struct {
	subs     ports.SubscriptionSource // optional
	clock    ports.Clock
	logger   zerolog.Logger
	cacheTTL time.Duration

	cfg atomic.Pointer[PolicyConfig]

	mu     sync.Mutex
	prices map[string]cachedPrice
}

type cachedPrice struct {
	priceID   string
	fetchedAt time.Time
}

// NewPolicyResolver creates a policy resolver. subs may be nil.
// Subscription lookups are cached for cacheTTL (default 5 minutes).
func NewPolicyResolver(cfg PolicyConfig, subs ports.SubscriptionSource, clk ports.Clock, cacheTTL time.Duration, logger zerolog.Logger) *PolicyResolver {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	r := &PolicyResolver{
		subs:     subs,
		clock:    clk,
		logger:   logger,
		cacheTTL: cacheTTL,
		prices:   make(map[string]cachedPrice),
	}
	r.Update(cfg)
	return r
}

// Update replaces the policy configuration.
// This is thread-safe and can be called while handling requests.
func (r *PolicyResolver) Update(cfg PolicyConfig) {
	r.cfg.Store(&cfg)
}

// Config returns the current policy configuration.
func (r *PolicyResolver) Config() PolicyConfig {
	return *r.cfg.Load()
}

// Resolve returns the effective policy for an identity.
// It never fails: a subscription lookup error falls back to the stored plan.
func (r *PolicyResolver) Resolve(ctx context.Context, id gate.Identity) ratelimit.Policy {
	cfg := r.cfg.Load()

	p := id.Override
	p = p.WithDefaults(cfg.Overrides[id.KeyID])

	if priceID := r.activePrice(ctx, id.StripeCustomerID); priceID != "" {
		if paid, ok := plan.FindByPrice(cfg.Plans, priceID); ok {
			p = p.WithDefaults(paid.Policy())
		}
	}
	if stored, ok := plan.FindPlan(cfg.Plans, id.PlanID); ok {
		p = p.WithDefaults(stored.Policy())
	}
	if def, ok := plan.FindDefault(cfg.Plans); ok {
		p = p.WithDefaults(def.Policy())
	}
	return p.WithDefaults(cfg.Default)
}

func (r *PolicyResolver) activePrice(ctx context.Context, customerID string) string {
	if r.subs == nil || customerID == "" {
		return ""
	}
	now := r.clock.Now()

	r.mu.Lock()
	cached, ok := r.prices[customerID]
	r.mu.Unlock()
	if ok && now.Sub(cached.fetchedAt) < r.cacheTTL {
		return cached.priceID
	}

	priceID, err := r.subs.ActivePriceID(ctx, customerID)
	if err != nil {
		r.logger.Warn().Err(err).Str("customer_id", customerID).Msg("subscription lookup failed, using stored plan")
		if ok {
			return cached.priceID
		}
		return ""
	}

	r.mu.Lock()
	r.prices[customerID] = cachedPrice{priceID: priceID, fetchedAt: now}
	r.mu.Unlock()
	return priceID
}
