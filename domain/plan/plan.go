// Package plan provides subscription plan value types and pure functions.
package plan

import "github.com/artpar/filinggate/domain/ratelimit"

// Plan is a subscription tier and the quota it grants (immutable value type).
type Plan struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	RequestsPerMinute int64  `yaml:"requests_per_minute" json:"requestsPerMinute"`
	RequestsPerDay    int64  `yaml:"requests_per_day" json:"requestsPerDay"`
	StripePriceID     string `yaml:"stripe_price_id" json:"stripePriceId,omitempty"`
	Default           bool   `yaml:"default" json:"default"`
}

// Policy returns the rate limit policy the plan grants.
func (p Plan) Policy() ratelimit.Policy {
	return ratelimit.Policy{
		RequestsPerMinute: p.RequestsPerMinute,
		RequestsPerDay:    p.RequestsPerDay,
	}
}

// FindPlan finds a plan by ID in a list.
// This is a PURE function.
func FindPlan(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// FindByPrice finds the plan sold under a Stripe price ID.
// This is a PURE function.
func FindByPrice(plans []Plan, priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range plans {
		if p.StripePriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// FindDefault returns the plan marked default, if any.
// This is a PURE function.
func FindDefault(plans []Plan) (Plan, bool) {
	for _, p := range plans {
		if p.Default {
			return p, true
		}
	}
	return Plan{}, false
}
