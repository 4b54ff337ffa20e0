// Package payment looks up a customer's subscription with the payment
// provider so the rate limit policy follows the plan they pay for.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/artpar/filinggate/ports"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
	// BackendURL overrides the Stripe API URL (stripe-mock, tests).
	BackendURL string
	Timeout    time.Duration
}

// StripeSubscriptions implements ports.SubscriptionSource for Stripe.
// It uses its own API client rather than the package-level stripe.Key.
type StripeSubscriptions struct {
	api *client.API
}

// NewStripeSubscriptions creates a Stripe subscription source.
func NewStripeSubscriptions(cfg StripeConfig) *StripeSubscriptions {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &StripeSubscriptions{api: api}
}

// ActivePriceID returns the price of the customer's first active
// subscription item, or "" when the customer has no active subscription.
func (s *StripeSubscriptions) ActivePriceID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	iter := s.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if sub.Items == nil {
			continue
		}
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.ID != "" {
				return item.Price.ID, nil
			}
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return "", nil
}

var _ ports.SubscriptionSource = (*StripeSubscriptions)(nil)

// Static is a ports.SubscriptionSource backed by a fixed map of
// customer ID to price ID. Used when no payment provider is configured
// (empty map) and in tests.
type Static map[string]string

// ActivePriceID returns the mapped price.
func (s Static) ActivePriceID(ctx context.Context, customerID string) (string, error) {
	return s[customerID], nil
}

var _ ports.SubscriptionSource = Static(nil)
