package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/filinggate/adapters/payment"
)

const subscriptionList = `{
  "object": "list",
  "url": "/v1/subscriptions",
  "has_more": false,
  "data": [{
    "id": "sub_1",
    "object": "subscription",
    "status": "active",
    "items": {
      "object": "list",
      "url": "/v1/subscription_items",
      "has_more": false,
      "data": [{"id": "si_1", "object": "subscription_item", "price": {"id": "price_pro", "object": "price"}}]
    }
  }]
}`

func stripeServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions" {
			t.Errorf("path = %s, want /v1/subscriptions", r.URL.Path)
		}
		if gotQuery != nil {
			*gotQuery = r.URL.RawQuery
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStripeSubscriptions_ActivePriceID(t *testing.T) {
	var query string
	srv := stripeServer(t, http.StatusOK, subscriptionList, &query)
	src := payment.NewStripeSubscriptions(payment.StripeConfig{SecretKey: "sk_test_123", BackendURL: srv.URL})

	price, err := src.ActivePriceID(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("ActivePriceID() error = %v", err)
	}
	if price != "price_pro" {
		t.Errorf("price = %q, want price_pro", price)
	}
	if query == "" {
		t.Error("expected customer/status filters in query")
	}
}

func TestStripeSubscriptions_NoSubscription(t *testing.T) {
	srv := stripeServer(t, http.StatusOK, `{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[]}`, nil)
	src := payment.NewStripeSubscriptions(payment.StripeConfig{SecretKey: "sk_test_123", BackendURL: srv.URL})

	price, err := src.ActivePriceID(context.Background(), "cus_1")
	if err != nil || price != "" {
		t.Errorf("ActivePriceID() = %q, %v, want empty", price, err)
	}
}

func TestStripeSubscriptions_APIError(t *testing.T) {
	srv := stripeServer(t, http.StatusUnauthorized,
		`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`, nil)
	src := payment.NewStripeSubscriptions(payment.StripeConfig{SecretKey: "sk_test_bad", BackendURL: srv.URL})

	if _, err := src.ActivePriceID(context.Background(), "cus_1"); err == nil {
		t.Error("ActivePriceID() should surface API errors")
	}
}

func TestStripeSubscriptions_EmptyCustomer(t *testing.T) {
	src := payment.NewStripeSubscriptions(payment.StripeConfig{SecretKey: "sk_test_123", BackendURL: "http://127.0.0.1:1"})
	price, err := src.ActivePriceID(context.Background(), "")
	if err != nil || price != "" {
		t.Errorf("ActivePriceID(\"\") = %q, %v", price, err)
	}
}

func TestStatic(t *testing.T) {
	src := payment.Static{"cus_1": "price_pro"}
	if p, _ := src.ActivePriceID(context.Background(), "cus_1"); p != "price_pro" {
		t.Errorf("Static = %q", p)
	}
	if p, _ := src.ActivePriceID(context.Background(), "cus_2"); p != "" {
		t.Errorf("Static(unknown) = %q", p)
	}
}
