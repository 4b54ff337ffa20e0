package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/artpar/filinggate/ports"
)

// ErrBodyTooLarge is returned by Fetch when the parser service sends more
// than MaxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream response body too large")

// UpstreamClient forwards filing requests to the parser service.
type UpstreamClient struct {
	client      *http.Client
	baseURL     *url.URL
	maxBody     int64
	credHeaders map[string]bool
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MaxBodyBytes    int64    // default 50MB
	APIKeyHeaders   []string // credential headers never forwarded, besides Authorization and Cookie
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) (*UpstreamClient, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	// Request paths resolve below the base path.
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 50 << 20
	}

	credHeaders := map[string]bool{"X-Api-Key": true}
	for _, h := range cfg.APIKeyHeaders {
		if h != "" {
			credHeaders[http.CanonicalHeaderKey(h)] = true
		}
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &UpstreamClient{
		client:      &http.Client{Transport: transport, Timeout: timeout},
		baseURL:     baseURL,
		maxBody:     maxBody,
		credHeaders: credHeaders,
	}, nil
}

// Fetch sends a GET to the parser service and returns its response.
func (u *UpstreamClient) Fetch(ctx context.Context, req ports.FilingRequest) (ports.FilingResponse, error) {
	start := time.Now()

	upstreamURL := u.baseURL.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(req.Path, "/"),
		RawQuery: req.Query,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL.String(), nil)
	if err != nil {
		return ports.FilingResponse{}, fmt.Errorf("create request: %w", err)
	}

	// Copy headers (except credentials and hop-by-hop)
	for k, v := range req.Header {
		if skipHeader(k) || u.credHeaders[http.CanonicalHeaderKey(k)] || len(v) == 0 {
			continue
		}
		httpReq.Header.Set(k, v[0])
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return ports.FilingResponse{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBody+1))
	if err != nil {
		return ports.FilingResponse{}, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > u.maxBody {
		return ports.FilingResponse{}, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, u.maxBody)
	}

	return ports.FilingResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		LatencyMs:   time.Since(start).Milliseconds(),
	}, nil
}

// HealthCheck verifies the parser service is reachable.
func (u *UpstreamClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.baseURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	// Any response (even 404) means upstream is reachable
	return nil
}

// Close closes idle upstream connections.
func (u *UpstreamClient) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

func skipHeader(k string) bool {
	switch strings.ToLower(k) {
	case "authorization", "cookie",
		"connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade", "host", "accept-encoding":
		return true
	}
	return false
}

var _ ports.FilingSource = (*UpstreamClient)(nil)
