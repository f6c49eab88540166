// Package dispatch sends geofence notifications through the push broadcast function.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/PratikDhanave/geofence-engine/internal/metrics"
	"github.com/PratikDhanave/geofence-engine/internal/models"
)

// Provider names the delivery channel in the delivery log.
const Provider = "webpush-broadcast"

// maxResponseBytes bounds the response body kept for the audit log.
const maxResponseBytes = 4096

// Result is the HTTP outcome of one broadcast call.
type Result struct {
	Status int
	Body   string
}

// OK reports a 2xx response.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Options tune the broadcast client.
type Options struct {
	Timeout time.Duration
	// RPS limits calls per second; 0 disables throttling.
	RPS float64
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// BroadcastClient posts payloads to the broadcast endpoint with a bearer service key.
type BroadcastClient struct {
	url        string
	serviceKey string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewBroadcastClient builds a client for url authenticated with serviceKey.
func NewBroadcastClient(url, serviceKey string, opts Options) (*BroadcastClient, error) {
	if url == "" {
		return nil, errors.New("broadcast url required")
	}
	if serviceKey == "" {
		return nil, errors.New("service key required")
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	return &BroadcastClient{
		url:        url,
		serviceKey: serviceKey,
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// Send posts payload once. A non-2xx status is returned in Result, not as an error;
// err is set only when the request could not complete.
func (b *BroadcastClient) Send(ctx context.Context, payload models.BroadcastPayload) (Result, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("broadcast throttle: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode broadcast payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.serviceKey)

	start := time.Now()
	resp, err := b.client.Do(req)
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Status: resp.StatusCode}, nil
	}

	return Result{Status: resp.StatusCode, Body: string(raw)}, nil
}
