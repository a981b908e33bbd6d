package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// chargeEnvelope is the wire shape shared by the sandbox gateways. Every
// family speaks the same envelope with family-specific instrument bodies.
type chargeEnvelope struct {
	Data chargeData `json:"data"`
}

type chargeData struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	DeclineCode   string `json:"decline_code,omitempty"`
	DeclineReason string `json:"decline_reason,omitempty"`
	NextActionURL string `json:"next_action_url,omitempty"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}

type refundEnvelope struct {
	Data refundData `json:"data"`
}

type refundData struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// gatewayClient is the HTTP plumbing shared by the concrete adapters.
type gatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func newGatewayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *gatewayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &gatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (g *gatewayClient) postJSON(ctx context.Context, path, idempotencyKey string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	return resp, nil
}

func (g *gatewayClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeChargeResponse maps one gateway HTTP response onto a
// ChargeResponse. 2xx and 402 carry structured outcomes; 429 is a rate
// limit with Retry-After; anything else is a transport-level failure the
// caller surfaces as retryable.
func decodeChargeResponse(resp *http.Response) (*ChargeResponse, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = seconds
			}
		}
		return &ChargeResponse{Outcome: OutcomeRateLimited, RetryAfter: retryAfter}, nil

	case resp.StatusCode == http.StatusOK,
		resp.StatusCode == http.StatusCreated,
		resp.StatusCode == http.StatusPaymentRequired:
		var envelope chargeEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		return chargeResponseFromData(envelope.Data)

	default:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

func chargeResponseFromData(data chargeData) (*ChargeResponse, error) {
	out := &ChargeResponse{
		ProviderReference: data.ID,
		DeclineCode:       data.DeclineCode,
		DeclineReason:     data.DeclineReason,
		NextActionURL:     data.NextActionURL,
		RetryAfter:        data.RetryAfter,
	}
	switch data.Status {
	case "succeeded":
		out.Outcome = OutcomeSucceeded
	case "requires_action":
		out.Outcome = OutcomeRequiresAction
	case "declined":
		out.Outcome = OutcomeDeclined
		if out.DeclineCode == "" {
			out.DeclineCode = DeclineCardDeclined
		}
	case "rate_limited":
		out.Outcome = OutcomeRateLimited
	default:
		return nil, fmt.Errorf("gateway returned unknown charge status %q", data.Status)
	}
	return out, nil
}

// decodeInto decodes a response body and closes it.
func decodeInto(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeRefundResponse(resp *http.Response) (*RefundResponse, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var envelope refundEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}
	return &RefundResponse{
		ProviderRefundID: envelope.Data.ID,
		Succeeded:        envelope.Data.Status == "succeeded",
		FailureReason:    envelope.Data.FailureReason,
	}, nil
}

func mapStatus(data chargeData) (*StatusResponse, error) {
	out := &StatusResponse{ProviderReference: data.ID}
	switch data.Status {
	case "pending", "requires_action":
		out.Status = ChargeStatusPending
	case "succeeded":
		out.Status = ChargeStatusSucceeded
	case "declined", "failed":
		out.Status = ChargeStatusFailed
	default:
		return nil, fmt.Errorf("gateway returned unknown charge status %q", data.Status)
	}
	return out, nil
}

// dedupeCache remembers charge answers per idempotency key inside the
// bounded window, so a retried call never reaches the provider twice.
type dedupeCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]dedupeEntry
}

type dedupeEntry struct {
	resp      ChargeResponse
	expiresAt time.Time
}

func newDedupeCache(window time.Duration) *dedupeCache {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &dedupeCache{
		window:  window,
		entries: make(map[string]dedupeEntry),
	}
}

func (c *dedupeCache) get(key string) (*ChargeResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	out := entry.resp
	return &out, true
}

func (c *dedupeCache) put(key string, resp *ChargeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	// lazy sweep keeps the map bounded without a background goroutine
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = dedupeEntry{resp: *resp, expiresAt: now.Add(c.window)}
}
