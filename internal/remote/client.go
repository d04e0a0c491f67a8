// Package remote is the typed client for the remote logbook authority.
// It owns transport concerns only: serialization, authentication,
// timeouts and retry. Interpreting per-entry outcomes is the sync
// orchestrator's job.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flightbase/logbook/internal/types"
)

// TransportError marks a failure to complete the exchange: network
// faults, timeouts, malformed responses and non-2xx statuses. It is
// never a per-entry business rejection; callers leave entries pending
// when they see one.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PushRequest is one batch of serialized entries.
type PushRequest struct {
	DeviceID string              `json:"device_id"`
	Entries  []types.FlightEntry `json:"entries"`
}

// SyncedItem reconciles one accepted entry with its server identity.
type SyncedItem struct {
	LocalID  string `json:"local_id"`
	ServerID int64  `json:"server_id"`
}

// FailedItem is one explicitly rejected entry.
type FailedItem struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

// PushResponse is the per-entry outcome of a batch submission.
type PushResponse struct {
	Synced []SyncedItem `json:"synced"`
	Failed []FailedItem `json:"failed"`
}

// HasDetail reports whether the response carried per-entry outcome
// arrays at all. Older endpoint versions omit both; how to treat that
// ambiguity is the caller's policy decision.
func (r *PushResponse) HasDetail() bool {
	return r.Synced != nil || r.Failed != nil
}

// Client talks to the remote sync endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	client   *http.Client

	// maxRetries bounds transient-failure retries per call.
	maxRetries uint64
}

// NewClient creates a Client for the given endpoint.
func NewClient(baseURL, apiKey, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		deviceID:   deviceID,
		client:     &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

// Ping checks connectivity to the remote endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Err: fmt.Errorf("health check failed: %d", resp.StatusCode)}
	}
	return nil
}

// Push submits a batch of entries as one request and returns the
// per-entry outcome. Transient failures (network faults, 5xx) are
// retried with capped exponential backoff before a TransportError is
// surfaced; a 4xx is surfaced immediately.
func (c *Client) Push(ctx context.Context, entries []types.FlightEntry) (*PushResponse, error) {
	body, err := json.Marshal(PushRequest{DeviceID: c.deviceID, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var result *PushResponse
	operation := func() error {
		resp, err := c.send(ctx, http.MethodPost, "/api/v1/entries/sync", body)
		if err != nil {
			return &TransportError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &TransportError{Err: fmt.Errorf("server error: %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			// Not retryable; the request itself was refused.
			return backoff.Permanent(&TransportError{
				Err: fmt.Errorf("unexpected status: %d", resp.StatusCode),
			})
		}

		var parsed PushResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil && err != io.EOF {
			return backoff.Permanent(&TransportError{Err: fmt.Errorf("decode response: %w", err)})
		}
		result = &parsed
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.client.Do(req)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}
