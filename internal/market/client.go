// Package market fetches index and sector moves from a market-data endpoint
// and condenses them into the outlook consumed by the advisor.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrMalformedPayload is returned when the endpoint answers with a payload
// that cannot be summarized
var ErrMalformedPayload = errors.New("malformed market payload")

// ErrNotConfigured is returned when the client has no endpoint
var ErrNotConfigured = errors.New("market endpoint not configured")

// PermanentError is a failure that another attempt cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsRetryable is always false
func (e *PermanentError) IsRetryable() bool { return false }

// Move is the daily change of one index or sector
type Move struct {
	Name      string  `json:"name"`
	ChangePct float64 `json:"change_pct"`
}

// Snapshot is the raw payload served by the market endpoint
type Snapshot struct {
	Indices []Move `json:"indices"`
	Sectors []Move `json:"sectors"`
}

// HTTPError is a non-2xx answer from the market endpoint
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("market endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a retry could succeed
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// Client reads snapshots from the market endpoint
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig configures the market client
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewClient creates a market-data client
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   config.Endpoint,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// FetchSnapshot performs one GET against the endpoint
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	if c.endpoint == "" {
		return nil, &PermanentError{Err: ErrNotConfigured}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	if len(snap.Indices) == 0 {
		return nil, &PermanentError{Err: fmt.Errorf("%w: no indices", ErrMalformedPayload)}
	}

	log.Debug().
		Int("indices", len(snap.Indices)).
		Int("sectors", len(snap.Sectors)).
		Dur("duration", time.Since(start)).
		Msg("Market snapshot fetched")

	return &snap, nil
}
