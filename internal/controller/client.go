package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
)

// defaultTimeout bounds a snapshot request when the config does not set one.
const defaultTimeout = 30 * time.Second

// Client fetches entity state from the external home-automation controller
// over its REST API.
//
// The client performs no internal retries: the sync engine treats a failed
// snapshot fetch as a fatal, reported whole-run error, and the scheduler
// decides when to try again.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a controller client from configuration.
func New(cfg config.ControllerConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAllStates retrieves the complete entity snapshot from the controller.
//
// Network failures, auth rejections and non-2xx responses all wrap
// ErrUnreachable; the orchestrator aborts the pass with zero progress when
// this fails.
func (c *Client) FetchAllStates(ctx context.Context) ([]ExternalState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	var states []ExternalState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %w", ErrUnreachable, err)
	}

	return states, nil
}
