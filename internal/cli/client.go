// Package cli implements dispatchctl: a small operator CLI talking to the
// Dispatch Coordinator's HTTP API. Grounded in
// navjo3-queuectl/internal/cli's one-command-per-file layout, each command
// constructor taking the shared dependency (there a *store.Store, here a
// *Client) as a parameter rather than reaching for a package global.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a minimal HTTP client for the operator-facing subset of
// spec.md §6's contract. Distinct from internal/runtime's
// CoordinatorClient, which is scoped to what a worker process needs
// (claim, status PATCH); this one speaks to the same routes from the
// operator's side (create, inspect, scale, stats).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client bound to baseURL.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
