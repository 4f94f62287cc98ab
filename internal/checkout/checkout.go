// Package checkout is the thin client for the hosted payment endpoint. It
// creates a checkout session and hands back the redirect URL; everything
// else belongs to the payment provider.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrNotConfigured = errors.New("checkout: endpoint not configured")

type Request struct {
	PriceID    string `json:"price_id"`
	Mode       string `json:"mode"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// CreateSession posts the request with the caller's bearer token and returns
// the provider's redirect URL.
func (c *Client) CreateSession(ctx context.Context, bearerToken string, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if req.PriceID == "" {
		return "", errors.New("checkout: price_id is required")
	}
	if req.Mode == "" {
		req.Mode = "subscription"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("checkout: endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("checkout: response missing redirect url")
	}
	return out.URL, nil
}
