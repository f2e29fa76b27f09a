// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parley-chat/parley/internal/model"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize bounds response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// ErrNotFound is returned when the server reports an unknown session.
	ErrNotFound = errors.New("session not found")

	// ErrUnauthorized is returned when the bearer credential is missing or
	// rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError carries a non-2xx response the client could not map to a
// sentinel error.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the parley API.
type Client struct {
	baseURL string
	token   string

	// httpClient serves non-streaming requests with a bounded timeout.
	httpClient *http.Client

	// streamClient has no client-side timeout; streams are bounded by
	// the request context.
	streamClient *http.Client
}

// New creates a client for the API at baseURL, authenticating with the
// given opaque bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:      baseURL,
		token:        token,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
	}
}

// =============================================================================
// SESSION CALLS
// =============================================================================

// CreateSession allocates a session remotely and returns the full record.
func (c *Client) CreateSession(ctx context.Context, title string) (*model.Session, error) {
	body := map[string]string{"title": title}

	var sess model.Session
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions fetches the authoritative session list, ordered by recency,
// each with its nested exchange log.
func (c *Client) ListSessions(ctx context.Context) ([]*model.Session, error) {
	var sessions []*model.Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// PatchSession applies a partial session update. Nil fields are untouched.
func (c *Client) PatchSession(ctx context.Context, id string, title *string, gallery []string) (*model.Session, error) {
	body := map[string]any{}
	if title != nil {
		body["title"] = *title
	}
	if gallery != nil {
		body["gallery"] = gallery
	}

	var sess model.Session
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/sessions/"+id, body, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session remotely.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/sessions/"+id, nil, nil)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doJSON performs one API round-trip, decoding a JSON response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	limited := io.LimitReader(resp.Body, MaxResponseSize)
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// checkStatus maps a non-2xx response to an error, draining a bounded
// amount of body for the message.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &APIError{Status: resp.StatusCode, Message: string(msg)}
}
