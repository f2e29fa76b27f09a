// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// =============================================================================
// STREAM TYPES
// =============================================================================

// maxEventSize bounds a single stream event line (64KB).
const maxEventSize = 64 * 1024

// ErrStreamIncomplete is returned when the stream ends without a terminal
// done or error event.
var ErrStreamIncomplete = errors.New("stream ended without terminal event")

// FragmentFunc receives each fragment in delivery order.
type FragmentFunc func(fragment string)

// StreamError is a mid-flight stream failure that preserves the partial
// content received before the error.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// streamEvent covers the three legal wire shapes.
type streamEvent struct {
	Chunk *string `json:"chunk"`
	Done  *bool   `json:"done"`
	Error *string `json:"error"`
}

// =============================================================================
// STREAM CONSUMPTION
// =============================================================================

// OpenStream submits a message and consumes the resulting fragment stream.
// onFragment is invoked for each fragment in delivery order; OpenStream
// returns nil after the terminal done event, or a *StreamError carrying
// the partial content if the stream failed mid-flight. Validation
// failures (empty message, unknown session, bad credential) surface as
// plain errors before any fragment is delivered.
func (c *Client) OpenStream(ctx context.Context, sessionID, message string, onFragment FragmentFunc) error {
	body, err := json.Marshal(map[string]string{
		"message":    message,
		"session_id": sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	return consumeStream(resp.Body, onFragment)
}

// consumeStream decodes SSE-framed events until a terminal event or EOF.
func consumeStream(r io.Reader, onFragment FragmentFunc) error {
	var assembled strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	for scanner.Scan() {
		line := scanner.Text()

		// Any line not starting with "data: " is framing noise.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
			// A malformed event is also noise; the terminal event
			// decides the stream's fate.
			continue
		}

		switch {
		case event.Chunk != nil:
			assembled.WriteString(*event.Chunk)
			onFragment(*event.Chunk)
		case event.Done != nil && *event.Done:
			return nil
		case event.Error != nil:
			return &StreamError{
				Partial: assembled.String(),
				Err:     errors.New(*event.Error),
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return &StreamError{Partial: assembled.String(), Err: err}
	}
	return &StreamError{Partial: assembled.String(), Err: ErrStreamIncomplete}
}
