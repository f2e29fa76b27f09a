// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/respond"
	"github.com/parley-chat/parley/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	responder := respond.New(store, respond.NewPlaceholderGenerator())
	return NewServer(0, store, responder), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// parseStream decodes the SSE body into chunks and the terminal event.
func parseStream(t *testing.T, body string) (chunks []string, done bool, streamErr string) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		// Anything not starting with "data: " is framing noise.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event struct {
			Chunk *string `json:"chunk"`
			Done  *bool   `json:"done"`
			Error *string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
			t.Fatalf("invalid event %q: %v", line, err)
		}
		switch {
		case event.Chunk != nil:
			chunks = append(chunks, *event.Chunk)
		case event.Done != nil:
			done = *event.Done
		case event.Error != nil:
			streamErr = *event.Error
		default:
			t.Fatalf("event %q has no recognized shape", line)
		}
	}
	return chunks, done, streamErr
}

// =============================================================================
// SESSION ENDPOINT TESTS
// =============================================================================

func TestCreateSession(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions", CreateSessionRequest{Title: "My Chat"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var sess model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.ID == "" || sess.Title != "My Chat" {
		t.Errorf("session = %+v, want identity and title set", sess)
	}
}

func TestCreateSession_EmptyBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for untitled session", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	sess, _ := store.CreateSession(ctx, "has exchanges")
	store.AppendExchange(ctx, sess.ID, "q", "a")

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var sessions []model.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("listed %d sessions, want 1", len(sessions))
	}
	if len(sessions[0].Exchanges) != 1 {
		t.Errorf("nested exchanges = %d, want 1", len(sessions[0].Exchanges))
	}
}

func TestPatchSession(t *testing.T) {
	s, store := newTestServer(t)
	sess, _ := store.CreateSession(context.Background(), "before")

	title := "after"
	rec := doJSON(t, s.Handler(), http.MethodPatch, "/v1/sessions/"+sess.ID,
		PatchSessionRequest{Title: &title, Gallery: []string{"g.png"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var updated model.Session
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Title != "after" || len(updated.Gallery) != 1 {
		t.Errorf("patched session = %+v", updated)
	}
}

func TestPatchSession_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	title := "x"
	rec := doJSON(t, s.Handler(), http.MethodPatch, "/v1/sessions/missing",
		PatchSessionRequest{Title: &title})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	s, store := newTestServer(t)
	sess, _ := store.CreateSession(context.Background(), "doomed")

	rec := doJSON(t, s.Handler(), http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// STREAM ENDPOINT TESTS
// =============================================================================

func TestStream_RoundTrip(t *testing.T) {
	s, store := newTestServer(t)
	sess, _ := store.CreateSession(context.Background(), "")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: "hello there", SessionID: sess.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	chunks, done, streamErr := parseStream(t, rec.Body.String())
	if !done || streamErr != "" {
		t.Fatalf("terminal state: done=%v err=%q, want done with no error", done, streamErr)
	}
	if len(chunks) == 0 {
		t.Fatal("no fragment events delivered")
	}

	// Round-trip: delivered fragments concatenate to the persisted reply.
	loaded, _ := store.GetSession(context.Background(), sess.ID)
	if len(loaded.Exchanges) != 1 {
		t.Fatalf("persisted %d exchanges, want exactly 1", len(loaded.Exchanges))
	}
	if got := strings.Join(chunks, ""); got != loaded.Exchanges[0].ReplyText {
		t.Errorf("streamed %q != persisted %q", got, loaded.Exchanges[0].ReplyText)
	}
}

func TestStream_EmptyMessageRejected(t *testing.T) {
	s, store := newTestServer(t)
	sess, _ := store.CreateSession(context.Background(), "")

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: "   ", SessionID: sess.ID})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 before any stream opens", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "chunk") {
		t.Error("fragments emitted for a rejected submission")
	}

	loaded, _ := store.GetSession(context.Background(), sess.ID)
	if len(loaded.Exchanges) != 0 {
		t.Errorf("rejected submission persisted %d exchanges, want 0", len(loaded.Exchanges))
	}
}

func TestStream_MessageLengthCountsRunes(t *testing.T) {
	s, _ := newTestServer(t)

	// Over the limit by one rune.
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: strings.Repeat("a", MaxMessageLength+1), SessionID: "whatever"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for over-long message", rec.Code)
	}

	// At the limit in runes but over it in bytes. The length check
	// passes, so the request proceeds to the session lookup.
	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: strings.Repeat("é", MaxMessageLength), SessionID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for multibyte message at the rune limit", rec.Code)
	}
}

func TestStream_UnknownSession(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: "hello", SessionID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStream_TouchesSessionTimestamp(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	sess, _ := store.CreateSession(ctx, "")
	before, _ := store.GetSession(ctx, sess.ID)

	doJSON(t, s.Handler(), http.MethodPost, "/v1/stream",
		StreamRequest{Message: "hello", SessionID: sess.ID})

	after, _ := store.GetSession(ctx, sess.ID)
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("session timestamp not touched after stream")
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	s.WithAuth(&AuthConfig{Enabled: true, BearerToken: "secret-token"})

	// Missing credential rejected before any mutation.
	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/sessions", CreateSessionRequest{})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no credential: status = %d, want 401", rec.Code)
	}

	// Wrong credential rejected.
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong credential: status = %d, want 401", rec.Code)
	}

	// Valid credential passes.
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid credential: status = %d, want 200", rec.Code)
	}
}

func TestValidateBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
		want     bool
	}{
		{"match", "abc", "abc", true},
		{"mismatch", "abc", "abd", false},
		{"empty token", "", "abc", false},
		{"empty expected", "abc", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateBearerToken(tt.token, tt.expected); got != tt.want {
				t.Errorf("ValidateBearerToken(%q, %q) = %v, want %v", tt.token, tt.expected, got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	s.WithRateLimiter(NewRateLimiter(1, 2))

	handler := s.Handler()
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodGet, "/health", nil)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("burst requests = %v, first two must pass", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", statuses[2])
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := RecoveryMiddleware()(panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var health HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.Status != "ok" {
		t.Errorf("health status = %q, want ok", health.Status)
	}
}
