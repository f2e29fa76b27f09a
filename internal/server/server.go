// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/respond"
	"github.com/parley-chat/parley/internal/storage"
	"github.com/parley-chat/parley/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8686

	// MaxMessageLength bounds a submitted message, counted in runes.
	MaxMessageLength = 100000

	// MaxRequestBodySize bounds request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the parley HTTP API server.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	store     *storage.Store
	responder *respond.Responder
	auth      *AuthConfig
	limiter   *RateLimiter
}

// NewServer creates a server over a store and responder. A zero port
// selects the default.
func NewServer(port int, store *storage.Store, responder *respond.Responder) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:      port,
		router:    http.NewServeMux(),
		store:     store,
		responder: responder,
		auth:      DefaultAuthConfig(),
		limiter:   DefaultRateLimiter(),
	}

	s.setupRoutes()
	return s
}

// WithAuth sets the authentication configuration.
func (s *Server) WithAuth(config *AuthConfig) *Server {
	s.auth = config
	return s
}

// WithRateLimiter sets a custom rate limiter.
func (s *Server) WithRateLimiter(rl *RateLimiter) *Server {
	s.limiter = rl
	return s
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the fully wired handler chain, exported for tests.
func (s *Server) Handler() http.Handler {
	handler := Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(),
		RateLimitMiddleware(s.limiter),
	)(s.router)

	if s.auth != nil && s.auth.Enabled {
		handler = AuthMiddleware(s.auth)(handler)
	}
	return handler
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.router.HandleFunc("GET /v1/sessions", s.handleListSessions)
	s.router.HandleFunc("PATCH /v1/sessions/{id}", s.handlePatchSession)
	s.router.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	s.router.HandleFunc("POST /v1/stream", s.handleStream)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// SESSION HANDLERS
// ============================================================================

// CreateSessionRequest is the create-session request body.
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// PatchSessionRequest is the patch-session request body. Nil fields are
// left untouched.
type PatchSessionRequest struct {
	Title   *string  `json:"title,omitempty"`
	Gallery []string `json:"gallery,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	// An empty body is a valid "untitled session" request.
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("CREATE_SESSION_BAD_BODY | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	sess, err := s.store.CreateSession(r.Context(), req.Title)
	if err != nil {
		log.Printf("CREATE_SESSION_FAILED | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "Session creation failed")
		return
	}

	log.Printf("SESSION_CREATED | session=%s", sess.ID)
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		log.Printf("LIST_SESSIONS_FAILED | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "Session listing failed")
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	id := r.PathValue("id")

	var req PatchSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("PATCH_SESSION_BAD_BODY | session=%s error=%v", id, err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	sess, err := s.store.PatchSession(r.Context(), id, req.Title, req.Gallery)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("PATCH_SESSION_FAILED | session=%s error=%v", id, err)
		s.writeError(w, http.StatusInternalServerError, "Session update failed")
		return
	}

	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("DELETE_SESSION_FAILED | session=%s error=%v", id, err)
		s.writeError(w, http.StatusInternalServerError, "Session deletion failed")
		return
	}

	log.Printf("SESSION_DELETED | session=%s", id)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// STREAM HANDLER
// ============================================================================

// StreamRequest is the open-stream request body.
type StreamRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// handleStream opens the one-way fragment stream for a submitted message.
// Validation failures reject synchronously with a JSON error; once the
// stream has started, failures surface as a terminal error event and the
// stream is always closed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("STREAM_BAD_BODY | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	// Synchronous rejection before any stream opens.
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "Message must not be empty")
		return
	}
	if util.RuneLen(req.Message) > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Message exceeds maximum length of %d", MaxMessageLength))
		return
	}
	if _, err := s.store.GetSession(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("STREAM_SESSION_LOOKUP_FAILED | session=%s error=%v", req.SessionID, err)
		s.writeError(w, http.StatusInternalServerError, "Stream open failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	start := time.Now()
	fragments := 0
	err := s.responder.Open(r.Context(), req.SessionID, req.Message, func(fragment string) error {
		fragments++
		return sendEvent(w, flusher, fragmentEvent{Chunk: fragment})
	})
	if err != nil {
		// The stream has started; the only legal exit is a terminal
		// event followed by close.
		log.Printf("STREAM_ERROR | session=%s fragments=%d error=%v", req.SessionID, fragments, err)
		sendEvent(w, flusher, errorEvent{Error: "stream failed"})
		return
	}

	sendEvent(w, flusher, doneEvent{Done: true})
	log.Printf("STREAM_COMPLETE | session=%s fragments=%d latency=%dms",
		req.SessionID, fragments, time.Since(start).Milliseconds())
}

// ============================================================================
// STREAM EVENTS
// ============================================================================

// The three wire event shapes. Nothing else is ever emitted on a stream.
type fragmentEvent struct {
	Chunk string `json:"chunk"`
}

type doneEvent struct {
	Done bool `json:"done"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// sendEvent writes one SSE-framed event and flushes it.
func sendEvent(w http.ResponseWriter, flusher http.Flusher, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
