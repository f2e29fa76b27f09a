// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/parley-chat/parley/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownSession indicates the session id is not in the local view.
	ErrUnknownSession = errors.New("unknown session")
)

// =============================================================================
// REMOTE INTERFACE
// =============================================================================

// Remote is the subset of the API client the store needs to settle
// local mutations against the server.
type Remote interface {
	CreateSession(ctx context.Context, title string) (*model.Session, error)
	PatchSession(ctx context.Context, id string, title *string, gallery []string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Store is the client's local session cache. The visible list is kept
// in recency order (most recently updated first). All methods are safe
// for concurrent use.
type Store struct {
	mu sync.Mutex

	remote Remote

	// sessions is the visible list; tombstoned ids never appear here.
	sessions []*model.Session
	activeID string

	// tombstones records locally deleted session ids for the lifetime
	// of the process. Never pruned.
	tombstones map[string]struct{}
}

// New creates an empty store backed by the given remote.
func New(remote Remote) *Store {
	return &Store{
		remote:     remote,
		tombstones: make(map[string]struct{}),
	}
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Sessions returns a snapshot of the visible session list in recency
// order. The returned slice is owned by the caller; the sessions it
// points at are shared and must be treated as read-only.
func (s *Store) Sessions() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Active returns the active session, or nil if none is active.
func (s *Store) Active() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(s.activeID)
}

// ActiveID returns the active session id, or "" if none is active.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Get returns the session with the given id, or ErrUnknownSession.
func (s *Store) Get(id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(id); sess != nil {
		return sess, nil
	}
	return nil, ErrUnknownSession
}

// IsDeleted reports whether the id is in the tombstone set.
func (s *Store) IsDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tombstones[id]
	return ok
}

// findLocked returns the session with the given id, or nil. Caller
// holds s.mu.
func (s *Store) findLocked(id string) *model.Session {
	if id == "" {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// SetActive switches the active session.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return ErrUnknownSession
	}
	s.activeID = id
	return nil
}

// CreateSession allocates a session on the server and adds it to the
// front of the local list. It becomes the active session if no session
// was active.
func (s *Store) CreateSession(ctx context.Context, title string) (*model.Session, error) {
	sess, err := s.remote.CreateSession(ctx, title)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]*model.Session{sess}, s.sessions...)
	if s.activeID == "" {
		s.activeID = sess.ID
	}
	return sess, nil
}

// AppendExchange records an exchange locally without waiting for the
// server. The server's copy catches up through its own persistence
// path; reconciliation tolerates the window where the two disagree.
func (s *Store) AppendExchange(sessionID string, ex model.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(sessionID)
	if sess == nil {
		return ErrUnknownSession
	}
	sess.AppendExchange(ex)
	return nil
}

// SyncTitle pushes the session's locally derived title to the server.
// Sessions are created untitled and take their title from the first
// utterance, so the server only learns the title through this call; a
// refresh would otherwise revert the session to untitled. A remote
// failure is logged and otherwise ignored, the next completed exchange
// retries naturally.
func (s *Store) SyncTitle(ctx context.Context, sessionID string) {
	s.mu.Lock()
	sess := s.findLocked(sessionID)
	var title string
	if sess != nil {
		title = sess.Title
	}
	s.mu.Unlock()

	if title == "" {
		return
	}
	if _, err := s.remote.PatchSession(ctx, sessionID, &title, nil); err != nil {
		log.Printf("TITLE_SYNC_FAILED | session=%s error=%v", sessionID, err)
	}
}

// ReplaceAll installs a fresh authoritative session list, subtracting
// tombstoned ids first. The active session's detail is preserved from
// the local copy unless the incoming copy disagrees in exchange count;
// an equal-count snapshot may simply be stale and must not clobber an
// optimistic append in flight. If the incoming list omits the active
// session entirely, the local copy is retained so the active slot is
// never emptied by a refresh.
func (s *Store) ReplaceAll(incoming []*model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.findLocked(s.activeID)

	next := make([]*model.Session, 0, len(incoming))
	activeSeen := false
	for _, sess := range incoming {
		if _, dead := s.tombstones[sess.ID]; dead {
			continue
		}
		if current != nil && sess.ID == current.ID {
			activeSeen = true
			if len(sess.Exchanges) == len(current.Exchanges) {
				sess = current
			}
		}
		next = append(next, sess)
	}

	if current != nil && !activeSeen {
		next = append(next, current)
	}

	s.sessions = next
}

// MarkDeleted removes a session from the local view and tombstones its
// id. If the deleted session was active, a replacement is selected
// first (the oldest remaining session, or a freshly created one when
// none remain) so there is never a moment without an active session.
// Only then is the deletion settled remotely; a remote failure is
// logged and otherwise ignored, since the tombstone already guarantees
// the session cannot come back. Returns the active session after the
// deletion.
func (s *Store) MarkDeleted(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()

	s.tombstones[id] = struct{}{}

	wasActive := s.activeID == id
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept

	var replacement *model.Session
	if wasActive {
		s.activeID = ""
		replacement = oldestLocked(s.sessions)
		if replacement != nil {
			s.activeID = replacement.ID
		}
	}
	needCreate := wasActive && replacement == nil
	s.mu.Unlock()

	if needCreate {
		created, err := s.CreateSession(ctx, "")
		if err != nil {
			return nil, err
		}
		replacement = created
	}

	if err := s.remote.DeleteSession(ctx, id); err != nil {
		log.Printf("DELETE_UNSETTLED | session=%s error=%v", id, err)
	}

	if !wasActive {
		return s.Active(), nil
	}
	return replacement, nil
}

// oldestLocked returns the session with the earliest creation time, or
// nil if the list is empty. Caller holds s.mu.
func oldestLocked(sessions []*model.Session) *model.Session {
	var oldest *model.Session
	for _, sess := range sessions {
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	return oldest
}
