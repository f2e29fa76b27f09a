// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/parley-chat/parley/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned when a session identity is unknown.
	// Use errors.Is(err, ErrSessionNotFound) to check for it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDatabase wraps unexpected database failures.
	ErrDatabase = errors.New("database error")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	gallery    TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS exchanges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	user_text  TEXT NOT NULL,
	reply_text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
`

// =============================================================================
// STORE
// =============================================================================

// Store persists sessions and exchanges in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	// Cascading exchange deletes need foreign keys on.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession allocates a new session with a generated identity.
func (s *Store) CreateSession(ctx context.Context, title string) (*model.Session, error) {
	sess := model.NewSession(title)
	sess.ID = uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, gallery, created_at, updated_at) VALUES (?, ?, '[]', ?, ?)`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// GetSession loads one session with its full exchange log.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, gallery, created_at, updated_at FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if err := s.loadExchanges(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by recency (most recently
// updated first), each with its nested exchange log.
func (s *Store) ListSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, gallery, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, sess := range sessions {
		if err := s.loadExchanges(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// PatchSession applies a partial update. Nil fields are left untouched.
// Returns the updated session or ErrSessionNotFound.
func (s *Store) PatchSession(ctx context.Context, id string, title *string, gallery []string) (*model.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if title != nil {
		sess.Title = *title
	}
	if gallery != nil {
		sess.Gallery = gallery
	}
	sess.UpdatedAt = time.Now().UTC()

	galleryJSON, err := json.Marshal(sess.Gallery)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gallery: %w", err)
	}
	if sess.Gallery == nil {
		galleryJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, gallery = ?, updated_at = ? WHERE id = ?`,
		sess.Title, string(galleryJSON), sess.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to patch session: %w", err)
	}

	return sess, nil
}

// DeleteSession removes a session and, via cascade, its exchanges.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TouchSession bumps a session's updated timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// =============================================================================
// EXCHANGE OPERATIONS
// =============================================================================

// AppendExchange durably writes one finished exchange under a session and
// returns the record with its allocated identity.
func (s *Store) AppendExchange(ctx context.Context, sessionID, userText, replyText string) (*model.Exchange, error) {
	// Verify the session exists first so a dangling write surfaces as
	// not-found instead of a bare constraint failure.
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, user_text, reply_text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, userText, replyText, now)
	if err != nil {
		return nil, fmt.Errorf("failed to append exchange: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &model.Exchange{
		ID:        id,
		UserText:  userText,
		ReplyText: replyText,
		CreatedAt: now,
	}, nil
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess        model.Session
		galleryJSON string
	)
	if err := row.Scan(&sess.ID, &sess.Title, &galleryJSON, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := json.Unmarshal([]byte(galleryJSON), &sess.Gallery); err != nil {
		// A corrupt gallery column degrades to an empty list rather than
		// failing the whole session load.
		sess.Gallery = nil
	}
	sess.Exchanges = make([]model.Exchange, 0)
	return &sess, nil
}

func (s *Store) loadExchanges(ctx context.Context, sess *model.Session) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_text, reply_text, created_at FROM exchanges WHERE session_id = ? ORDER BY id`,
		sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex model.Exchange
		if err := rows.Scan(&ex.ID, &ex.UserText, &ex.ReplyText, &ex.CreatedAt); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		sess.Exchanges = append(sess.Exchanges, ex)
	}
	return rows.Err()
}
