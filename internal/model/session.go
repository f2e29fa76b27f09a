// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/parley-chat/parley/internal/util"
)

// maxAutoTitleRunes bounds titles auto-generated from the first utterance.
const maxAutoTitleRunes = 50

// =============================================================================
// EXCHANGE TYPE
// =============================================================================

// Exchange is one persisted user-utterance/assistant-reply pair. Exchanges
// are appended, never edited or reordered; once the reply is finalized the
// record is immutable.
type Exchange struct {
	ID        int64     `json:"id"`
	UserText  string    `json:"user_text"`
	ReplyText string    `json:"reply_text"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation: an ordered exchange log plus metadata.
// A Session is owned exclusively by the session store once fetched or
// created and is mutated only through the store's API.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exchanges []Exchange `json:"exchanges"`

	// Gallery is an auxiliary attachment list, opaque to this core.
	Gallery []string `json:"gallery,omitempty"`
}

// NewSession creates an empty session. The identity is assigned by the
// authoritative side, not here.
func NewSession(title string) *Session {
	now := time.Now().UTC()
	return &Session{
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Exchanges: make([]Exchange, 0),
	}
}

// ExchangeCount returns the number of exchanges. The count is the canonical
// cheap proxy for "has this session changed remotely".
func (s *Session) ExchangeCount() int {
	return len(s.Exchanges)
}

// AppendExchange appends an exchange and touches the session metadata.
func (s *Session) AppendExchange(ex Exchange) {
	s.Exchanges = append(s.Exchanges, ex)
	s.UpdatedAt = time.Now()
	s.updateTitle()
}

// LastExchangeID returns the highest exchange identity in the session, or
// zero when the session is empty. Exchange identities are monotonically
// increasing, so the last entry carries the highest one.
func (s *Session) LastExchangeID() int64 {
	if len(s.Exchanges) == 0 {
		return 0
	}
	return s.Exchanges[len(s.Exchanges)-1].ID
}

// GetTitle returns the session title or a default.
func (s *Session) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New Session"
}

// SetTitle manually sets the session title.
func (s *Session) SetTitle(title string) {
	s.Title = title
	s.UpdatedAt = time.Now()
}

// Preview returns a short single-line preview of the session.
func (s *Session) Preview() string {
	if len(s.Exchanges) == 0 {
		return "Empty session"
	}
	return util.TruncateRunes(util.CollapseLines(s.Exchanges[0].UserText), 80)
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Exchanges: append([]Exchange(nil), s.Exchanges...),
	}
	if s.Gallery != nil {
		clone.Gallery = append([]string(nil), s.Gallery...)
	}
	return clone
}

// updateTitle fills an empty title from the first user utterance.
func (s *Session) updateTitle() {
	if s.Title != "" || len(s.Exchanges) == 0 {
		return
	}
	text := util.CollapseLines(s.Exchanges[0].UserText)
	s.Title = util.TruncateRunes(text, maxAutoTitleRunes)
}

// =============================================================================
// SESSION METADATA
// =============================================================================

// SessionMeta holds lightweight metadata for listing sessions.
type SessionMeta struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ExchangeCount int       `json:"exchange_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Preview       string    `json:"preview"`
}

// GetMeta returns the listing metadata for the session.
func (s *Session) GetMeta() SessionMeta {
	return SessionMeta{
		ID:            s.ID,
		Title:         s.GetTitle(),
		ExchangeCount: len(s.Exchanges),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		Preview:       s.Preview(),
	}
}
