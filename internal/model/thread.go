// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/classify"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage rejects a blank submission before any network activity.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrExchangeInFlight enforces the single-in-flight-stream-per-session
	// invariant: a second submission is refused while a stream is open.
	ErrExchangeInFlight = errors.New("an exchange is already in flight for this session")
)

// ApologyReply is the fixed assistant text shown after a transport error.
const ApologyReply = "Sorry, something went wrong while generating this reply. Please try again."

// =============================================================================
// THREAD
// =============================================================================

// Thread is the client-visible message log for one session, including the
// lifecycle of an in-flight user/assistant pair from submission to settled
// state.
type Thread struct {
	sessionID string
	messages  []*DisplayMessage

	// In-flight exchange state. Nil pointers mean nothing is in flight.
	pendingUser      *DisplayMessage
	pendingAssistant *DisplayMessage
	pendingUserText  string
	pendingID        int64

	// lastExchangeID tracks the highest exchange identity seen, so a
	// pending pair gets a provisional identity that authoritative reload
	// will reproduce.
	lastExchangeID int64

	// tipsProgress is the checklist-completion map keyed by assistant
	// message identity, seeded all-false when a tips payload settles.
	tipsProgress map[int64][]bool
}

// NewThread creates an empty thread bound to a session identity.
func NewThread(sessionID string) *Thread {
	return &Thread{
		sessionID:    sessionID,
		messages:     make([]*DisplayMessage, 0),
		tipsProgress: make(map[int64][]bool),
	}
}

// ThreadFromSession builds a thread from a session's persisted exchange log.
// Display identities are derived, not generated, so rebuilding the same
// session yields the same identities.
func ThreadFromSession(sess *Session) *Thread {
	t := NewThread(sess.ID)
	t.lastExchangeID = sess.LastExchangeID()
	for _, ex := range sess.Exchanges {
		user, assistant := ExpandExchange(ex)
		t.messages = append(t.messages, user, assistant)
		if assistant.Payload != nil && assistant.Payload.Category == classify.CategoryTips {
			t.seedTips(assistant.ID, len(assistant.Payload.Items))
		}
	}
	return t
}

// SessionID returns the identity of the session this thread renders.
func (t *Thread) SessionID() string {
	return t.sessionID
}

// Messages returns the rendered message log, pending bubbles included.
func (t *Thread) Messages() []*DisplayMessage {
	return t.messages
}

// InFlight reports whether an exchange is currently streaming.
func (t *Thread) InFlight() bool {
	return t.pendingAssistant != nil
}

// =============================================================================
// STATE MACHINE TRANSITIONS
// =============================================================================

// Begin starts a new exchange: the user bubble enters sending and an empty
// assistant placeholder enters thinking, both inserted immediately so the
// UI has a slot before any network activity completes.
func (t *Thread) Begin(userText string) error {
	if strings.TrimSpace(userText) == "" {
		return ErrEmptyMessage
	}
	if t.InFlight() {
		return ErrExchangeInFlight
	}

	now := time.Now()
	t.pendingID = t.lastExchangeID + 1
	t.pendingUserText = userText
	t.pendingUser = &DisplayMessage{
		ID:        UserMessageID(t.pendingID),
		IsUser:    true,
		Text:      userText,
		Status:    StatusSending,
		Timestamp: now,
	}
	t.pendingAssistant = &DisplayMessage{
		ID:        AssistantMessageID(t.pendingID),
		IsUser:    false,
		Status:    StatusThinking,
		Timestamp: now,
	}
	t.messages = append(t.messages, t.pendingUser, t.pendingAssistant)
	return nil
}

// OnFragment applies one streamed fragment to the pending assistant bubble.
// Fragments arrive in generation order; the text is their concatenation.
func (t *Thread) OnFragment(fragment string) {
	if t.pendingAssistant == nil {
		return
	}
	t.pendingAssistant.AppendFragment(fragment)
}

// OnComplete settles the in-flight pair: user sending -> sent, assistant ->
// settled. Classification runs on the original user text; a non-plain
// category replaces the assistant's display payload, and a tips payload
// seeds an all-false completion map keyed by the message identity.
// The finalized exchange is returned for optimistic append.
func (t *Thread) OnComplete() (Exchange, bool) {
	if t.pendingAssistant == nil {
		return Exchange{}, false
	}

	t.pendingUser.Status = StatusSent
	t.pendingAssistant.Status = StatusSettled
	reply := t.pendingAssistant.StreamedText()
	t.pendingAssistant.Text = reply

	if category := classify.Classify(t.pendingUserText); !category.IsPlain() {
		payload := classify.BuildPayload(category, t.pendingUserText, reply)
		t.pendingAssistant.Payload = payload
		if category == classify.CategoryTips {
			t.seedTips(t.pendingAssistant.ID, len(payload.Items))
		}
	}

	ex := Exchange{
		ID:        t.pendingID,
		UserText:  t.pendingUserText,
		ReplyText: reply,
		CreatedAt: t.pendingUser.Timestamp,
	}
	t.lastExchangeID = t.pendingID
	t.clearPending()
	return ex, true
}

// OnError aborts the in-flight pair after a transport error: the user
// bubble enters error and the assistant text is overwritten with the fixed
// apology, status cleared so it renders as a plain bubble.
func (t *Thread) OnError() {
	if t.pendingAssistant == nil {
		return
	}
	t.pendingUser.Status = StatusError
	t.pendingAssistant.Text = ApologyReply
	t.pendingAssistant.Status = StatusNone
	t.clearPending()
}

func (t *Thread) clearPending() {
	t.pendingUser = nil
	t.pendingAssistant = nil
	t.pendingUserText = ""
	t.pendingID = 0
}

// =============================================================================
// TIPS CHECKLIST PROGRESS
// =============================================================================

func (t *Thread) seedTips(messageID int64, count int) {
	if _, ok := t.tipsProgress[messageID]; ok {
		return
	}
	t.tipsProgress[messageID] = make([]bool, count)
}

// TipsProgress returns the checklist-completion slice for an assistant
// message, or nil when the message carries no tips payload.
func (t *Thread) TipsProgress(messageID int64) []bool {
	return t.tipsProgress[messageID]
}

// SetTipDone marks one checklist entry complete or incomplete.
func (t *Thread) SetTipDone(messageID int64, index int, done bool) {
	progress, ok := t.tipsProgress[messageID]
	if !ok || index < 0 || index >= len(progress) {
		return
	}
	progress[index] = done
}
