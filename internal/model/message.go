// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/classify"
	"github.com/parley-chat/parley/internal/util"
)

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a display message. A message is in
// exactly one state at a time.
type Status string

const (
	// StatusNone renders as a plain settled bubble (also the post-error
	// assistant state: the apology text with no lifecycle decoration).
	StatusNone Status = ""

	// User message states.
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"

	// Assistant message states.
	StatusThinking  Status = "thinking"
	StatusStreaming Status = "streaming"
	StatusSettled   Status = "settled"
)

// =============================================================================
// DISPLAY MESSAGE
// =============================================================================

// DisplayMessage is one UI-visible message bubble. Two DisplayMessages are
// derived from each Exchange; while an exchange is in flight the assistant
// bubble accumulates streamed fragments.
type DisplayMessage struct {
	ID        int64     `json:"id"`
	IsUser    bool      `json:"is_user"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	// Payload is the structured rendering for non-plain categories,
	// attached when the assistant message settles.
	Payload *classify.Payload `json:"payload,omitempty"`

	// streamText accumulates fragments while streaming. strings.Builder
	// avoids quadratic allocations on long replies.
	streamText strings.Builder
}

// UserMessageID derives the user-bubble identity from an exchange identity.
func UserMessageID(exchangeID int64) int64 {
	return 2 * exchangeID
}

// AssistantMessageID derives the assistant-bubble identity from an exchange
// identity.
func AssistantMessageID(exchangeID int64) int64 {
	return 2*exchangeID + 1
}

// ExpandExchange converts a persisted exchange into its two settled display
// messages. The derivation is pure: expanding the same exchange twice
// yields identical identities.
func ExpandExchange(ex Exchange) (user, assistant *DisplayMessage) {
	user = &DisplayMessage{
		ID:        UserMessageID(ex.ID),
		IsUser:    true,
		Text:      ex.UserText,
		Status:    StatusSent,
		Timestamp: ex.CreatedAt,
	}
	assistant = &DisplayMessage{
		ID:        AssistantMessageID(ex.ID),
		IsUser:    false,
		Text:      ex.ReplyText,
		Status:    StatusSettled,
		Timestamp: ex.CreatedAt,
	}
	if category := classify.Classify(ex.UserText); !category.IsPlain() {
		assistant.Payload = classify.BuildPayload(category, ex.UserText, ex.ReplyText)
	}
	return user, assistant
}

// AppendFragment appends a streamed fragment. The first fragment moves the
// message out of thinking.
func (m *DisplayMessage) AppendFragment(fragment string) {
	if m.Status == StatusThinking {
		m.Status = StatusStreaming
	}
	m.streamText.WriteString(fragment)
	m.Text = m.streamText.String()
}

// StreamedText returns the concatenation of fragments received so far.
func (m *DisplayMessage) StreamedText() string {
	return m.streamText.String()
}

// Preview returns a truncated single-line preview of the message.
func (m *DisplayMessage) Preview(maxRunes int) string {
	return util.TruncateRunes(util.CollapseLines(m.Text), maxRunes)
}
