// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/classify"
)

// =============================================================================
// DERIVED IDENTITY TESTS
// =============================================================================

func TestDerivedMessageIDs(t *testing.T) {
	tests := []struct {
		exchangeID    int64
		wantUser      int64
		wantAssistant int64
	}{
		{1, 2, 3},
		{2, 4, 5},
		{7, 14, 15},
		{100, 200, 201},
	}

	for _, tt := range tests {
		if got := UserMessageID(tt.exchangeID); got != tt.wantUser {
			t.Errorf("UserMessageID(%d) = %d, want %d", tt.exchangeID, got, tt.wantUser)
		}
		if got := AssistantMessageID(tt.exchangeID); got != tt.wantAssistant {
			t.Errorf("AssistantMessageID(%d) = %d, want %d", tt.exchangeID, got, tt.wantAssistant)
		}
	}
}

func TestExpandExchange_ReloadStable(t *testing.T) {
	ex := Exchange{ID: 42, UserText: "hello", ReplyText: "hi there", CreatedAt: time.Now()}

	u1, a1 := ExpandExchange(ex)
	u2, a2 := ExpandExchange(ex)

	if u1.ID != u2.ID || a1.ID != a2.ID {
		t.Errorf("expanding the same exchange twice yielded different identities: (%d,%d) vs (%d,%d)",
			u1.ID, a1.ID, u2.ID, a2.ID)
	}
	if u1.ID != 84 || a1.ID != 85 {
		t.Errorf("derived ids = (%d,%d), want (84,85)", u1.ID, a1.ID)
	}
	if !u1.IsUser || a1.IsUser {
		t.Error("author flags wrong after expansion")
	}
	if u1.Status != StatusSent || a1.Status != StatusSettled {
		t.Errorf("statuses = (%s,%s), want (sent,settled)", u1.Status, a1.Status)
	}
}

func TestExpandExchange_PayloadForNonPlain(t *testing.T) {
	ex := Exchange{ID: 1, UserText: "give me tips on lighting", ReplyText: "- use soft light\n- avoid backlight"}

	_, assistant := ExpandExchange(ex)
	if assistant.Payload == nil {
		t.Fatal("expected a structured payload for a tips utterance")
	}
	if assistant.Payload.Category != classify.CategoryTips {
		t.Errorf("payload category = %s, want tips", assistant.Payload.Category)
	}
	if len(assistant.Payload.Items) != 2 {
		t.Errorf("payload items = %d, want 2", len(assistant.Payload.Items))
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_AppendExchange(t *testing.T) {
	sess := NewSession("")

	sess.AppendExchange(Exchange{ID: 1, UserText: "first question", ReplyText: "answer"})
	if sess.ExchangeCount() != 1 {
		t.Fatalf("ExchangeCount() = %d, want 1", sess.ExchangeCount())
	}
	if sess.Title != "first question" {
		t.Errorf("auto title = %q, want %q", sess.Title, "first question")
	}
	if sess.LastExchangeID() != 1 {
		t.Errorf("LastExchangeID() = %d, want 1", sess.LastExchangeID())
	}
}

func TestSession_TitleNotOverwritten(t *testing.T) {
	sess := NewSession("My Session")
	sess.AppendExchange(Exchange{ID: 1, UserText: "unrelated text"})

	if sess.Title != "My Session" {
		t.Errorf("title = %q, want %q", sess.Title, "My Session")
	}
}

func TestSession_Clone(t *testing.T) {
	sess := NewSession("original")
	sess.AppendExchange(Exchange{ID: 1, UserText: "q", ReplyText: "a"})
	sess.Gallery = []string{"item"}

	clone := sess.Clone()
	clone.Title = "changed"
	clone.Exchanges[0].UserText = "mutated"
	clone.Gallery[0] = "mutated"

	if sess.Title != "original" {
		t.Error("clone shares title with original")
	}
	if sess.Exchanges[0].UserText != "q" {
		t.Error("clone shares exchange slice with original")
	}
	if sess.Gallery[0] != "item" {
		t.Error("clone shares gallery slice with original")
	}
}

// =============================================================================
// THREAD STATE MACHINE TESTS
// =============================================================================

func TestThread_Begin(t *testing.T) {
	th := NewThread("sess-1")

	if err := th.Begin("hello"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	msgs := th.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Messages() = %d bubbles, want 2 inserted immediately", len(msgs))
	}
	if msgs[0].Status != StatusSending || !msgs[0].IsUser {
		t.Errorf("user bubble = (%s, user=%v), want (sending, true)", msgs[0].Status, msgs[0].IsUser)
	}
	if msgs[1].Status != StatusThinking || msgs[1].Text != "" {
		t.Errorf("assistant bubble = (%s, %q), want (thinking, empty)", msgs[1].Status, msgs[1].Text)
	}
	if !th.InFlight() {
		t.Error("InFlight() = false after Begin")
	}
}

func TestThread_Begin_EmptyRejected(t *testing.T) {
	th := NewThread("sess-1")

	for _, input := range []string{"", "   ", "\n\t "} {
		if err := th.Begin(input); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Begin(%q) error = %v, want ErrEmptyMessage", input, err)
		}
	}
	if len(th.Messages()) != 0 {
		t.Error("rejected submission must not insert bubbles")
	}
}

func TestThread_Begin_SingleInFlight(t *testing.T) {
	th := NewThread("sess-1")

	if err := th.Begin("first"); err != nil {
		t.Fatal(err)
	}
	if err := th.Begin("second"); !errors.Is(err, ErrExchangeInFlight) {
		t.Errorf("second Begin() error = %v, want ErrExchangeInFlight", err)
	}
}

func TestThread_FragmentsConcatenate(t *testing.T) {
	th := NewThread("sess-1")
	th.Begin("hello")

	th.OnFragment("Hel")
	assistant := th.Messages()[1]
	if assistant.Status != StatusStreaming {
		t.Errorf("status after first fragment = %s, want streaming", assistant.Status)
	}

	th.OnFragment("lo ")
	th.OnFragment("world")
	if assistant.Text != "Hello world" {
		t.Errorf("assistant text = %q, want %q", assistant.Text, "Hello world")
	}
}

func TestThread_OnComplete(t *testing.T) {
	th := NewThread("sess-1")
	th.Begin("hello there")
	th.OnFragment("hi ")
	th.OnFragment("back")

	ex, ok := th.OnComplete()
	if !ok {
		t.Fatal("OnComplete() reported nothing in flight")
	}

	user, assistant := th.Messages()[0], th.Messages()[1]
	if user.Status != StatusSent {
		t.Errorf("user status = %s, want sent", user.Status)
	}
	if assistant.Status != StatusSettled {
		t.Errorf("assistant status = %s, want settled", assistant.Status)
	}
	if ex.UserText != "hello there" || ex.ReplyText != "hi back" {
		t.Errorf("exchange = %+v, want original user text and concatenated reply", ex)
	}
	if ex.ID != 1 {
		t.Errorf("provisional exchange id = %d, want 1", ex.ID)
	}
	if th.InFlight() {
		t.Error("InFlight() = true after completion")
	}
}

func TestThread_OnComplete_TipsScenario(t *testing.T) {
	th := NewThread("sess-1")
	th.Begin("Give me tips for viral content")
	th.OnFragment("- Hook fast\n")
	th.OnFragment("- Post daily\n")
	th.OnFragment("- Engage comments")

	if _, ok := th.OnComplete(); !ok {
		t.Fatal("OnComplete() failed")
	}

	assistant := th.Messages()[1]
	if assistant.Payload == nil {
		t.Fatal("tips utterance must settle with a structured payload")
	}
	if assistant.Payload.Category != classify.CategoryTips {
		t.Fatalf("payload category = %s, want tips", assistant.Payload.Category)
	}
	if len(assistant.Payload.Items) == 0 {
		t.Fatal("tips payload must contain a non-empty item list")
	}

	progress := th.TipsProgress(assistant.ID)
	if len(progress) != len(assistant.Payload.Items) {
		t.Fatalf("completion map length = %d, want %d", len(progress), len(assistant.Payload.Items))
	}
	for i, done := range progress {
		if done {
			t.Errorf("completion[%d] = true, want all-false initialization", i)
		}
	}

	th.SetTipDone(assistant.ID, 1, true)
	if !th.TipsProgress(assistant.ID)[1] {
		t.Error("SetTipDone did not mark the entry")
	}
}

func TestThread_OnError(t *testing.T) {
	th := NewThread("sess-1")
	th.Begin("hello")
	th.OnFragment("partial")

	th.OnError()

	user, assistant := th.Messages()[0], th.Messages()[1]
	if user.Status != StatusError {
		t.Errorf("user status = %s, want error", user.Status)
	}
	if assistant.Text != ApologyReply {
		t.Errorf("assistant text = %q, want the fixed apology", assistant.Text)
	}
	if assistant.Status != StatusNone {
		t.Errorf("assistant status = %q, want cleared", assistant.Status)
	}
	if th.InFlight() {
		t.Error("InFlight() = true after error")
	}
}

func TestThread_ProvisionalIDsContinueSequence(t *testing.T) {
	sess := NewSession("s")
	sess.ID = "sess-1"
	sess.Exchanges = []Exchange{
		{ID: 4, UserText: "a", ReplyText: "b"},
		{ID: 7, UserText: "c", ReplyText: "d"},
	}

	th := ThreadFromSession(sess)
	th.Begin("next")
	th.OnFragment("reply")
	ex, _ := th.OnComplete()

	if ex.ID != 8 {
		t.Errorf("provisional id = %d, want 8 (last authoritative id + 1)", ex.ID)
	}
}

func TestThreadFromSession_SeedsTipsProgress(t *testing.T) {
	sess := NewSession("s")
	sess.Exchanges = []Exchange{
		{ID: 1, UserText: "tips for growth", ReplyText: "- one\n- two"},
	}

	th := ThreadFromSession(sess)
	assistantID := AssistantMessageID(1)
	if got := th.TipsProgress(assistantID); len(got) != 2 {
		t.Errorf("reloaded tips progress length = %d, want 2", len(got))
	}
}
