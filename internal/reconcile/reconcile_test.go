// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/store"
)

type fakeFetcher struct {
	sessions []*model.Session
	err      error
	calls    int
}

func (f *fakeFetcher) ListSessions(context.Context) ([]*model.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

type noRemote struct{}

func (noRemote) CreateSession(_ context.Context, title string) (*model.Session, error) {
	return &model.Session{ID: "fresh", Title: title, CreatedAt: time.Now()}, nil
}

func (noRemote) PatchSession(_ context.Context, id string, title *string, _ []string) (*model.Session, error) {
	sess := &model.Session{ID: id}
	if title != nil {
		sess.Title = *title
	}
	return sess, nil
}

func (noRemote) DeleteSession(context.Context, string) error { return nil }

func sessionWith(id string, exchanges int) *model.Session {
	sess := &model.Session{ID: id, CreatedAt: time.Now()}
	for i := 0; i < exchanges; i++ {
		sess.Exchanges = append(sess.Exchanges, model.Exchange{ID: int64(i + 1)})
	}
	return sess
}

// =============================================================================
// GATE TESTS
// =============================================================================

func TestGate_Allow(t *testing.T) {
	clock := NewClock()
	active := "sess-1"
	gate := NewGate(clock, func() string { return active })

	if !gate.Allow() {
		t.Error("Allow() = false for a fresh clock with an active session")
	}

	active = ""
	if gate.Allow() {
		t.Error("Allow() = true with no active session")
	}
}

func TestGate_IdleThreshold(t *testing.T) {
	clock := NewClock()
	gate := NewGate(clock, func() string { return "sess-1" }).WithThreshold(10 * time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if gate.Allow() {
		t.Error("Allow() = true past the idle threshold")
	}

	clock.Touch()
	if !gate.Allow() {
		t.Error("Allow() = false right after Touch()")
	}
}

// =============================================================================
// RECONCILER TESTS
// =============================================================================

func TestTick_GatedOffSkipsFetch(t *testing.T) {
	s := store.New(noRemote{})
	fetch := &fakeFetcher{}
	gate := NewGate(NewClock(), s.ActiveID) // no active session -> denied

	r := New(s, fetch, gate)
	if r.Tick(context.Background()) {
		t.Error("Tick() = true while gated off")
	}
	if fetch.calls != 0 {
		t.Errorf("fetch called %d times while gated off, want 0", fetch.calls)
	}
}

func TestTick_FetchFailureRetainsState(t *testing.T) {
	s := store.New(noRemote{})
	s.ReplaceAll([]*model.Session{sessionWith("a", 2)})
	s.SetActive("a")

	fetch := &fakeFetcher{err: errors.New("server down")}
	r := New(s, fetch, NewGate(NewClock(), s.ActiveID))

	if r.Tick(context.Background()) {
		t.Error("Tick() = true on fetch failure")
	}
	if got := s.Sessions(); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("local state changed on fetch failure: %v", got)
	}
}

func TestTick_TombstonedSessionStaysGone(t *testing.T) {
	s := store.New(noRemote{})
	a := sessionWith("a", 3)
	b := sessionWith("b", 1)
	s.ReplaceAll([]*model.Session{a, b})
	s.SetActive("b")
	if _, err := s.MarkDeleted(context.Background(), "a"); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}

	// Remote list is stale and still contains the deleted session.
	fetch := &fakeFetcher{sessions: []*model.Session{a, b}}
	r := New(s, fetch, NewGate(NewClock(), s.ActiveID))

	if !r.Tick(context.Background()) {
		t.Fatal("Tick() = false, want a successful refresh")
	}
	list := s.Sessions()
	if len(list) != 1 || list[0].ID != "b" {
		t.Errorf("visible list after tick = %v, want [b] only", list)
	}
}

func TestTick_ActiveReloadOnlyOnCountMismatch(t *testing.T) {
	s := store.New(noRemote{})
	s.ReplaceAll([]*model.Session{sessionWith("a", 1)})
	s.SetActive("a")

	fetch := &fakeFetcher{sessions: []*model.Session{sessionWith("a", 1)}}
	reloads := 0
	r := New(s, fetch, NewGate(NewClock(), s.ActiveID)).
		OnActiveReload(func(*model.Session) { reloads++ })

	// Equal count: the list refreshes but the active detail does not.
	r.Tick(context.Background())
	if reloads != 0 {
		t.Errorf("reload fired on equal-count snapshot")
	}

	// The server now has an extra exchange.
	fetch.sessions = []*model.Session{sessionWith("a", 2)}
	r.Tick(context.Background())
	if reloads != 1 {
		t.Errorf("reloads = %d after count mismatch, want 1", reloads)
	}
	if got := s.Active().ExchangeCount(); got != 2 {
		t.Errorf("active exchange count = %d, want 2", got)
	}
}

func TestTick_ActiveReloadReceivesOwnCopy(t *testing.T) {
	s := store.New(noRemote{})
	s.ReplaceAll([]*model.Session{sessionWith("a", 1)})
	s.SetActive("a")

	fetch := &fakeFetcher{sessions: []*model.Session{sessionWith("a", 2)}}
	var reloaded *model.Session
	r := New(s, fetch, NewGate(NewClock(), s.ActiveID)).
		OnActiveReload(func(sess *model.Session) { reloaded = sess })

	r.Tick(context.Background())
	if reloaded == nil {
		t.Fatal("reload did not fire on count mismatch")
	}

	// The callback's copy is independent of the store's session.
	reloaded.Exchanges[0].ReplyText = "mutated by view"
	if got := s.Active().Exchanges[0].ReplyText; got == "mutated by view" {
		t.Error("store session shares exchange slice with reload copy")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := store.New(noRemote{})
	fetch := &fakeFetcher{}
	r := New(s, fetch, NewGate(NewClock(), s.ActiveID)).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
