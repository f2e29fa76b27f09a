// parley - interactive chat client for the parley server.
//
// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/parley-chat/parley/internal/client"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/reconcile"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/util"
)

func main() {
	baseURL := flag.String("url", "", "server base URL (default: from config)")
	token := flag.String("token", "", "bearer credential (default: from config)")
	flag.Parse()

	if err := run(*baseURL, *token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// APPLICATION
// =============================================================================

// app holds the client-side state: the session cache, the thread being
// displayed, and the background reconciler's activity clock. The mutex
// guards thread against the reconciler's reload callback.
type app struct {
	mu     sync.Mutex
	store  *store.Store
	api    *client.Client
	clock  *reconcile.Clock
	thread *model.Thread
}

func run(baseURL, token string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if baseURL == "" {
		baseURL = cfg.Client.BaseURL
	}
	if token == "" {
		token = cfg.Client.Token
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{
		api:   client.New(baseURL, token),
		clock: reconcile.NewClock(),
	}
	a.store = store.New(a.api)

	// Seed the local cache, opening a first session if the identity has
	// none yet.
	sessions, err := a.api.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", baseURL, err)
	}
	a.store.ReplaceAll(sessions)
	if list := a.store.Sessions(); len(list) > 0 {
		a.store.SetActive(list[0].ID)
	} else if _, err := a.store.CreateSession(ctx, ""); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	a.loadActiveThread()

	gate := reconcile.NewGate(a.clock, a.store.ActiveID).
		WithThreshold(cfg.Reconcile.IdleThreshold())
	rec := reconcile.New(a.store, a.api, gate).
		WithInterval(cfg.Reconcile.Interval()).
		OnActiveReload(a.onActiveReload)
	go rec.Run(ctx)

	fmt.Printf("parley connected to %s (session %s)\n", baseURL, shortID(a.store.ActiveID()))
	fmt.Println("Type a message, or /help for commands.")
	return a.repl(ctx)
}

// loadActiveThread rebuilds the displayed thread from the active
// session's exchange log.
func (a *app) loadActiveThread() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if active := a.store.Active(); active != nil {
		a.thread = model.ThreadFromSession(active)
	} else {
		a.thread = model.NewThread("")
	}
}

// onActiveReload runs on the reconciler goroutine when the server's copy
// of the active session gained or lost exchanges.
func (a *app) onActiveReload(sess *model.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thread = model.ThreadFromSession(sess)
}

// =============================================================================
// REPL
// =============================================================================

func (a *app) repl(ctx context.Context) error {
	editor := newLineEditor()
	defer editor.Close()

	for {
		input, err := editor.ReadInput("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		a.clock.Touch()

		line := strings.TrimSpace(input)
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/help":
			printHelp()
		case line == "/sessions":
			a.printSessions()
		case line == "/history":
			a.printHistory()
		case strings.HasPrefix(line, "/switch "):
			a.switchSession(strings.TrimPrefix(line, "/switch "))
		case line == "/delete":
			a.deleteActive(ctx)
		case strings.HasPrefix(line, "/"):
			fmt.Printf("Unknown command %q. Try /help.\n", line)
		default:
			a.send(ctx, line)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  /sessions      list sessions
  /switch N      switch to session N from the list
  /history       show the current session's messages
  /delete        delete the current session
  /quit          exit`)
}

// send submits a message and streams the reply to stdout. The exchange
// is appended to the local cache optimistically once settled; the
// server persists its own copy when the stream completes.
func (a *app) send(ctx context.Context, text string) {
	a.mu.Lock()
	thread := a.thread
	a.mu.Unlock()

	sessionID := a.store.ActiveID()
	if err := thread.Begin(text); err != nil {
		fmt.Printf("Cannot send: %v\n", err)
		return
	}

	err := a.api.OpenStream(ctx, sessionID, text, func(fragment string) {
		thread.OnFragment(fragment)
		fmt.Print(fragment)
	})
	if err != nil {
		thread.OnError()
		fmt.Printf("\n%s\n", model.ApologyReply)
		return
	}
	fmt.Println()

	ex, ok := thread.OnComplete()
	if !ok {
		return
	}
	// Persist against the session the stream was opened for, even if
	// the user has switched away in the meantime.
	if err := a.store.AppendExchange(sessionID, ex); err != nil && !errors.Is(err, store.ErrUnknownSession) {
		fmt.Printf("Warning: %v\n", err)
	}
	// Push the derived title to the server without holding up the
	// prompt; until it lands, a refresh would revert to untitled.
	go a.store.SyncTitle(ctx, sessionID)

	msgs := thread.Messages()
	if len(msgs) > 0 {
		if payload := msgs[len(msgs)-1].Payload; payload != nil {
			fmt.Printf("[%s] %s\n", payload.Category, payload.Title)
		}
	}
}

func (a *app) printSessions() {
	for i, sess := range a.store.Sessions() {
		marker := " "
		if sess.ID == a.store.ActiveID() {
			marker = "*"
		}
		meta := sess.GetMeta()
		fmt.Printf("%s %2d. %s  %s (%d messages)\n",
			marker, i+1, shortID(meta.ID), util.TruncateRunes(meta.Title, 40), meta.ExchangeCount)
		if meta.Preview != "" {
			fmt.Printf("        %s\n", meta.Preview)
		}
	}
}

func (a *app) printHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, msg := range a.thread.Messages() {
		speaker := "assistant"
		if msg.IsUser {
			speaker = "you"
		}
		fmt.Printf("[%s] %s\n", speaker, msg.Text)
	}
}

func (a *app) switchSession(arg string) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		fmt.Println("Usage: /switch N")
		return
	}
	list := a.store.Sessions()
	if n < 1 || n > len(list) {
		fmt.Printf("No session %d; run /sessions.\n", n)
		return
	}
	if err := a.store.SetActive(list[n-1].ID); err != nil {
		fmt.Printf("Cannot switch: %v\n", err)
		return
	}
	a.loadActiveThread()
	fmt.Printf("Switched to session %s.\n", shortID(list[n-1].ID))
}

// deleteActive removes the current session. The store guarantees a
// replacement is active before the remote delete settles.
func (a *app) deleteActive(ctx context.Context) {
	id := a.store.ActiveID()
	replacement, err := a.store.MarkDeleted(ctx, id)
	if err != nil {
		fmt.Printf("Cannot delete: %v\n", err)
		return
	}
	a.loadActiveThread()
	fmt.Printf("Deleted %s; now on %s.\n", shortID(id), shortID(replacement.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
