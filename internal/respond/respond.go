// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package respond

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/storage"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultFragmentRunes is the fragment size used when none is configured.
	DefaultFragmentRunes = 24

	// FallbackReply is the single fixed fragment substituted when the
	// upstream reply source cannot be reached. It is persisted exactly
	// like a normal reply.
	FallbackReply = "I couldn't reach my full reply engine just now, but I'm still here. Please try again in a moment."
)

// ErrEmptyMessage rejects a blank submission before any stream opens.
var ErrEmptyMessage = errors.New("message is empty")

// EmitFunc delivers one fragment to the consumer. Returning an error stops
// the stream.
type EmitFunc func(fragment string) error

// =============================================================================
// RESPONDER
// =============================================================================

// Responder produces the framed fragment sequence for one submission and
// owns the post-stream durable write.
type Responder struct {
	store *storage.Store
	gen   Generator

	// fragmentRunes is the target fragment size in runes.
	fragmentRunes int

	// pace is an optional delay between fragments; zero streams as fast
	// as the writer allows.
	pace time.Duration
}

// New creates a responder over a store and an upstream generator.
func New(store *storage.Store, gen Generator) *Responder {
	return &Responder{
		store:         store,
		gen:           gen,
		fragmentRunes: DefaultFragmentRunes,
	}
}

// WithFragmentSize sets the target fragment size in runes.
func (r *Responder) WithFragmentSize(runes int) *Responder {
	if runes > 0 {
		r.fragmentRunes = runes
	}
	return r
}

// WithPace sets the delay between fragments.
func (r *Responder) WithPace(d time.Duration) *Responder {
	r.pace = d
	return r
}

// Open validates the submission, then streams the reply as ordered
// fragments through emit. Validation failures return before the first
// fragment; after the stream has started the only error source is the
// consumer-side emit.
//
// After the final fragment, exactly one exchange is durably written and the
// session's updated timestamp gets a best-effort touch. A persistence
// failure is logged and swallowed: the consumer already holds the reply.
func (r *Responder) Open(ctx context.Context, sessionID, message string, emit EmitFunc) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	// Reject an unknown session synchronously, before any fragment.
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return err
	}

	reply, err := r.gen.Reply(ctx, message)
	if err != nil {
		// Upstream unreachable: substitute the fixed fallback so the
		// user still receives assistant text.
		log.Printf("UPSTREAM_FALLBACK | session=%s error=%v", sessionID, err)
		reply = FallbackReply
	}

	for _, fragment := range Fragments(reply, r.fragmentRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(fragment); err != nil {
			return err
		}
		if r.pace > 0 {
			select {
			case <-time.After(r.pace):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// One durable write after natural completion, never per fragment.
	if _, err := r.store.AppendExchange(ctx, sessionID, message, reply); err != nil {
		log.Printf("PERSIST_FAILED | session=%s error=%v", sessionID, err)
		return nil
	}
	if err := r.store.TouchSession(ctx, sessionID); err != nil {
		log.Printf("TOUCH_FAILED | session=%s error=%v", sessionID, err)
	}
	return nil
}

// =============================================================================
// FRAGMENTATION
// =============================================================================

// Fragments splits a reply into rune-bounded pieces. The concatenation of
// the result equals the input exactly: no reordering, no gaps, no
// duplication.
func Fragments(reply string, fragmentRunes int) []string {
	if reply == "" {
		return nil
	}
	if fragmentRunes <= 0 {
		fragmentRunes = DefaultFragmentRunes
	}

	runes := []rune(reply)
	fragments := make([]string, 0, (len(runes)+fragmentRunes-1)/fragmentRunes)
	for start := 0; start < len(runes); start += fragmentRunes {
		end := start + fragmentRunes
		if end > len(runes) {
			end = len(runes)
		}
		fragments = append(fragments, string(runes[start:end]))
	}
	return fragments
}
