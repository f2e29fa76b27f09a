// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/store"
)

// =============================================================================
// RECONCILER
// =============================================================================

// DefaultInterval is the time between reconciliation ticks.
const DefaultInterval = 30 * time.Second

// Fetcher retrieves the authoritative session list. *client.Client
// satisfies this.
type Fetcher interface {
	ListSessions(ctx context.Context) ([]*model.Session, error)
}

// Reconciler merges the server's session list into the local store on
// a fixed interval. Fetch failures are swallowed: the previous local
// state stays in place and the next tick retries.
type Reconciler struct {
	store    *store.Store
	fetch    Fetcher
	gate     *Gate
	interval time.Duration

	// onActiveReload fires after a tick replaced the active session's
	// exchange log with a fresh copy, so the view layer can rebuild
	// its message list. Nil is fine.
	onActiveReload func(*model.Session)
}

// New creates a reconciler over the given store, fetcher, and gate.
func New(s *store.Store, fetch Fetcher, gate *Gate) *Reconciler {
	return &Reconciler{
		store:    s,
		fetch:    fetch,
		gate:     gate,
		interval: DefaultInterval,
	}
}

// WithInterval overrides the tick interval.
func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	r.interval = d
	return r
}

// OnActiveReload registers a callback invoked when a tick reloads the
// active session's detail.
func (r *Reconciler) OnActiveReload(fn func(*model.Session)) *Reconciler {
	r.onActiveReload = fn
	return r
}

// Run ticks until ctx is cancelled. It does not tick immediately; the
// first reconciliation happens one interval after start.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs a single reconciliation pass. Returns true if the
// session list was refreshed, false if the tick was gated off or the
// fetch failed.
func (r *Reconciler) Tick(ctx context.Context) bool {
	if !r.gate.Allow() {
		return false
	}

	fresh, err := r.fetch.ListSessions(ctx)
	if err != nil {
		log.Printf("RECONCILE_FAILED | error=%v", err)
		return false
	}

	// Capture the active session's exchange count before the merge so
	// a detail reload is detectable afterwards.
	activeID := r.store.ActiveID()
	before := -1
	if active := r.store.Active(); active != nil {
		before = active.ExchangeCount()
	}

	r.store.ReplaceAll(fresh)

	if activeID == "" || r.onActiveReload == nil {
		return true
	}
	if active := r.store.Active(); active != nil && active.ID == activeID && active.ExchangeCount() != before {
		// Hand the callback its own copy; the store's session is shared
		// with future merges.
		r.onActiveReload(active.Clone())
	}
	return true
}
