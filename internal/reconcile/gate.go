// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"sync"
	"time"
)

// =============================================================================
// ACTIVITY CLOCK
// =============================================================================

// DefaultIdleThreshold is how long without user input before background
// reconciliation stops.
const DefaultIdleThreshold = 5 * time.Minute

// Clock tracks the last user interaction. It is created alongside the
// client session and discarded with it; there is no global instance.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// NewClock returns a clock whose last activity is now.
func NewClock() *Clock {
	return &Clock{last: time.Now()}
}

// Touch records user input. Call it on any key press, click, or pointer
// movement; callers may coalesce high-frequency events.
func (c *Clock) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Now()
}

// Idle returns the time elapsed since the last recorded input.
func (c *Clock) Idle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.last)
}

// =============================================================================
// ACTIVITY GATE
// =============================================================================

// Gate decides whether a reconciliation tick may run. It allows a tick
// only while the user has been active within the threshold and a
// session is open to reconcile against.
type Gate struct {
	clock     *Clock
	threshold time.Duration
	activeID  func() string
}

// NewGate builds a gate over the given clock. activeID reports the
// current active session id ("" when none).
func NewGate(clock *Clock, activeID func() string) *Gate {
	return &Gate{
		clock:     clock,
		threshold: DefaultIdleThreshold,
		activeID:  activeID,
	}
}

// WithThreshold overrides the idle threshold. Intended for tests and
// configuration.
func (g *Gate) WithThreshold(d time.Duration) *Gate {
	g.threshold = d
	return g
}

// Allow reports whether a reconciliation tick should proceed.
func (g *Gate) Allow() bool {
	if g.activeID() == "" {
		return false
	}
	return g.clock.Idle() < g.threshold
}
