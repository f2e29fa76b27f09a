// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store maintains the client's local view of all sessions.
//
// The store is optimistic: user-visible mutations (new exchanges, new
// sessions, deletions) land locally first and are settled against the
// server afterwards. A process-lifetime tombstone set records local
// deletions so that a slower-to-update server list can never resurrect
// a session the user already removed.
package store
