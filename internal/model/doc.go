// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, exchanges and
// display messages, plus the lifecycle state machine for an in-flight
// user/assistant message pair.
//
// An Exchange is one persisted user-utterance/assistant-reply pair. The
// client renders each Exchange as two DisplayMessages whose identities are
// derived deterministically from the exchange identity (2*id for the user
// bubble, 2*id+1 for the assistant bubble), so reloading a session from the
// authoritative source reproduces stable identities.
package model
