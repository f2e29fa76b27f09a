// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package respond produces the incrementally-delivered assistant reply for
// a submitted message.
//
// A Responder turns one submission into an ordered fragment sequence whose
// concatenation equals the final reply exactly, then performs exactly one
// durable write of the assembled exchange after the stream completes. If
// the upstream reply source cannot be reached, a single fixed fallback
// fragment is substituted and persisted like a normal reply; the user
// always receives some assistant text for a submitted message.
package respond
