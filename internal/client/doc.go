// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the transport consumer for the parley API: the
// REST calls for session lifecycle and the one-way fragment stream decoder.
//
// Every call carries an opaque bearer credential; a missing or invalid
// credential fails the call before any stream or mutation begins. The
// stream decoder treats any line not starting with "data: " as framing
// noise and preserves partial content when a stream fails mid-flight.
package client
