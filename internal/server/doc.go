// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the parley HTTP API.
//
// Endpoints:
//   - POST   /v1/sessions      - create a session
//   - GET    /v1/sessions      - list sessions (recency order, nested exchanges)
//   - PATCH  /v1/sessions/{id} - patch title/gallery
//   - DELETE /v1/sessions/{id} - delete a session
//   - POST   /v1/stream        - open a one-way reply stream for a message
//   - GET    /health           - health check
//
// The stream endpoint frames every event as "data: <json>\n\n": fragment
// events {"chunk": "<text>"}, terminal success {"done": true}, terminal
// error {"error": "<message>"}. No other event shapes are emitted.
package server
