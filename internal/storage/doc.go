// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable session and exchange persistence for the
// parley server, backed by SQLite.
//
// Exchange identities are allocated here as a monotonically increasing
// integer sequence; the client derives display-message identities from them,
// so the allocation scheme is load-bearing for reload stability.
package storage
