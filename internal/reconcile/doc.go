// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile keeps the local session store aligned with the
// server. A fixed-interval loop fetches the authoritative session list
// and merges it into the store; an activity gate suppresses the fetch
// entirely while the user is idle so an abandoned client does not keep
// polling.
package reconcile
