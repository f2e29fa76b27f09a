// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classify maps a raw user utterance to a content category.
//
// Classification drives how the settled assistant reply is rendered: a
// "tips" request becomes a checklist, a "script" request becomes a titled
// draft, and so on. The classifier is a fixed, ordered rule table evaluated
// first-match-wins; the order is part of the contract because an utterance
// can match several categories at once.
package classify
