// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the parley codebase.
//
// It contains rune-aware string truncation (previews and auto-generated
// session titles must never split a multi-byte character) and an atomic
// file writer used for configuration persistence.
package util
