// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import "strings"

// =============================================================================
// CATEGORY TYPE
// =============================================================================

// Category is the content category of a user utterance.
type Category string

const (
	CategoryScript Category = "script"
	CategoryIdea   Category = "idea"
	CategoryTips   Category = "tips"
	CategoryImage  Category = "image"
	CategoryList   Category = "list"
	CategoryVideo  Category = "video"
	CategoryPlain  Category = "plain"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsPlain reports whether the category carries no structured rendering.
func (c Category) IsPlain() bool {
	return c == CategoryPlain
}

// =============================================================================
// RULE TABLE
// =============================================================================

// Rule associates a keyword set with the category it selects. A rule matches
// when the lowercased utterance contains any of its keywords as a substring.
type Rule struct {
	Keywords []string
	Category Category
}

// rules is evaluated top to bottom; the first matching rule wins. The order
// is load-bearing: "write a script listing video ideas" must classify as
// script, not list or video.
var rules = []Rule{
	{Keywords: []string{"script", "screenplay", "dialogue", "scene"}, Category: CategoryScript},
	{Keywords: []string{"idea", "brainstorm", "concept", "inspiration"}, Category: CategoryIdea},
	{Keywords: []string{"tips", "advice", "tricks", "how to", "best practices"}, Category: CategoryTips},
	// Legacy single-keyword categories, kept last for compatibility.
	{Keywords: []string{"image"}, Category: CategoryImage},
	{Keywords: []string{"list"}, Category: CategoryList},
	{Keywords: []string{"video"}, Category: CategoryVideo},
}

// Rules returns a copy of the ordered rule table for inspection.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{
			Keywords: append([]string(nil), r.Keywords...),
			Category: r.Category,
		}
	}
	return out
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify maps an utterance to its content category. It is a pure function:
// total (always returns a category, defaulting to plain) and deterministic
// for a given input.
func Classify(text string) Category {
	lowered := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lowered, kw) {
				return r.Category
			}
		}
	}
	return CategoryPlain
}
