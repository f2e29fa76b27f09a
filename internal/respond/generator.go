// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package respond

import (
	"context"

	"github.com/parley-chat/parley/internal/classify"
)

// Generator is the upstream reply source.
type Generator interface {
	// Reply produces the full assistant reply for a user message.
	Reply(ctx context.Context, message string) (string, error)
}

// =============================================================================
// PLACEHOLDER GENERATOR
// =============================================================================

// replySets holds the fixed reply set per content category. Variant
// selection is a pure function of the message, so repeated submissions of
// the same text produce the same reply.
var replySets = map[classify.Category][]string{
	classify.CategoryScript: {
		"INT. STUDIO - DAY\n\nHOST\nWelcome back! Today we dive straight in.\n\nThe camera pushes in as the hook lands.",
		"FADE IN:\n\nEXT. CITY STREET - MORNING\n\nNARRATOR (V.O.)\nEvery story starts with a single step.",
	},
	classify.CategoryIdea: {
		"Here's an angle worth exploring: take the most common question in your niche and answer it backwards, starting from the surprising conclusion.",
		"Try a before-and-after format: show the finished result in the first three seconds, then rewind to how it was made.",
	},
	classify.CategoryTips: {
		"- Hook viewers in the first three seconds\n- Keep cuts under two seconds\n- End with a question to drive comments",
		"- Post at a consistent time\n- Reuse your best-performing format\n- Reply to early comments quickly",
	},
	classify.CategoryImage: {
		"Picture this: a wide shot, golden-hour light, subject slightly off-center with strong negative space for text overlay.",
	},
	classify.CategoryList: {
		"1. Plan the outline\n2. Draft without editing\n3. Cut the weakest third\n4. Polish the opening line",
	},
	classify.CategoryVideo: {
		"For the video, open on the payoff, cut to a 20-second setup, then deliver three beats with on-screen captions and a hard call to action.",
	},
	classify.CategoryPlain: {
		"Happy to help with that. Tell me a little more about what you're working on and I'll get specific.",
		"Good question. Here's how I'd think about it: start small, measure, then double down on what works.",
	},
}

// PlaceholderGenerator serves canned replies from a fixed set keyed by the
// classified content category. It never fails.
type PlaceholderGenerator struct{}

// NewPlaceholderGenerator creates the canned reply source.
func NewPlaceholderGenerator() *PlaceholderGenerator {
	return &PlaceholderGenerator{}
}

// Reply selects a reply for the message's category. Variant choice hashes
// the message length so identical input always yields identical output.
func (g *PlaceholderGenerator) Reply(_ context.Context, message string) (string, error) {
	category := classify.Classify(message)
	set := replySets[category]
	if len(set) == 0 {
		set = replySets[classify.CategoryPlain]
	}
	return set[len(message)%len(set)], nil
}
