// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import (
	"strings"

	"github.com/parley-chat/parley/internal/util"
)

// =============================================================================
// PAYLOAD TYPE
// =============================================================================

// Payload is the structured rendering attached to a settled assistant
// message when the originating utterance classified as non-plain.
type Payload struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Body     string   `json:"body,omitempty"`

	// Items holds the derived list entries for tips and list categories.
	Items []string `json:"items,omitempty"`

	// Prompt is the generation prompt echoed back for image and video
	// categories.
	Prompt string `json:"prompt,omitempty"`
}

// maxTitleRunes bounds the derived payload title.
const maxTitleRunes = 60

// BuildPayload derives the structured payload for a category from the
// original user text and the full assistant reply. Returns nil for plain.
func BuildPayload(category Category, userText, reply string) *Payload {
	switch category {
	case CategoryScript:
		return &Payload{
			Category: category,
			Title:    deriveTitle("Script: ", userText),
			Body:     reply,
		}
	case CategoryIdea:
		return &Payload{
			Category: category,
			Title:    deriveTitle("Idea: ", userText),
			Body:     reply,
		}
	case CategoryTips:
		return &Payload{
			Category: category,
			Title:    deriveTitle("Tips: ", userText),
			Items:    SplitItems(reply),
		}
	case CategoryList:
		return &Payload{
			Category: category,
			Title:    deriveTitle("List: ", userText),
			Items:    SplitItems(reply),
		}
	case CategoryImage:
		return &Payload{
			Category: category,
			Title:    deriveTitle("Image: ", userText),
			Prompt:   userText,
		}
	case CategoryVideo:
		return &Payload{
			Category: category,
			Title:    deriveTitle("Video: ", userText),
			Prompt:   userText,
			Body:     reply,
		}
	default:
		return nil
	}
}

// SplitItems derives checklist entries from a reply by splitting on lines
// and stripping common bullet prefixes. A reply with no line structure
// becomes a single entry, so the result is never empty for non-empty input.
func SplitItems(reply string) []string {
	var items []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = trimBullet(line)
		if line != "" {
			items = append(items, line)
		}
	}
	if len(items) == 0 {
		trimmed := strings.TrimSpace(reply)
		if trimmed != "" {
			items = []string{trimmed}
		}
	}
	return items
}

// trimBullet strips a leading "- ", "* ", "• " or "3. " style marker.
func trimBullet(line string) string {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	// Numbered markers: digits followed by "." or ")".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// deriveTitle builds a bounded, single-line title from the user utterance.
func deriveTitle(prefix, userText string) string {
	title := util.CollapseLines(strings.TrimSpace(userText))
	return prefix + util.TruncateRunes(title, maxTitleRunes)
}
