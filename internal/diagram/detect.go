// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diagram detects diagram intent in conversation text and
// dispatches diagram generation in its two modes: diagram-only, where
// the query itself asks for a diagram, and augmentation, where a
// finished text answer gets a companion diagram.
package diagram

import (
	"strings"

	"github.com/jeranaias/vizchat-tui/internal/model"
)

// =============================================================================
// INTENT DETECTION
// =============================================================================

// MaxIntentLookback bounds how many recent user messages the
// conversation-level predicate inspects.
const MaxIntentLookback = 3

// diagramKeywords are case-insensitive substrings that mark a text as
// diagram-relevant. Kept deliberately loose; false positives cost one
// cheap backend call, false negatives cost the feature.
var diagramKeywords = []string{
	"diagram",
	"flowchart",
	"flow chart",
	"mind map",
	"mindmap",
	"visualize",
	"visualise",
	"visual representation",
	"draw a",
	"draw the",
	"sketch",
	"chart of",
	"graph of",
	"sequence of calls",
	"architecture overview",
}

// IsDiagramRequest reports whether a single text asks for a diagram.
func IsDiagramRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range diagramKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ConversationWantsDiagram applies the same predicate across recent
// user messages, most recent first. Non-user messages are skipped.
func ConversationWantsDiagram(recent []model.Message) bool {
	seen := 0
	for _, m := range recent {
		if m.Role != model.RoleUser {
			continue
		}
		if IsDiagramRequest(m.Content) {
			return true
		}
		seen++
		if seen >= MaxIntentLookback {
			break
		}
	}
	return false
}

// explicitTypes maps query keywords to backend diagram_type values,
// checked in order so more specific phrases win.
var explicitTypes = []struct {
	keyword string
	value   string
}{
	{"sequence diagram", "sequence"},
	{"sequence of calls", "sequence"},
	{"class diagram", "class"},
	{"er diagram", "er"},
	{"entity relationship", "er"},
	{"state diagram", "state"},
	{"mind map", "mindmap"},
	{"mindmap", "mindmap"},
	{"timeline", "timeline"},
	{"gantt", "gantt"},
	{"pie chart", "pie"},
	{"flowchart", "flowchart"},
	{"flow chart", "flowchart"},
}

// ExplicitType extracts a concrete diagram type named in the query, or
// "auto" to let the backend choose.
func ExplicitType(query string) string {
	lower := strings.ToLower(query)
	for _, et := range explicitTypes {
		if strings.Contains(lower, et.keyword) {
			return et.value
		}
	}
	return "auto"
}
