// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"encoding/json"
	"strings"

	"github.com/jeranaias/vizchat-tui/internal/backend"
)

// =============================================================================
// SOURCE EXTRACTION
// =============================================================================

// structuredDiagram covers the object shapes backends use to carry
// Mermaid source. First non-empty field wins, in declaration order.
type structuredDiagram struct {
	Mermaid string `json:"mermaid"`
	Source  string `json:"source"`
	Code    string `json:"code"`
}

// ExtractSource pulls renderable Mermaid source out of a diagram
// response. Backends return either a bare JSON string or a structured
// object; both may wrap the source in a fenced code block. ok is false
// when no usable text can be found, which discards the artifact
// silently.
func ExtractSource(resp *backend.DiagramResponse) (source string, ok bool) {
	if resp == nil || len(resp.Diagram) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(resp.Diagram, &s); err == nil {
		return cleanSource(s)
	}

	var obj structuredDiagram
	if err := json.Unmarshal(resp.Diagram, &obj); err == nil {
		for _, candidate := range []string{obj.Mermaid, obj.Source, obj.Code} {
			if strings.TrimSpace(candidate) != "" {
				return cleanSource(candidate)
			}
		}
	}
	return "", false
}

// cleanSource trims whitespace and unwraps a fenced code block
// (```mermaid ... ``` or plain ```).
func cleanSource(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "```") {
		s = unfence(s)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// unfence strips the opening fence line (with any language tag) and a
// trailing closing fence.
func unfence(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
