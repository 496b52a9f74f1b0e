// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable rendering components for the
// TUI.
package components

import (
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

// =============================================================================
// DIAGRAM BLOCK
// =============================================================================

// DiagramBlock renders a generated diagram's Mermaid source as a
// bordered, syntax-highlighted block beneath its transcript message.
// Terminals cannot draw the diagram itself; showing highlighted source
// with the diagram type keeps the artifact copyable into any Mermaid
// renderer.
type DiagramBlock struct {
	Source string
	Type   string
	Width  int
}

// chromaStyle matches the TUI's dark-first palette.
const chromaStyle = "monokai"

// Render returns the framed block.
func (b DiagramBlock) Render(theme *styles.Theme) string {
	source := strings.TrimRight(b.Source, "\n")
	if source == "" {
		return ""
	}

	highlighted := highlight(source)

	label := "diagram"
	if b.Type != "" && b.Type != "auto" {
		label = b.Type + " diagram"
	}
	header := theme.DiagramTag.Render("◆ " + label)

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(styles.ColorBorder)).
		Padding(0, 1)
	if b.Width > 4 {
		frame = frame.MaxWidth(b.Width)
	}

	return header + "\n" + frame.Render(highlighted)
}

// highlight runs the source through chroma, falling back to plain text
// when the lexer or terminal profile cannot cope.
func highlight(source string) string {
	var sb strings.Builder
	if err := quick.Highlight(&sb, source, "mermaid", "terminal256", chromaStyle); err != nil {
		return source
	}
	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return source
	}
	return strings.TrimRight(out, "\n")
}
