// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/ui/components"
	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.theme.Header.Render("vizchat"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.theme.InputBox.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	return b.String()
}

// statusLine renders the bottom status row. Errors keep their own color
// so they read at a glance; everything else is dimmed.
func (m Model) statusLine() string {
	status := m.status
	if m.processing {
		status = m.spin.View() + " " + status
	}
	line := m.theme.StatusBar.Render(status)
	if m.statusErr {
		line = m.theme.ErrorText.Render(status)
	}
	if m.dispatcher != nil {
		if n := len(m.dispatcher.Artifacts()); n > 0 {
			line += m.theme.StatusBar.Render(fmt.Sprintf("  ·  %d diagram(s)", n))
		}
	}
	return line
}

// renderTranscript renders every message, newest last, with any diagram
// artifact attached beneath its message.
func (m Model) renderTranscript() string {
	msgs := m.store.Snapshot()
	if len(msgs) == 0 {
		return m.theme.SystemNote.Render("No messages yet. Ask something about your workspace.")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")

		if m.dispatcher != nil {
			if a, ok := m.dispatcher.ArtifactFor(msg.ID); ok {
				block := components.DiagramBlock{
					Source: a.Source,
					Type:   a.Type,
					Width:  m.viewport.Width - 2,
				}
				b.WriteString(block.Render(m.theme))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// renderMessage renders one transcript entry.
func (m Model) renderMessage(msg model.Message) string {
	if msg.IsNotice() {
		return m.theme.SystemNote.Render("· " + msg.Content)
	}

	switch msg.Role {
	case model.RoleUser:
		return m.label(msg, m.theme.UserLabel) + "\n" + msg.Content

	case model.RoleAssistant:
		label := m.label(msg, m.theme.AssistLabel)
		if msg.Streaming {
			// Raw text while streaming; markdown rendering of half a
			// code fence looks worse than plain text.
			return label + "\n" + msg.Content + "▌"
		}
		return label + "\n" + m.renderMarkdown(msg.Content)

	default:
		return msg.Content
	}
}

// label renders the role header for one message, with the arrival time
// appended when timestamps are enabled.
func (m Model) label(msg model.Message, style lipgloss.Style) string {
	out := style.Render(msg.Role.DisplayName())
	if m.showTimestamps {
		out += " " + m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	}
	return out
}

// renderMarkdown renders finalized assistant content through glamour,
// falling back to the raw text on error.
func (m Model) renderMarkdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
