// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles defines the vizchat color theme and lipgloss styles
// shared across the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

const (
	ColorAccent  = "#7D56F4"
	ColorUser    = "#36A3D9"
	ColorAssist  = "#A6E22E"
	ColorSystem  = "#75715E"
	ColorError   = "#F92672"
	ColorDim     = "#5C6370"
	ColorBorder  = "#3E4452"
	ColorDiagram = "#E6DB74"
)

// =============================================================================
// THEME
// =============================================================================

// Theme bundles the styles the chat view needs. Built once at startup
// from the detected terminal capabilities.
type Theme struct {
	Profile termenv.Profile

	Header      lipgloss.Style
	UserLabel   lipgloss.Style
	AssistLabel lipgloss.Style
	SystemNote  lipgloss.Style
	ErrorText   lipgloss.Style
	Timestamp   lipgloss.Style
	StatusBar   lipgloss.Style
	Spinner     lipgloss.Style
	InputBox    lipgloss.Style
	DiagramTag  lipgloss.Style
}

// NewTheme builds the theme for the current terminal.
func NewTheme() *Theme {
	return &Theme{
		Profile: termenv.ColorProfile(),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorAccent)),
		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorUser)),
		AssistLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorAssist)),
		SystemNote: lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color(ColorSystem)),
		ErrorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorError)),
		Timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorDim)),
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorDim)),
		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorAccent)),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)),
		DiagramTag: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorDiagram)),
	}
}

// GlamourStyle picks the markdown style matching the terminal
// background.
func GlamourStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
