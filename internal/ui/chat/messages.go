// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the Bubble Tea chat view: transcript
// viewport, input box, and the message plumbing between the stream
// controller's goroutines and the UI loop.
package chat

import (
	"github.com/jeranaias/vizchat-tui/internal/diagram"
	"github.com/jeranaias/vizchat-tui/internal/stream"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// TranscriptChangedMsg signals that the message store mutated and the
// viewport needs re-rendering. Sent by the store's change callback,
// which may fire from the stream goroutine; tea.Program.Send is the
// thread-safe bridge into the UI loop.
type TranscriptChangedMsg struct{}

// SessionNoteMsg wraps a controller lifecycle note.
type SessionNoteMsg struct {
	Note stream.Note
}

// ArtifactMsg announces a newly recorded diagram artifact.
type ArtifactMsg struct {
	Artifact diagram.Artifact
}

// ConfigReloadedMsg announces a config hot reload.
type ConfigReloadedMsg struct {
	FlushIntervalMs int
}
