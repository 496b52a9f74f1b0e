// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/diagram"
	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/stream"
	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

type stubGenerator struct{}

func (stubGenerator) GenerateDiagram(ctx context.Context, req backend.DiagramRequest) (*backend.DiagramResponse, error) {
	return &backend.DiagramResponse{
		Success:     true,
		Diagram:     []byte(`"graph TD; A-->B"`),
		DiagramType: "flowchart",
	}, nil
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestRenderMessageNotice(t *testing.T) {
	store := model.NewMessageStore()
	m := New(styles.NewTheme(), store, nil, nil, false)

	out := m.renderMessage(model.Message{Role: model.RoleSystem, Content: "Response stopped."})
	if !strings.Contains(out, "· Response stopped.") {
		t.Errorf("Notice not rendered as a system note: %q", out)
	}
}

func TestRenderMessageTimestamps(t *testing.T) {
	store := model.NewMessageStore()
	msg := model.Message{
		Role:      model.RoleUser,
		Content:   "hello",
		Timestamp: time.Date(2026, 8, 28, 9, 41, 0, 0, time.UTC),
	}

	withTS := New(styles.NewTheme(), store, nil, nil, true)
	if out := withTS.renderMessage(msg); !strings.Contains(out, "09:41") {
		t.Errorf("Expected timestamp in label, got %q", out)
	}

	withoutTS := New(styles.NewTheme(), store, nil, nil, false)
	if out := withoutTS.renderMessage(msg); strings.Contains(out, "09:41") {
		t.Errorf("Timestamp rendered while disabled: %q", out)
	}
}

func TestStatusLineShowsDiagramCount(t *testing.T) {
	store := model.NewMessageStore()
	id := store.Append(model.RoleAssistant, "Generating diagram…")

	d := diagram.NewDispatcher(stubGenerator{}, store, diagram.Config{})
	if err := d.RunDirect(context.Background(), "draw it", id); err != nil {
		t.Fatalf("RunDirect failed: %v", err)
	}

	m := New(styles.NewTheme(), store, nil, d, false)
	if out := m.statusLine(); !strings.Contains(out, "1 diagram") {
		t.Errorf("Expected diagram count in status line, got %q", out)
	}
}

func TestStatusLineErrorStyling(t *testing.T) {
	store := model.NewMessageStore()
	m := New(styles.NewTheme(), store, nil, nil, false)

	m.applyNote(stream.Note{Kind: stream.NoteErrored})
	if !m.statusErr {
		t.Error("Errored note must mark the status as an error")
	}
	if !strings.Contains(m.statusLine(), "error") {
		t.Errorf("Expected error status, got %q", m.statusLine())
	}
}
