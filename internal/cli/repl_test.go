// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/config"
	"github.com/jeranaias/vizchat-tui/internal/history"
	"github.com/jeranaias/vizchat-tui/internal/model"
)

func newTestREPL(baseURL string) *REPL {
	cfg := config.Default()
	cfg.Diagram.Enabled = false
	client := backend.NewClientWithConfig(backend.ClientConfig{BaseURL: baseURL})
	return New(cfg, client, nil)
}

// =============================================================================
// QUERY FLOW TESTS
// =============================================================================

func TestAskRecordsRequestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "backend blew up"}`))
	}))
	defer srv.Close()

	r := newTestREPL(srv.URL)
	r.ask("hello")

	msgs := r.store.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("Expected user + error entry in transcript, got %d messages", len(msgs))
	}
	if msgs[1].Role != model.RoleAssistant {
		t.Errorf("Error entry role %q", msgs[1].Role)
	}
	if !strings.Contains(msgs[1].Content, "backend blew up") {
		t.Errorf("Failure text missing from transcript, got %q", msgs[1].Content)
	}
}

func TestAskRecordsStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"chunk\": \"partial\"}\n"))
		w.Write([]byte("data: {\"error\": \"model overloaded\"}\n"))
	}))
	defer srv.Close()

	r := newTestREPL(srv.URL)
	r.ask("hello")

	msgs := r.store.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("Expected user + error entry in transcript, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Streaming error") {
		t.Errorf("Stream failure missing from transcript, got %q", msgs[1].Content)
	}
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestLoadSkipsUnknownRoles(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()

	id, err := hist.Save(&history.Conversation{
		Summary: "mixed roles",
		Turns: []history.Turn{
			{Role: "user", Content: "q"},
			{Role: "tool", Content: "junk from another build"},
			{Role: "assistant", Content: "a"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestREPL("http://127.0.0.1:0")
	r.hist = hist
	r.loadConversation(id)

	if r.store.Len() != 2 {
		t.Fatalf("Expected the 2 known-role turns restored, got %d", r.store.Len())
	}
	for _, m := range r.store.Snapshot() {
		if !m.Role.Valid() {
			t.Errorf("Unknown role restored: %q", m.Role)
		}
	}
}

func TestAskRecordsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"chunk\": \"fine answer\"}\n"))
		w.Write([]byte("data: {\"done\": true}\n"))
	}))
	defer srv.Close()

	r := newTestREPL(srv.URL)
	r.ask("hello")

	msgs := r.store.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("Expected user + assistant, got %d messages", len(msgs))
	}
	if msgs[1].Content != "fine answer" {
		t.Errorf("Answer not recorded, got %q", msgs[1].Content)
	}
}
