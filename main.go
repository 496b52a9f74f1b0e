// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// vizchat is a terminal client for a workspace assistant backend. It
// streams answers into a chat transcript, generates Mermaid diagrams on
// request, and keeps local conversation history.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/cli"
	"github.com/jeranaias/vizchat-tui/internal/config"
	"github.com/jeranaias/vizchat-tui/internal/diagram"
	"github.com/jeranaias/vizchat-tui/internal/history"
	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/stream"
	"github.com/jeranaias/vizchat-tui/internal/ui/chat"
	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

// Version is stamped by the release build.
var Version = "dev"

func main() {
	var (
		plain       = flag.Bool("plain", false, "line-mode interface instead of the full-screen view")
		workspace   = flag.String("workspace", "", "workspace id scoping this conversation")
		backendURL  = flag.String("backend", "", "backend base URL (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("vizchat", Version)
		return
	}

	cfg := config.Global()
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *workspace != "" {
		cfg.Workspace.ID = *workspace
	}
	cfg.Validate()

	client := backend.NewClientWithConfig(backend.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	})

	hist := openHistory(cfg)
	if hist != nil {
		defer hist.Close()
	}

	if *plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		if err := cli.New(cfg, client, hist).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "vizchat: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runTUI(cfg, client, hist); err != nil {
		fmt.Fprintf(os.Stderr, "vizchat: %v\n", err)
		os.Exit(1)
	}
}

// openHistory opens the local history store, degrading to nil with a
// warning when unavailable.
func openHistory(cfg *config.Config) *history.Store {
	path, err := cfg.HistoryPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: local history disabled: %v\n", err)
		return nil
	}
	hist, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: local history disabled: %v\n", err)
		return nil
	}
	return hist
}

// runTUI wires the store, controller, and dispatcher into the Bubble
// Tea program and runs it.
func runTUI(cfg *config.Config, client *backend.Client, hist *history.Store) error {
	store := model.NewMessageStore()

	var dispatcher *diagram.Dispatcher
	if cfg.Diagram.Enabled {
		dispatcher = diagram.NewDispatcher(client, store, diagram.Config{
			WorkspaceID:      cfg.Workspace.ID,
			AugmentPerMinute: cfg.Diagram.AugmentPerMinute,
		})
	}

	controller := stream.NewController(client, client, store, stream.SystemClock{}, dispatcherOrNil(dispatcher), stream.Config{
		WorkspaceID:     cfg.Workspace.ID,
		SelectedFileIDs: cfg.Workspace.SelectedFileIDs,
		FlushInterval:   time.Duration(cfg.Stream.FlushIntervalMs) * time.Millisecond,
		HistoryLimit:    cfg.Stream.HistoryLimit,
	})

	theme := styles.NewTheme()
	m := chat.New(theme, store, controller, dispatcher, cfg.UI.ShowTimestamps)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Store mutations and controller notes arrive on stream goroutines;
	// Program.Send is the thread-safe bridge into the UI loop. The
	// guarded reference avoids a send before Run has the program ready.
	var programMu sync.Mutex
	var programRef *tea.Program
	send := func(msg tea.Msg) {
		programMu.Lock()
		ref := programRef
		programMu.Unlock()
		if ref != nil {
			ref.Send(msg)
		}
	}

	store.SetOnChange(func() { send(chat.TranscriptChangedMsg{}) })
	controller.SetNotifier(func(n stream.Note) { send(chat.SessionNoteMsg{Note: n}) })
	if dispatcher != nil {
		dispatcher.SetOnArtifact(func(a diagram.Artifact) { send(chat.ArtifactMsg{Artifact: a}) })
	}

	if path, err := config.Path(); err == nil {
		stopWatch, err := config.Watch(path, func(next *config.Config) {
			controller.SetFlushInterval(time.Duration(next.Stream.FlushIntervalMs) * time.Millisecond)
			send(chat.ConfigReloadedMsg{FlushIntervalMs: next.Stream.FlushIntervalMs})
		})
		if err == nil {
			defer stopWatch()
		}
	}

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	_, err := p.Run()

	programMu.Lock()
	programRef = nil
	programMu.Unlock()

	saveOnExit(cfg, hist, store)
	return err
}

func dispatcherOrNil(d *diagram.Dispatcher) stream.Dispatcher {
	if d == nil {
		return nil
	}
	return d
}

// saveOnExit snapshots the session into local history so a closed
// terminal does not lose the conversation.
func saveOnExit(cfg *config.Config, hist *history.Store, store *model.MessageStore) {
	if hist == nil || store.Len() == 0 {
		return
	}
	conv := history.FromMessages(cfg.Workspace.ID, store.Snapshot())
	if _, err := hist.Save(conv); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not save conversation: %v\n", err)
	}
}
