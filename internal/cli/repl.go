// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the plain line-mode fallback used when stdout
// is not a TTY capable of the full-screen view, or when --plain is
// passed. Responses stream straight to stdout; a terminal already
// paints at its own pace, so the TUI's flush throttle is not needed
// here.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/config"
	"github.com/jeranaias/vizchat-tui/internal/diagram"
	"github.com/jeranaias/vizchat-tui/internal/history"
	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(styles.ColorUser))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.ColorSystem))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.ColorError))
)

// REPL is the line-mode chat loop.
type REPL struct {
	cfg     *config.Config
	client  *backend.Client
	store   *model.MessageStore
	hist    *history.Store
	line    *liner.State
	convID  string
	histLim int
}

// New builds a REPL. hist may be nil when local history is unavailable.
func New(cfg *config.Config, client *backend.Client, hist *history.Store) *REPL {
	return &REPL{
		cfg:     cfg,
		client:  client,
		store:   model.NewMessageStore(),
		hist:    hist,
		histLim: cfg.Stream.HistoryLimit,
	}
}

// Run executes the loop until /quit or EOF.
func (r *REPL) Run() error {
	r.line = liner.NewLiner()
	defer r.line.Close()
	r.line.SetCtrlCAborts(true)

	histFile := r.historyFilePath()
	if histFile != "" {
		if f, err := os.Open(histFile); err == nil {
			r.line.ReadHistory(f)
			f.Close()
		}
		defer r.writeLineHistory(histFile)
	}

	fmt.Println(noticeStyle.Render("vizchat — /help for commands, /quit to exit"))

	for {
		input, err := r.line.Prompt(promptStyle.Render("you> "))
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			// EOF or terminal gone.
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(input); quit {
				return nil
			}
			continue
		}

		r.ask(input)
	}
}

func (r *REPL) historyFilePath() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "repl_history")
}

func (r *REPL) writeLineHistory(path string) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// =============================================================================
// QUERY FLOW
// =============================================================================

// ask runs one exchange. Ctrl-C (SIGINT) while streaming cancels the
// request; the partial output stays on screen, matching the TUI's
// keep-what-was-shown cancellation behavior.
func (r *REPL) ask(query string) {
	if r.cfg.Diagram.Enabled && diagram.IsDiagramRequest(query) {
		r.askDiagram(query)
		return
	}

	priorTurns := r.historyTurns()
	r.store.Append(model.RoleUser, query)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	req := backend.QueryRequest{
		Query:               query,
		ConversationHistory: priorTurns,
		SelectedFileIDs:     r.cfg.Workspace.SelectedFileIDs,
	}
	if ws := r.cfg.Workspace.ID; ws != "" {
		req.WorkspaceID = &ws
	}

	var full strings.Builder
	var streamErr string
	err := r.client.Query(ctx, req, func(ev backend.StreamEvent) {
		switch ev.Kind {
		case backend.EventChunk:
			full.WriteString(ev.Chunk)
			fmt.Print(ev.Chunk)
		case backend.EventError:
			streamErr = ev.Err
		}
	})
	fmt.Println()

	switch {
	case backend.IsCanceled(err) || ctx.Err() != nil:
		fmt.Println(noticeStyle.Render("Response stopped."))
		r.store.Append(model.RoleAssistant, full.String())
		r.store.AppendNotice("Response stopped.")
		return
	case err != nil:
		desc := backend.Describe(err)
		fmt.Println(errorStyle.Render(desc))
		// The failure joins the transcript so history and /save see the
		// same exchange the screen showed.
		r.store.Append(model.RoleAssistant, desc)
		return
	case streamErr != "":
		desc := backend.Describe(
			&backend.ClientError{Type: backend.ErrTypeStream, Message: streamErr})
		fmt.Println(errorStyle.Render(desc))
		r.store.Append(model.RoleAssistant, desc)
		return
	}

	r.store.Append(model.RoleAssistant, full.String())
	r.renderFinal(full.String())
}

// renderFinal re-renders the finalized answer through glamour beneath
// the raw stream, so code blocks and lists come out formatted.
func (r *REPL) renderFinal(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	out, err := glamour.Render(content, styles.GlamourStyle())
	if err != nil {
		return
	}
	fmt.Println(noticeStyle.Render("── formatted ──"))
	fmt.Print(out)
}

// askDiagram handles a diagram-only query.
func (r *REPL) askDiagram(query string) {
	r.store.Append(model.RoleUser, query)
	fmt.Println(noticeStyle.Render("Generating diagram…"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp, err := r.client.GenerateDiagram(ctx, backend.DiagramRequest{
		Query:       query,
		DiagramType: diagram.ExplicitType(query),
		WorkspaceID: r.cfg.Workspace.ID,
	})
	if err != nil {
		fmt.Println(errorStyle.Render("Could not generate the diagram. " + backend.Describe(err)))
		return
	}
	if !resp.Success {
		fmt.Println(errorStyle.Render("Could not generate the diagram: " + resp.Error))
		return
	}
	source, ok := diagram.ExtractSource(resp)
	if !ok {
		fmt.Println(noticeStyle.Render("The diagram request produced no drawable content."))
		return
	}

	r.store.Append(model.RoleAssistant, "Here is the diagram:")
	out, err := glamour.Render("```mermaid\n"+source+"\n```", styles.GlamourStyle())
	if err != nil {
		fmt.Println(source)
		return
	}
	fmt.Print(out)
}

// historyTurns converts the finalized transcript into wire turns.
func (r *REPL) historyTurns() []backend.HistoryTurn {
	msgs := r.store.HistoryTurns(r.histLim)
	turns := make([]backend.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, backend.HistoryTurn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

// =============================================================================
// COMMANDS
// =============================================================================

// handleCommand executes a slash command. Returns true to quit.
func (r *REPL) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(noticeStyle.Render(strings.TrimSpace(`
/help           show this help
/clear          forget the current conversation
/save           save the conversation locally
/sessions       list saved conversations
/load <id>      restore a saved conversation
/quit           exit`)))

	case "/clear":
		r.store = model.NewMessageStore()
		r.convID = ""
		fmt.Println(noticeStyle.Render("Conversation cleared."))

	case "/save":
		r.saveConversation()

	case "/sessions":
		r.listSessions()

	case "/load":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /load <id>"))
			break
		}
		r.loadConversation(args[0])

	default:
		fmt.Println(errorStyle.Render("unknown command " + cmd + ", /help for commands"))
	}
	return false
}

func (r *REPL) saveConversation() {
	if r.hist == nil {
		fmt.Println(errorStyle.Render("local history is unavailable"))
		return
	}
	if r.store.Len() == 0 {
		fmt.Println(noticeStyle.Render("Nothing to save."))
		return
	}
	conv := history.FromMessages(r.cfg.Workspace.ID, r.store.Snapshot())
	conv.ID = r.convID
	id, err := r.hist.Save(conv)
	if err != nil {
		fmt.Println(errorStyle.Render("save failed: " + err.Error()))
		return
	}
	r.convID = id
	fmt.Println(noticeStyle.Render("Saved as " + id))
}

func (r *REPL) listSessions() {
	if r.hist == nil {
		fmt.Println(errorStyle.Render("local history is unavailable"))
		return
	}
	metas, err := r.hist.List()
	if err != nil {
		fmt.Println(errorStyle.Render("list failed: " + err.Error()))
		return
	}
	if len(metas) == 0 {
		fmt.Println(noticeStyle.Render("No saved conversations."))
		return
	}
	for _, m := range metas {
		fmt.Printf("%s  %2d turns  %s  %s\n",
			m.ID, m.TurnCount, m.UpdatedAt.Format("2006-01-02 15:04"), m.Summary)
	}
}

func (r *REPL) loadConversation(id string) {
	if r.hist == nil {
		fmt.Println(errorStyle.Render("local history is unavailable"))
		return
	}
	conv, err := r.hist.Load(id)
	if err != nil {
		fmt.Println(errorStyle.Render("load failed: " + err.Error()))
		return
	}
	store := model.NewMessageStore()
	restored := 0
	for _, t := range conv.Turns {
		// Rows written by older builds may carry roles this build does
		// not know; skip them rather than replay them to the backend.
		if !model.Role(t.Role).Valid() {
			continue
		}
		store.Append(model.Role(t.Role), t.Content)
		restored++
	}
	r.store = store
	r.convID = conv.ID
	fmt.Println(noticeStyle.Render(fmt.Sprintf("Restored %d turns.", restored)))
}
