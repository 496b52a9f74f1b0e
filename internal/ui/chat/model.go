// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/vizchat-tui/internal/diagram"
	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/stream"
	"github.com/jeranaias/vizchat-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the chat view. It owns no conversation state of its own:
// the transcript lives in the message store, artifacts live in the
// dispatcher, and the session lifecycle lives in the controller. The
// view renders those and routes input.
type Model struct {
	theme      *styles.Theme
	store      *model.MessageStore
	controller *stream.Controller
	dispatcher *diagram.Dispatcher

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model

	width  int
	height int
	ready  bool

	processing     bool
	status         string
	statusErr      bool
	showTimestamps bool
}

// New builds the chat view. dispatcher may be nil when diagrams are
// disabled.
func New(theme *styles.Theme, store *model.MessageStore, controller *stream.Controller, dispatcher *diagram.Dispatcher, showTimestamps bool) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your workspace… (enter to send, esc to stop)"
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.Spinner

	return Model{
		theme:          theme,
		store:          store,
		controller:     controller,
		dispatcher:     dispatcher,
		input:          ta,
		spin:           sp,
		status:         "ready",
		showTimestamps: showTimestamps,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshTranscript()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.processing {
				m.controller.Cancel()
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.processing {
				m.controller.Cancel()
				return m, nil
			}

		case tea.KeyEnter:
			// Shift-enter style multiline entry is not distinguishable
			// in every terminal, so plain enter submits.
			return m.submit()
		}

	case TranscriptChangedMsg:
		m.refreshTranscript()

	case ArtifactMsg:
		m.refreshTranscript()

	case ConfigReloadedMsg:
		m.status = "config reloaded"

	case SessionNoteMsg:
		m.applyNote(msg.Note)
		if m.processing {
			cmds = append(cmds, m.spin.Tick)
		}

	case spinner.TickMsg:
		if m.processing {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit hands the input to the controller. A busy controller leaves
// the input untouched so nothing typed is lost.
func (m Model) submit() (tea.Model, tea.Cmd) {
	query := m.input.Value()
	err := m.controller.Submit(query)
	switch {
	case err == nil:
		m.input.Reset()
		m.processing = true
		m.status = "thinking"
		m.statusErr = false
		return m, m.spin.Tick
	case errors.Is(err, stream.ErrBusy):
		m.status = "still responding, esc to stop"
		return m, nil
	case errors.Is(err, stream.ErrEmptyInput):
		return m, nil
	default:
		m.status = err.Error()
		return m, nil
	}
}

// applyNote folds a controller lifecycle note into view state.
func (m *Model) applyNote(n stream.Note) {
	m.statusErr = false
	switch n.Kind {
	case stream.NoteStarted:
		m.processing = true
		m.status = "thinking"
	case stream.NoteStreaming:
		m.status = "streaming"
	case stream.NoteCompleted:
		m.processing = false
		m.status = "ready"
	case stream.NoteErrored:
		m.processing = false
		m.status = "error"
		m.statusErr = true
	case stream.NoteCancelled:
		m.processing = false
		m.status = "stopped"
	}
	m.refreshTranscript()
}

// resize lays the viewport and input out for a new terminal size.
func (m *Model) resize(w, h int) {
	m.width = w
	m.height = h

	inputHeight := m.input.Height() + 2
	statusHeight := 1
	headerHeight := 1
	vpHeight := h - inputHeight - statusHeight - headerHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(w, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(w - 4)
}

// refreshTranscript re-renders the transcript into the viewport and
// follows the tail.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
