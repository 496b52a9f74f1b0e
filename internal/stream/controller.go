// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/model"
)

// =============================================================================
// STATES
// =============================================================================

// State is the controller's lifecycle position. Terminal states remain
// readable after the session ends; a new Submit starts the cycle over.
type State int

const (
	// StateIdle: no session has run yet.
	StateIdle State = iota

	// StateRequesting: request sent, no chunk received yet.
	StateRequesting

	// StateStreaming: at least one chunk has arrived.
	StateStreaming

	// StateCompleted: the stream finished with done (or EOF).
	StateCompleted

	// StateErrored: the stream or transport failed.
	StateErrored

	// StateCancelled: the user stopped the response.
	StateCancelled
)

// String returns the state name for logs and tests.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Streamer issues the streamed query call. *backend.Client satisfies
// it; tests substitute fakes.
type Streamer interface {
	Query(ctx context.Context, req backend.QueryRequest, fn backend.StreamCallback) error
}

// TurnSaver persists one finalized turn. Persistence is fire-and-forget
// and only attempted for workspace-scoped conversations.
type TurnSaver interface {
	SaveTurn(ctx context.Context, workspaceID, role, content string) error
}

// Dispatcher is the diagram collaborator. It decides diagram intent and
// executes the two diagram modes. A nil Dispatcher disables diagrams.
type Dispatcher interface {
	// IsDiagramQuery reports whether the query itself is a diagram
	// request, selecting diagram-only mode.
	IsDiagramQuery(query string) bool

	// RunDirect generates a diagram for the query and resolves the
	// placeholder message. It returns ctx.Err() on cancellation and a
	// non-nil error on generation failure (already surfaced in the
	// placeholder by the dispatcher).
	RunDirect(ctx context.Context, query string, messageID int64) error

	// WantsAugmentation inspects recent user messages (most recent
	// first) for diagram relevance.
	WantsAugmentation(recent []model.Message) bool

	// Augment asynchronously derives a diagram from a finalized
	// response. It must never mutate the finalized message.
	Augment(query, finalContent string, messageID int64)
}

// =============================================================================
// NOTES
// =============================================================================

// NoteKind labels a controller lifecycle notification.
type NoteKind int

const (
	// NoteStarted: a session began; a placeholder message exists.
	NoteStarted NoteKind = iota

	// NoteStreaming: the first chunk arrived.
	NoteStreaming

	// NoteCompleted: the session finished successfully.
	NoteCompleted

	// NoteErrored: the session failed; Err carries the cause.
	NoteErrored

	// NoteCancelled: the user stopped the session.
	NoteCancelled
)

// Note is a lifecycle notification delivered to the UI. Store content
// changes travel separately through the store's change callback; notes
// cover only session boundaries.
type Note struct {
	Kind      NoteKind
	MessageID int64
	Err       error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Submission errors. Both leave the store untouched.
var (
	// ErrBusy is returned by Submit while a session is in flight.
	ErrBusy = errors.New("a response is already in progress")

	// ErrEmptyInput is returned by Submit for blank input.
	ErrEmptyInput = errors.New("empty input")
)

// diagramPlaceholder is the text shown while a diagram-only request is
// in flight.
const diagramPlaceholder = "Generating diagram…"

// stoppedNotice is appended to the transcript when the user cancels.
const stoppedNotice = "Response stopped."

// Config holds the controller's per-conversation settings.
type Config struct {
	// WorkspaceID scopes the conversation. Empty means ad-hoc: no
	// server-side persistence, workspace_id sent as null.
	WorkspaceID string

	// SelectedFileIDs narrows backend retrieval to specific files.
	SelectedFileIDs []string

	// FlushInterval overrides the updater throttle. Zero selects
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// HistoryLimit caps conversation_history turns. Zero selects 10.
	HistoryLimit int
}

// Controller runs at most one streamed response at a time against the
// message store. Submit starts a session; Cancel stops it. All state
// transitions are serialized under one mutex, which makes the
// cancel-versus-done race deterministic: the first terminal transition
// wins and the loser becomes a no-op.
type Controller struct {
	mu         sync.Mutex
	state      State
	session    *session
	client     Streamer
	saver      TurnSaver
	store      *model.MessageStore
	clock      Clock
	dispatcher Dispatcher
	cfg        Config
	notify     func(Note)
}

// NewController wires a controller. saver and dispatcher may be nil to
// disable persistence and diagrams respectively.
func NewController(client Streamer, saver TurnSaver, store *model.MessageStore, clock Clock, dispatcher Dispatcher, cfg Config) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Controller{
		state:      StateIdle,
		client:     client,
		saver:      saver,
		store:      store,
		clock:      clock,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// SetNotifier registers the lifecycle callback. Must be set before the
// first Submit; notes may arrive from the stream goroutine.
func (c *Controller) SetNotifier(fn func(Note)) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// SetFlushInterval updates the throttle applied to future sessions.
// The active session, if any, keeps its current interval.
func (c *Controller) SetFlushInterval(d time.Duration) {
	c.mu.Lock()
	c.cfg.FlushInterval = d
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a session is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit starts a session for query. It returns ErrBusy while a session
// is active and ErrEmptyInput for blank input; both leave the store
// unchanged. On success the user message and an assistant placeholder
// are in the store and a goroutine owns the rest of the lifecycle.
func (c *Controller) Submit(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrBusy
	}

	// History must exclude the query being submitted, so capture it
	// before appending.
	history := c.historyLocked()

	diagramOnly := c.dispatcher != nil && c.dispatcher.IsDiagramQuery(query)

	c.store.Append(model.RoleUser, query)
	c.persistAsync(model.RoleUser, query)

	ctx, cancel := context.WithCancel(context.Background())

	s := &session{
		query:       query,
		startedAt:   c.clock.Now(),
		cancel:      newCancelManager(cancel),
		diagramOnly: diagramOnly,
	}

	if diagramOnly {
		s.messageID = c.store.Append(model.RoleAssistant, diagramPlaceholder)
	} else {
		id, err := c.store.AppendStreaming()
		if err != nil {
			cancel()
			c.mu.Unlock()
			return err
		}
		s.messageID = id
		s.updater = NewThrottledUpdater(c.store, id, c.clock, c.cfg.FlushInterval)
	}

	c.session = s
	c.state = StateRequesting
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify(Note{Kind: NoteStarted, MessageID: s.messageID})
	}

	if diagramOnly {
		go c.runDiagramOnly(ctx, s)
	} else {
		go c.run(ctx, s, history)
	}
	return nil
}

// historyLocked builds the conversation_history payload from finalized
// turns already in the store.
func (c *Controller) historyLocked() []backend.HistoryTurn {
	msgs := c.store.HistoryTurns(c.cfg.HistoryLimit)
	turns := make([]backend.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, backend.HistoryTurn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

// Cancel requests cancellation of the active session. Safe to call at
// any time from any goroutine; a second cancel, or a cancel racing the
// stream's own completion, is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel.Cancel()
}

// =============================================================================
// STREAM LIFECYCLE
// =============================================================================

// run drives a primary stream session to its terminal state.
func (c *Controller) run(ctx context.Context, s *session, history []backend.HistoryTurn) {
	req := backend.QueryRequest{
		Query:               s.query,
		ConversationHistory: history,
		SelectedFileIDs:     c.cfg.SelectedFileIDs,
	}
	if c.cfg.WorkspaceID != "" {
		ws := c.cfg.WorkspaceID
		req.WorkspaceID = &ws
	}

	err := c.client.Query(ctx, req, func(ev backend.StreamEvent) {
		switch ev.Kind {
		case backend.EventChunk:
			c.markStreaming(s)
			s.updater.Append(ev.Chunk)
		case backend.EventDone:
			c.complete(s)
		case backend.EventError:
			c.fail(s, streamEventError(ev))
		}
	})

	// Cancellation is checked first: an aborted body read can surface
	// as any error, or as none at all, and must never be mistaken for
	// completion or failure.
	switch {
	case backend.IsCanceled(err) || ctx.Err() != nil:
		c.cancelled(s)
	case err == nil:
		// EOF without an explicit done event still completes; the
		// backend closed the stream cleanly.
		c.complete(s)
	default:
		c.fail(s, err)
	}
}

// streamEventError converts an error event into a ClientError carrying
// the backend's optional type tag.
func streamEventError(ev backend.StreamEvent) error {
	msg := ev.Err
	if ev.ErrType != "" {
		msg = fmt.Sprintf("%s (%s)", ev.Err, ev.ErrType)
	}
	return &backend.ClientError{Type: backend.ErrTypeStream, Message: msg}
}

// markStreaming records arrival of the first chunk.
func (c *Controller) markStreaming(s *session) {
	c.mu.Lock()
	if s.terminal || c.state != StateRequesting {
		c.mu.Unlock()
		return
	}
	c.state = StateStreaming
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify(Note{Kind: NoteStreaming, MessageID: s.messageID})
	}
}

// complete is the done path: exactly-once final flush, persistence,
// and augmentation dispatch.
func (c *Controller) complete(s *session) {
	c.mu.Lock()
	if s.terminal {
		c.mu.Unlock()
		return
	}
	s.terminal = true
	c.state = StateCompleted
	c.session = nil
	notify := c.notify
	c.mu.Unlock()

	s.cancel.Clear()

	final := ""
	if s.updater != nil {
		final = s.updater.Finish()
	}

	c.persistAsync(model.RoleAssistant, final)

	if c.dispatcher != nil && !s.diagramOnly &&
		c.dispatcher.WantsAugmentation(c.store.RecentUserMessages(3)) {
		c.dispatcher.Augment(s.query, final, s.messageID)
	}

	if notify != nil {
		notify(Note{Kind: NoteCompleted, MessageID: s.messageID})
	}
}

// fail is the error path: the target message becomes the user-visible
// error description and the session ends. Nothing is persisted.
func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	if s.terminal {
		c.mu.Unlock()
		return
	}
	s.terminal = true
	c.state = StateErrored
	c.session = nil
	notify := c.notify
	c.mu.Unlock()

	s.cancel.Clear()

	if s.updater != nil {
		s.updater.Abort()
	}
	c.store.ReplaceByID(s.messageID, backend.Describe(err))

	if notify != nil {
		notify(Note{Kind: NoteErrored, MessageID: s.messageID, Err: err})
	}
}

// cancelled is the user-stop path: the target message keeps its
// last-flushed content, the unflushed tail is dropped, and one stop
// notice is appended. Never reported as an error.
func (c *Controller) cancelled(s *session) {
	c.mu.Lock()
	if s.terminal {
		c.mu.Unlock()
		return
	}
	s.terminal = true
	c.state = StateCancelled
	c.session = nil
	notify := c.notify
	c.mu.Unlock()

	if s.updater != nil {
		s.updater.Abort()
	} else {
		// Diagram-only sessions have no partial text to keep.
		c.store.ReplaceByID(s.messageID, "Diagram generation stopped.")
	}
	c.store.AppendNotice(stoppedNotice)

	if notify != nil {
		notify(Note{Kind: NoteCancelled, MessageID: s.messageID})
	}
}

// =============================================================================
// DIAGRAM-ONLY MODE
// =============================================================================

// runDiagramOnly resolves a diagram-only session. The dispatcher owns
// the placeholder's final text; the controller owns the state machine.
func (c *Controller) runDiagramOnly(ctx context.Context, s *session) {
	err := c.dispatcher.RunDirect(ctx, s.query, s.messageID)
	switch {
	case backend.IsCanceled(err) || ctx.Err() != nil:
		c.cancelled(s)
	case err == nil:
		c.complete(s)
	default:
		c.failDiagram(s, err)
	}
}

// failDiagram ends a diagram-only session whose failure text the
// dispatcher already wrote into the placeholder.
func (c *Controller) failDiagram(s *session, err error) {
	c.mu.Lock()
	if s.terminal {
		c.mu.Unlock()
		return
	}
	s.terminal = true
	c.state = StateErrored
	c.session = nil
	notify := c.notify
	c.mu.Unlock()

	s.cancel.Clear()

	if notify != nil {
		notify(Note{Kind: NoteErrored, MessageID: s.messageID, Err: err})
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistAsync saves one finalized turn in the background. Only
// workspace-scoped conversations persist; failures are logged to
// stderr and absorbed, never surfaced in the transcript.
func (c *Controller) persistAsync(role model.Role, content string) {
	if c.saver == nil || c.cfg.WorkspaceID == "" || content == "" {
		return
	}
	ws := c.cfg.WorkspaceID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.saver.SaveTurn(ctx, ws, string(role), content); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save chat turn: %v\n", err)
		}
	}()
}
