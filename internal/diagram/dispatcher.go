// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/vizchat-tui/internal/backend"
	"github.com/jeranaias/vizchat-tui/internal/model"
)

// =============================================================================
// ARTIFACTS
// =============================================================================

// Artifact is one generated diagram, keyed by the transcript message it
// belongs to. The UI renders the artifact beneath that message.
type Artifact struct {
	ID        string
	MessageID int64
	Type      string
	Source    string
	CreatedAt time.Time
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Generator issues the backend diagram call. *backend.Client satisfies
// it; tests substitute fakes.
type Generator interface {
	GenerateDiagram(ctx context.Context, req backend.DiagramRequest) (*backend.DiagramResponse, error)
}

// Config holds dispatcher construction options.
type Config struct {
	// WorkspaceID scopes diagram requests; may be empty.
	WorkspaceID string

	// AugmentPerMinute caps augmentation-mode backend calls. A denied
	// reservation counts as "no diagram produced". Zero selects 4.
	AugmentPerMinute int

	// AugmentTimeout bounds a single augmentation call. Zero selects
	// 60 seconds.
	AugmentTimeout time.Duration
}

// Dispatcher runs the two diagram modes and records the resulting
// artifacts. Safe for concurrent use; augmentation runs on its own
// goroutine, independent of the stream session lifecycle.
type Dispatcher struct {
	gen         Generator
	store       *model.MessageStore
	workspaceID string
	limiter     *rate.Limiter
	timeout     time.Duration

	mu         sync.Mutex
	artifacts  map[int64]Artifact
	onArtifact func(Artifact)
}

// NewDispatcher wires a dispatcher against a generator and the shared
// message store.
func NewDispatcher(gen Generator, store *model.MessageStore, cfg Config) *Dispatcher {
	perMinute := cfg.AugmentPerMinute
	if perMinute <= 0 {
		perMinute = 4
	}
	timeout := cfg.AugmentTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{
		gen:         gen,
		store:       store,
		workspaceID: cfg.WorkspaceID,
		limiter:     rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		timeout:     timeout,
		artifacts:   make(map[int64]Artifact),
	}
}

// SetOnArtifact registers a callback fired when a new artifact is
// recorded. The UI uses it to schedule a re-render.
func (d *Dispatcher) SetOnArtifact(fn func(Artifact)) {
	d.mu.Lock()
	d.onArtifact = fn
	d.mu.Unlock()
}

// IsDiagramQuery reports whether the query selects diagram-only mode.
func (d *Dispatcher) IsDiagramQuery(query string) bool {
	return IsDiagramRequest(query)
}

// WantsAugmentation reports whether recent user messages show diagram
// intent.
func (d *Dispatcher) WantsAugmentation(recent []model.Message) bool {
	return ConversationWantsDiagram(recent)
}

// ArtifactFor returns the artifact attached to a message, if any.
func (d *Dispatcher) ArtifactFor(messageID int64) (Artifact, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.artifacts[messageID]
	return a, ok
}

// Artifacts returns all recorded artifacts keyed by message id.
func (d *Dispatcher) Artifacts() map[int64]Artifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int64]Artifact, len(d.artifacts))
	for k, v := range d.artifacts {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) record(messageID int64, diagramType, source string) {
	a := Artifact{
		ID:        uuid.New().String(),
		MessageID: messageID,
		Type:      diagramType,
		Source:    source,
		CreatedAt: time.Now(),
	}
	d.mu.Lock()
	d.artifacts[messageID] = a
	notify := d.onArtifact
	d.mu.Unlock()

	if notify != nil {
		notify(a)
	}
}

// =============================================================================
// DIAGRAM-ONLY MODE
// =============================================================================

// RunDirect generates a diagram for a diagram-only query and resolves
// the placeholder message. On success the placeholder becomes a short
// done-notice and the artifact is recorded under the placeholder's id.
// On failure the placeholder becomes a failure notice and a non-nil
// error is returned. Cancellation returns ctx.Err() and leaves the
// placeholder for the controller to resolve.
func (d *Dispatcher) RunDirect(ctx context.Context, query string, messageID int64) error {
	resp, err := d.gen.GenerateDiagram(ctx, backend.DiagramRequest{
		Query:       query,
		DiagramType: ExplicitType(query),
		WorkspaceID: d.workspaceID,
	})
	if err != nil {
		if backend.IsCanceled(err) || ctx.Err() != nil {
			return context.Canceled
		}
		d.store.ReplaceByID(messageID, "Could not generate the diagram. "+backend.Describe(err))
		return err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "the backend declined the request"
		}
		d.store.ReplaceByID(messageID, "Could not generate the diagram: "+reason)
		return errors.New(reason)
	}

	source, ok := ExtractSource(resp)
	if !ok {
		d.store.ReplaceByID(messageID, "The diagram request produced no drawable content.")
		return nil
	}

	diagramType := resp.DiagramType
	if diagramType == "" {
		diagramType = ExplicitType(query)
	}
	d.record(messageID, diagramType, source)
	d.store.ReplaceByID(messageID, "Here is the diagram:")
	return nil
}

// =============================================================================
// AUGMENTATION MODE
// =============================================================================

// Augment asynchronously derives a diagram from a finalized response.
// It never touches the finalized message: on success the artifact is
// recorded beside it, on failure a stderr warning is the only trace.
// Calls beyond the rate limit are dropped.
func (d *Dispatcher) Augment(query, finalContent string, messageID int64) {
	if finalContent == "" {
		return
	}
	if !d.limiter.Allow() {
		fmt.Fprintln(os.Stderr, "warning: diagram augmentation rate limit reached, skipping")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		resp, err := d.gen.GenerateDiagram(ctx, backend.DiagramRequest{
			Query:       finalContent,
			DiagramType: ExplicitType(query),
			WorkspaceID: d.workspaceID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: diagram augmentation failed: %v\n", err)
			return
		}
		if !resp.Success {
			fmt.Fprintf(os.Stderr, "warning: diagram augmentation declined: %s\n", resp.Error)
			return
		}
		source, ok := ExtractSource(resp)
		if !ok {
			return
		}
		diagramType := resp.DiagramType
		if diagramType == "" {
			diagramType = "auto"
		}
		d.record(messageID, diagramType, source)
	}()
}
