// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// CANCEL MANAGER
// =============================================================================

// cancelManager guards a session's context.CancelFunc behind a mutex so
// Cancel can be called safely from the UI goroutine while the stream
// goroutine clears it. Cancel is idempotent: the first call cancels,
// later calls are no-ops.
//
// Held by pointer so the owning struct can be copied without copying
// the mutex.
type cancelManager struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newCancelManager(cancel context.CancelFunc) *cancelManager {
	return &cancelManager{cancel: cancel}
}

// Cancel invokes the stored cancel func once and drops it.
func (m *cancelManager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Clear drops the cancel func without invoking it. Called once the
// session reaches a terminal state and the context is of no use.
func (m *cancelManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = nil
}

// =============================================================================
// SESSION
// =============================================================================

// session is the per-submission state: the target message, the updater
// feeding it, and the cancellation token. Exactly one session exists
// between Submit and the terminal transition.
type session struct {
	messageID int64
	query     string
	startedAt time.Time
	cancel    *cancelManager

	// updater is nil in diagram-only mode, which has no text stream.
	updater *ThrottledUpdater

	// diagramOnly marks a session that resolves through the dispatcher
	// instead of the primary stream.
	diagramOnly bool

	// terminal is guarded by the controller mutex. The first path to
	// set it (done, error, or cancel) wins; the others become no-ops.
	terminal bool
}
