// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/vizchat-tui/internal/model"
)

// =============================================================================
// THROTTLED UPDATER
// =============================================================================

// DefaultFlushInterval caps transcript writes at roughly 60 updates per
// second. Chunks can arrive far faster than that; rewriting the target
// message per chunk just burns CPU on renders nobody can see.
const DefaultFlushInterval = 16 * time.Millisecond

// ThrottledUpdater accumulates stream chunks for one target message and
// writes the full accumulated content into the store at most once per
// flush interval. A chunk arriving inside the interval schedules one
// deferred flush for the remaining budget, so a trailing fragment is
// never stranded waiting for a next chunk that may not come.
//
// The updater is bound to a single message and a single stream; it is
// not reusable after Finish or Abort.
type ThrottledUpdater struct {
	mu        sync.Mutex
	store     *model.MessageStore
	msgID     int64
	clock     Clock
	interval  time.Duration
	buf       strings.Builder
	lastFlush time.Time
	pending   Timer
	closed    bool
	flushes   int
}

// NewThrottledUpdater creates an updater writing to the message msgID
// in store. A non-positive interval selects DefaultFlushInterval.
func NewThrottledUpdater(store *model.MessageStore, msgID int64, clock Clock, interval time.Duration) *ThrottledUpdater {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &ThrottledUpdater{
		store:     store,
		msgID:     msgID,
		clock:     clock,
		interval:  interval,
		lastFlush: clock.Now(),
	}
}

// Append adds a chunk to the buffer and flushes or schedules a flush
// per the throttle policy. Appends after Finish or Abort are dropped.
func (u *ThrottledUpdater) Append(delta string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.buf.WriteString(delta)

	now := u.clock.Now()
	if now.Sub(u.lastFlush) >= u.interval {
		u.flushLocked(now)
		return
	}
	if u.pending == nil {
		remaining := u.interval - now.Sub(u.lastFlush)
		u.pending = u.clock.AfterFunc(remaining, u.deferredFlush)
	}
}

// deferredFlush is the timer callback for a scheduled flush.
func (u *ThrottledUpdater) deferredFlush() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.pending = nil
	u.flushLocked(u.clock.Now())
}

// flushLocked writes the full buffer into the target message.
func (u *ThrottledUpdater) flushLocked(now time.Time) {
	u.stopPendingLocked()
	u.store.UpdateContentByID(u.msgID, u.buf.String())
	u.lastFlush = now
	u.flushes++
}

func (u *ThrottledUpdater) stopPendingLocked() {
	if u.pending != nil {
		u.pending.Stop()
		u.pending = nil
	}
}

// Finish performs the exactly-once final flush: the pending timer is
// cancelled, the complete buffer is written, and the target message's
// streaming flag is cleared. It returns the final content. Subsequent
// calls return the same content without touching the store.
func (u *ThrottledUpdater) Finish() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return u.buf.String()
	}
	u.closed = true
	u.stopPendingLocked()
	u.store.ReplaceByID(u.msgID, u.buf.String())
	u.flushes++
	return u.buf.String()
}

// Abort stops the updater without a final flush: the pending timer is
// cancelled, the target message keeps its last-flushed content, and its
// streaming flag is cleared. The unflushed tail is discarded. This is
// the cancellation path. Idempotent.
func (u *ThrottledUpdater) Abort() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.closed = true
	u.stopPendingLocked()
	u.store.FinalizeByID(u.msgID)
}

// MessageID returns the id of the message this updater writes to.
func (u *ThrottledUpdater) MessageID() int64 {
	return u.msgID
}

// Content returns the full accumulated content, flushed or not.
func (u *ThrottledUpdater) Content() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.String()
}

// Flushes returns the number of store writes performed so far.
func (u *ThrottledUpdater) Flushes() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.flushes
}
