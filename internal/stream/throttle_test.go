// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"testing"
	"time"

	"github.com/jeranaias/vizchat-tui/internal/model"
)

func newThrottleFixture(t *testing.T, interval time.Duration) (*model.MessageStore, int64, *VirtualClock, *ThrottledUpdater) {
	t.Helper()
	store := model.NewMessageStore()
	id, err := store.AppendStreaming()
	if err != nil {
		t.Fatalf("AppendStreaming failed: %v", err)
	}
	clock := NewVirtualClock(time.Unix(0, 0))
	return store, id, clock, NewThrottledUpdater(store, id, clock, interval)
}

// =============================================================================
// THROTTLED UPDATER TESTS
// =============================================================================

func TestAppendWithinIntervalDefersFlush(t *testing.T) {
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Append("Hel")
	u.Append("lo")

	// Nothing flushed yet; both appends fell inside the interval.
	if m, _ := store.Get(id); m.Content != "" {
		t.Errorf("Expected no flush before interval, got %q", m.Content)
	}

	clock.Advance(16 * time.Millisecond)

	m, _ := store.Get(id)
	if m.Content != "Hello" {
		t.Errorf("Expected deferred flush of full buffer, got %q", m.Content)
	}
	if !m.Streaming {
		t.Error("Intermediate flush must keep the streaming flag")
	}
	if u.Flushes() != 1 {
		t.Errorf("Expected exactly 1 flush, got %d", u.Flushes())
	}
}

func TestAppendAfterIntervalFlushesImmediately(t *testing.T) {
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Append("a")
	clock.Advance(20 * time.Millisecond) // fires the deferred flush
	u.Append("b")                        // 4ms past the last flush
	clock.Advance(20 * time.Millisecond)

	m, _ := store.Get(id)
	if m.Content != "ab" {
		t.Errorf("Expected 'ab', got %q", m.Content)
	}
}

func TestBurstMutationBound(t *testing.T) {
	// Scenario: 10 chunks 5ms apart over 45ms at a 16ms interval.
	// Mutations must number far fewer than chunks and the final content
	// must be complete.
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	for i := 0; i < 10; i++ {
		u.Append("x")
		clock.Advance(5 * time.Millisecond)
	}
	final := u.Finish()

	if final != "xxxxxxxxxx" {
		t.Errorf("Expected 10 x's, got %q", final)
	}
	m, _ := store.Get(id)
	if m.Content != "xxxxxxxxxx" {
		t.Errorf("Final store content incomplete: %q", m.Content)
	}

	// ceil(45ms/16ms)+2 = 5 is the hard bound on mutations.
	if u.Flushes() > 5 {
		t.Errorf("Expected at most 5 mutations for the burst, got %d", u.Flushes())
	}
}

func TestFinishFlushesExactlyOnce(t *testing.T) {
	store, id, _, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Append("tail")
	final := u.Finish()

	if final != "tail" {
		t.Errorf("Expected final content 'tail', got %q", final)
	}
	m, _ := store.Get(id)
	if m.Content != "tail" {
		t.Errorf("Expected store content 'tail', got %q", m.Content)
	}
	if m.Streaming {
		t.Error("Finish must clear the streaming flag")
	}

	flushes := u.Flushes()
	if again := u.Finish(); again != "tail" {
		t.Errorf("Second Finish returned %q", again)
	}
	if u.Flushes() != flushes {
		t.Error("Second Finish wrote to the store")
	}
}

func TestFinishCancelsPendingTimer(t *testing.T) {
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Append("abc") // schedules a deferred flush
	u.Finish()
	flushes := u.Flushes()

	clock.Advance(50 * time.Millisecond)

	if u.Flushes() != flushes {
		t.Error("Pending timer fired after Finish")
	}
	if m, _ := store.Get(id); m.Content != "abc" {
		t.Errorf("Expected 'abc', got %q", m.Content)
	}
}

func TestAbortKeepsLastFlushedContent(t *testing.T) {
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Append("shown")
	clock.Advance(16 * time.Millisecond) // flushes "shown"
	u.Append(" hidden tail")
	u.Abort()

	m, _ := store.Get(id)
	if m.Content != "shown" {
		t.Errorf("Expected last-flushed content 'shown', got %q", m.Content)
	}
	if m.Streaming {
		t.Error("Abort must clear the streaming flag")
	}

	// The cancelled pending timer must not resurrect the tail.
	clock.Advance(50 * time.Millisecond)
	if m, _ := store.Get(id); m.Content != "shown" {
		t.Errorf("Unflushed tail leaked after Abort: %q", m.Content)
	}
}

func TestAppendAfterCloseDropped(t *testing.T) {
	store, id, clock, u := newThrottleFixture(t, 16*time.Millisecond)

	u.Finish()
	u.Append("late")
	clock.Advance(50 * time.Millisecond)

	if m, _ := store.Get(id); m.Content != "" {
		t.Errorf("Append after Finish reached the store: %q", m.Content)
	}
}

// =============================================================================
// VIRTUAL CLOCK TESTS
// =============================================================================

func TestVirtualClockFiresInDeadlineOrder(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	var order []int

	clock.AfterFunc(30*time.Millisecond, func() { order = append(order, 2) })
	clock.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	clock.AfterFunc(100*time.Millisecond, func() { order = append(order, 3) })

	clock.Advance(50 * time.Millisecond)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("Expected [1 2], got %v", order)
	}

	clock.Advance(50 * time.Millisecond)
	if len(order) != 3 || order[2] != 3 {
		t.Errorf("Expected [1 2 3], got %v", order)
	}
}

func TestVirtualClockStop(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(10*time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop before firing should report true")
	}
	clock.Advance(time.Second)

	if fired {
		t.Error("Stopped timer fired")
	}
	if timer.Stop() {
		t.Error("Second Stop should report false")
	}
}
