// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream orchestrates one streamed assistant response at a
// time: the throttled write path into the message store, the session
// state machine, and the cancellation protocol.
package stream

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// CLOCK ABSTRACTION
// =============================================================================

// Timer is a cancelable deferred callback handle.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the
	// timer was stopped before firing.
	Stop() bool
}

// Clock supplies time and deferred execution to the throttled updater.
// Production code uses SystemClock; tests use VirtualClock so flush
// timing is deterministic without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// =============================================================================
// SYSTEM CLOCK
// =============================================================================

// SystemClock is the wall-clock implementation backed by package time.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules fn after d on its own goroutine.
func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) Stop() bool {
	return t.t.Stop()
}

// =============================================================================
// VIRTUAL CLOCK
// =============================================================================

// VirtualClock is a manually advanced clock for tests. Time moves only
// through Advance, which fires due timers in deadline order with the
// clock set to each timer's deadline.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*virtualTimer
}

type virtualTimer struct {
	clock   *VirtualClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

// Stop cancels the timer if it has not fired.
func (t *virtualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewVirtualClock returns a virtual clock starting at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers fn to fire when the clock reaches now+d.
func (c *VirtualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &virtualTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing due timers in
// deadline order. Callbacks run with the clock lock released so they
// may call Now or AfterFunc.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		t := c.nextDueLocked(target)
		if t == nil {
			break
		}
		c.now = t.at
		t.fired = true
		fn := t.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// nextDueLocked pops the earliest unstopped timer with deadline at or
// before target, or nil if there is none.
func (c *VirtualClock) nextDueLocked(target time.Time) *virtualTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) > 0 && !c.timers[0].at.After(target) {
		return c.timers[0]
	}
	return nil
}
