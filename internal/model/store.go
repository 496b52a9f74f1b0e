// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrStreamingConflict is returned when a second streaming message
	// would be created while one is already active.
	ErrStreamingConflict = errors.New("another message is still streaming")
)

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore holds the transcript and owns all mutations to it. The
// stream controller, the throttled updater, and the diagram dispatcher
// never touch Message values directly; they go through the store so the
// single-streaming-message invariant is enforced in one place.
//
// All methods are safe for concurrent use. The change callback, if set,
// fires after every mutation with no locks held.
type MessageStore struct {
	mu       sync.Mutex
	messages []Message
	nextID   int64
	onChange func()
}

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{nextID: 1}
}

// SetOnChange registers a callback invoked after every mutation. The UI
// uses this to schedule a re-render; the callback must not call back
// into the store synchronously in a way that blocks.
func (s *MessageStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *MessageStore) notifyLocked() func() {
	return s.onChange
}

// Append adds a finalized message and returns its id.
func (s *MessageStore) Append(role Role, content string) int64 {
	id, _ := s.append(role, content, false)
	return id
}

// AppendStreaming adds an empty assistant message marked as streaming
// and returns its id. It fails if another message is still streaming.
func (s *MessageStore) AppendStreaming() (int64, error) {
	return s.append(RoleAssistant, "", true)
}

// AppendNotice adds a system notice message and returns its id.
func (s *MessageStore) AppendNotice(content string) int64 {
	id, _ := s.append(RoleSystem, content, false)
	return id
}

func (s *MessageStore) append(role Role, content string, streaming bool) (int64, error) {
	s.mu.Lock()
	if streaming {
		for i := range s.messages {
			if s.messages[i].Streaming {
				s.mu.Unlock()
				return 0, ErrStreamingConflict
			}
		}
	}
	id := s.nextID
	s.nextID++
	s.messages = append(s.messages, Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Streaming: streaming,
	})
	notify := s.notifyLocked()
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return id, nil
}

// UpdateContentByID overwrites the content of a message, preserving its
// streaming flag. This is the throttled updater's flush path.
func (s *MessageStore) UpdateContentByID(id int64, content string) error {
	return s.mutate(id, func(m *Message) {
		m.Content = content
	})
}

// ReplaceByID overwrites the content of a message and clears its
// streaming flag. Used for the final flush, for error text, and for
// diagram placeholder resolution.
func (s *MessageStore) ReplaceByID(id int64, content string) error {
	return s.mutate(id, func(m *Message) {
		m.Content = content
		m.Streaming = false
	})
}

// FinalizeByID clears the streaming flag without touching content. The
// cancellation path uses this: whatever was last flushed stays, the
// unflushed tail is discarded.
func (s *MessageStore) FinalizeByID(id int64) error {
	return s.mutate(id, func(m *Message) {
		m.Streaming = false
	})
}

func (s *MessageStore) mutate(id int64, fn func(*Message)) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: id %d", ErrMessageNotFound, id)
	}
	fn(&s.messages[idx])
	notify := s.notifyLocked()
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

func (s *MessageStore) indexLocked(id int64) int {
	// IDs are monotonically increasing, so a backwards scan finds the
	// streaming tail message on the first probe in the common case.
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// READS
// =============================================================================

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id int64) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.messages[idx], true
	}
	return Message{}, false
}

// Len returns the number of messages in the store.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Snapshot returns a copy of the transcript in insertion order.
func (s *MessageStore) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RecentUserMessages returns up to n of the most recent user messages,
// most recent first. The diagram intent predicate looks at these.
func (s *MessageStore) RecentUserMessages(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < n; i-- {
		if s.messages[i].Role == RoleUser {
			out = append(out, s.messages[i])
		}
	}
	return out
}

// HistoryTurns returns up to limit of the most recent finalized
// user/assistant turns, oldest first, for the backend's
// conversation_history field. System notices and any message still
// streaming are excluded.
func (s *MessageStore) HistoryTurns(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var turns []Message
	for i := range s.messages {
		m := s.messages[i]
		if m.Role == RoleSystem || m.Streaming {
			continue
		}
		turns = append(turns, m)
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
