// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vizchat-tui/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	conv := &Conversation{
		WorkspaceID: "ws-1",
		Summary:     "what does the parser do",
		Turns: []Turn{
			{Role: "user", Content: "what does the parser do?", CreatedAt: time.Now()},
			{Role: "assistant", Content: "It parses.", CreatedAt: time.Now()},
			{Role: "system", Content: "Response stopped.", CreatedAt: time.Now()},
		},
	}

	id, err := s.Save(conv)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", loaded.WorkspaceID)
	assert.Equal(t, "what does the parser do", loaded.Summary)
	require.Len(t, loaded.Turns, 3)
	assert.Equal(t, "user", loaded.Turns[0].Role)
	assert.Equal(t, "It parses.", loaded.Turns[1].Content)
	assert.Equal(t, "system", loaded.Turns[2].Role)
}

func TestSaveReplacesExisting(t *testing.T) {
	s := openTestStore(t)

	conv := &Conversation{Turns: []Turn{{Role: "user", Content: "v1", CreatedAt: time.Now()}}}
	id, err := s.Save(conv)
	require.NoError(t, err)

	conv.Turns = append(conv.Turns, Turn{Role: "assistant", Content: "v2", CreatedAt: time.Now()})
	id2, err := s.Save(conv)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	loaded, err := s.Load(id)
	require.NoError(t, err)
	assert.Len(t, loaded.Turns, 2)

	metas, err := s.List()
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListOrdersByRecency(t *testing.T) {
	s := openTestStore(t)

	older := &Conversation{
		Summary:   "older",
		CreatedAt: time.Now().Add(-time.Hour),
		Turns:     []Turn{{Role: "user", Content: "old", CreatedAt: time.Now()}},
	}
	_, err := s.Save(older)
	require.NoError(t, err)

	// Force distinct updated_at values.
	time.Sleep(10 * time.Millisecond)

	newer := &Conversation{
		Summary: "newer",
		Turns:   []Turn{{Role: "user", Content: "new", CreatedAt: time.Now()}},
	}
	_, err = s.Save(newer)
	require.NoError(t, err)

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "newer", metas[0].Summary)
	assert.Equal(t, 1, metas[0].TurnCount)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Save(&Conversation{Turns: []Turn{{Role: "user", Content: "x", CreatedAt: time.Now()}}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	_, err = s.Load(id)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.True(t, errors.Is(s.Delete(id), ErrNotFound))
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestFromMessages(t *testing.T) {
	store := model.NewMessageStore()
	store.Append(model.RoleUser, "explain   the\nrouter in detail")
	store.Append(model.RoleAssistant, "It routes.")
	store.AppendStreaming() // in-flight placeholder must be skipped

	conv := FromMessages("ws-2", store.Snapshot())

	assert.Equal(t, "ws-2", conv.WorkspaceID)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "explain the router in detail", conv.Summary)
}
