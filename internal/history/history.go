// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists conversations locally in SQLite so sessions
// survive restarts. This store is independent of the backend's chat
// persistence: it works for ad-hoc conversations too and is what the
// /save, /load, and /sessions commands operate on.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jeranaias/vizchat-tui/internal/model"
	"github.com/jeranaias/vizchat-tui/internal/util"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// summaryWidth caps the list-view summary derived from the first user
// message.
const summaryWidth = 64

// =============================================================================
// TYPES
// =============================================================================

// Turn is one persisted message.
type Turn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Conversation is a persisted transcript.
type Conversation struct {
	ID          string
	WorkspaceID string
	Summary     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Turns       []Turn
}

// Meta is the listing row for a stored conversation.
type Meta struct {
	ID          string
	WorkspaceID string
	Summary     string
	TurnCount   int
	UpdatedAt   time.Time
}

// FromMessages builds a Conversation from a transcript snapshot.
// System notices are kept; they are part of what the user saw.
func FromMessages(workspaceID string, msgs []model.Message) *Conversation {
	conv := &Conversation{WorkspaceID: workspaceID}
	for _, m := range msgs {
		if m.Streaming {
			continue
		}
		conv.Turns = append(conv.Turns, Turn{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.Timestamp,
		})
		if conv.Summary == "" && m.Role == model.RoleUser {
			conv.Summary = util.TruncateWidth(util.CollapseSpace(m.Content), summaryWidth)
		}
	}
	return conv
}

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed conversation store. Safe for concurrent use;
// database/sql serializes access to the single connection pool.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
	ON conversations(updated_at DESC);
`

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a conversation, replacing any previous version with the
// same id. A blank id gets a fresh UUID. Returns the conversation id.
func (s *Store) Save(conv *Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, conv.ID); err != nil {
		return "", fmt.Errorf("clear previous version: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO conversations (id, workspace_id, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.WorkspaceID, conv.Summary, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	for i, t := range conv.Turns {
		if _, err := tx.Exec(
			`INSERT INTO turns (conversation_id, seq, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			conv.ID, i, t.Role, t.Content, t.CreatedAt,
		); err != nil {
			return "", fmt.Errorf("insert turn %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save: %w", err)
	}
	return conv.ID, nil
}

// Load returns the conversation with the given id.
func (s *Store) Load(id string) (*Conversation, error) {
	conv := &Conversation{ID: id}
	err := s.db.QueryRow(
		`SELECT workspace_id, summary, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&conv.WorkspaceID, &conv.Summary, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		conv.Turns = append(conv.Turns, t)
	}
	return conv, rows.Err()
}

// List returns stored conversations, most recently updated first.
func (s *Store) List() ([]Meta, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.workspace_id, c.summary, c.updated_at,
		        (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id)
		 FROM conversations c ORDER BY c.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.Summary, &m.UpdatedAt, &m.TurnCount); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its turns.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
