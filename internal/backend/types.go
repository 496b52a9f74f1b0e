// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the HTTP client for the vizchat assistant
// backend: the streamed query endpoint, the diagram generation endpoint,
// and the fire-and-forget chat persistence endpoint.
package backend

import "encoding/json"

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// HistoryTurn is one prior exchange entry sent with a query so the
// backend can answer with conversational context.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query               string       `json:"query"`
	ConversationHistory []HistoryTurn `json:"conversation_history"`

	// WorkspaceID is null for ad-hoc conversations. Only workspace-scoped
	// conversations are persisted server-side.
	WorkspaceID *string `json:"workspace_id"`

	SelectedFileIDs []string `json:"selected_file_ids,omitempty"`
}

// QueryResponse is the non-streaming fallback body of POST /api/query,
// returned when the backend does not stream.
type QueryResponse struct {
	Response string `json:"response"`
}

// DiagramRequest is the body of POST /api/diagram.
type DiagramRequest struct {
	Query       string `json:"query"`
	DiagramType string `json:"diagram_type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// DiagramResponse is the body returned by POST /api/diagram. Diagram is
// left raw because backends return either a bare string of Mermaid
// source or a structured object; extraction happens downstream.
type DiagramResponse struct {
	Success     bool            `json:"success"`
	Diagram     json.RawMessage `json:"diagram,omitempty"`
	DiagramType string          `json:"diagram_type,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// SaveTurnRequest is the body of POST /api/chat/save.
type SaveTurnRequest struct {
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
	Message     string `json:"message"`
}

// errorBody is the JSON error envelope backends attach to non-2xx
// responses. Hint, when present, is surfaced to the user alongside the
// error message.
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}
