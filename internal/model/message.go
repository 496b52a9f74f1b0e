// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the conversation data model shared by the UI,
// the stream controller, and the persistence layers.
package model

import "time"

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"

	// RoleAssistant is a response from the assistant backend.
	RoleAssistant Role = "assistant"

	// RoleSystem is a client-generated notice, e.g. "Response stopped."
	// System messages are rendered but never sent to the backend.
	RoleSystem Role = "system"
)

// DisplayName returns the label shown in the transcript for this role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single entry in the transcript. IDs are assigned by the
// store and are monotonically increasing within a session; they are the
// stable handle the throttled updater and the diagram dispatcher use to
// address a message while it is still being written.
type Message struct {
	ID        int64
	Role      Role
	Content   string
	Timestamp time.Time

	// Streaming marks an assistant message whose content is still being
	// filled in by an active stream. At most one message in a store has
	// Streaming set at any time.
	Streaming bool
}

// IsNotice reports whether the message is a client-generated system
// notice rather than part of the user/assistant exchange.
func (m Message) IsNotice() bool {
	return m.Role == RoleSystem
}
