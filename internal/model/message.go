// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation.
// Only Content and IsStreaming change after creation.
type Message struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Role        Role   `json:"role"`
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
	IsError     bool   `json:"isError,omitempty"`
	IsStreaming bool   `json:"isStreaming,omitempty"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		Role:      role,
		Timestamp: now.UnixMilli(),
	}
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant reports whether the message was written by the assistant.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// NewID returns a new opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}
