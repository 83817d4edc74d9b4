// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/jeranaias/mohadith/internal/util"
)

// DefaultTitle is the title given to conversations nobody has named yet.
const DefaultTitle = "New Conversation"

// DefaultMaxHistory is the default per-conversation message cap.
const DefaultMaxHistory = 30

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered message history and its metadata.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	CreatedAt    int64     `json:"createdAt"`
	UpdatedAt    int64     `json:"updatedAt"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation(title string, now time.Time) *Conversation {
	ms := now.UnixMilli()
	return &Conversation{
		ID:        NewID(),
		Title:     title,
		Messages:  make([]Message, 0),
		CreatedAt: ms,
		UpdatedAt: ms,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// FindMessage returns the index of the message with the given ID, or -1.
func (c *Conversation) FindMessage(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Preview returns the first line of the latest user message, fitted to width
// display columns.
func (c *Conversation) Preview(width int) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != RoleUser {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(c.Messages[i].Content), "\n")
		return util.TruncateWidth(line, width)
	}
	return ""
}

// Updated returns UpdatedAt as a time.Time.
func (c *Conversation) Updated() time.Time {
	return time.UnixMilli(c.UpdatedAt)
}

// =============================================================================
// COPYING
// =============================================================================

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// TitleFrom derives a conversation title from the first line of a message.
func TitleFrom(content string, width int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return DefaultTitle
	}
	return util.TruncateWidth(line, width)
}
