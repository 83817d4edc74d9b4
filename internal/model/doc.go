// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// The JSON tags on these types are the persisted layout: the codec package
// writes them verbatim and reads back anything that matches.
//
// # Key Types
//
//   - Conversation: titled, ordered message history with timestamps
//   - Message: single message with role, content, timestamp and status flags
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	conv := model.NewConversation("New Conversation", time.Now())
//	msg := model.NewMessage(model.RoleUser, "Hello!", time.Now())
//	conv.Messages = append(conv.Messages, msg)
//
// Conversations are normally created and mutated through the store package,
// which enforces the history cap and timestamp rules.
package model
