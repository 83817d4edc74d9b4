// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds every conversation in memory together with the
// active-conversation pointer.
//
// Conversations live in an arena keyed by ID. A separate index ordered by
// most recent update is rebuilt whenever a mutation changes the ordering, so
// deletion and promotion never chase pointers.
//
// # Invariants
//
//   - The store always holds at least one conversation and the active
//     pointer always names one of them.
//   - Messages keep insertion order; each conversation keeps at most
//     MaxHistory of them, dropping the oldest first.
//   - UpdatedAt never decreases and moves on every mutation.
//   - Unknown conversation or message IDs are silent no-ops reported by a
//     false return, never errors.
//
// # Usage
//
//	s := store.New(store.WithMaxHistory(30))
//	msg, err := s.Append(model.Message{Role: model.RoleUser, Content: "hi"}, "")
//	s.UpdateInPlace(msg.ID, "hi there", false)
//
// All methods are safe for concurrent use. Conversations returned by the
// store are copies.
package store
