// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package codec converts a conversation store to and from the single JSON
// blob kept by a storage backend.
//
// The layout carries no version field:
//
//	{
//	  "conversations": [
//	    {"id": "...", "title": "...", "messages": [...],
//	     "createdAt": 0, "updatedAt": 0, "systemPrompt": "..."}
//	  ],
//	  "activeConversationId": "..."
//	}
//
// Decoding never fails. Input that is not JSON, or whose "conversations"
// member is not a list, yields a store holding one fresh conversation.
// Individual entries that cannot be read are skipped and the rest load.
package codec
