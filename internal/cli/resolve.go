// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// resolve.go - Conversation lookup by id, id prefix or list position.

package cli

import (
	"strconv"
	"strings"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/store"
)

// minPrefix is the shortest id prefix accepted as a reference.
const minPrefix = 4

// resolveConversation finds a conversation by full id, unique id prefix, or
// 1-based position in the list order.
func resolveConversation(st *store.Store, ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrUsage("a conversation id or number is required", "mohadith show 2")
	}
	if conv, ok := st.Get(ref); ok {
		return conv, nil
	}

	all := st.ListAll()
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(all) {
			return all[n-1], nil
		}
		return nil, ErrNotFound("conversation", ref)
	}

	if len(ref) >= minPrefix {
		var match *model.Conversation
		for _, c := range all {
			if strings.HasPrefix(c.ID, ref) {
				if match != nil {
					return nil, ErrUsage("id prefix "+ref+" matches more than one conversation", "")
				}
				match = c
			}
		}
		if match != nil {
			return match, nil
		}
	}
	return nil, ErrNotFound("conversation", ref)
}

// shortID abbreviates an id for listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
