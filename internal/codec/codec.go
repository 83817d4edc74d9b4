// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package codec converts a conversation store to and from the single JSON
// blob kept by a storage backend.
package codec

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/store"
)

// ErrDecode marks stored state that could not be read.
var ErrDecode = errors.New("persisted state is malformed")

// document is the serialized layout.
type document struct {
	Conversations        []*model.Conversation `json:"conversations"`
	ActiveConversationID *string               `json:"activeConversationId"`
}

// Parsed is the outcome of reading a blob.
type Parsed struct {
	Snapshot store.Snapshot
	// Skipped describes each conversation entry that was dropped.
	Skipped []string
}

// =============================================================================
// ENCODE
// =============================================================================

// Encode serializes the store.
func Encode(s *store.Store) (string, error) {
	snap := s.Snapshot()
	doc := document{Conversations: snap.Conversations}
	if snap.ActiveID != "" {
		doc.ActiveConversationID = &snap.ActiveID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "encode conversations")
	}
	return string(data), nil
}

// =============================================================================
// DECODE
// =============================================================================

// Decode builds a store from a blob. It never fails: malformed input is
// logged and replaced by a store holding one empty conversation.
func Decode(data string, opts ...store.Option) *store.Store {
	s := store.New(opts...)
	DecodeInto(s, data)
	return s
}

// DecodeInto replaces the contents of s with the state in data, with the same
// fallback rules as Decode. It returns the decode error, if any, for callers
// that want to report it; the store is usable either way.
func DecodeInto(s *store.Store, data string) error {
	if strings.TrimSpace(data) == "" {
		s.Restore(store.Snapshot{})
		return nil
	}

	parsed, err := Parse(data)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(data)).Msg("discarding unreadable conversation state")
		s.Restore(store.Snapshot{})
		return err
	}
	for _, reason := range parsed.Skipped {
		log.Warn().Str("reason", reason).Msg("skipping stored conversation")
	}
	s.Restore(parsed.Snapshot)
	if parsed.Snapshot.ActiveID != "" && s.ActiveID() != parsed.Snapshot.ActiveID {
		log.Warn().Str("active", parsed.Snapshot.ActiveID).Msg("stored active conversation not found, starting a new one")
	}
	return nil
}

// Parse reads a blob without building a store. The error wraps ErrDecode when
// the document as a whole is unusable.
func Parse(data string) (Parsed, error) {
	var out Parsed
	if !gjson.Valid(data) {
		return out, errors.Wrap(ErrDecode, "not valid JSON")
	}
	root := gjson.Parse(data)
	if !root.IsObject() {
		return out, errors.Wrapf(ErrDecode, "top level is %s, want object", root.Type)
	}
	convs := root.Get("conversations")
	if !convs.IsArray() {
		return out, errors.Wrap(ErrDecode, "conversations is not a list")
	}

	i := 0
	convs.ForEach(func(_, entry gjson.Result) bool {
		defer func() { i++ }()
		if !entry.IsObject() {
			out.Skipped = append(out.Skipped, errors.Errorf("entry %d is not an object", i).Error())
			return true
		}
		if entry.Get("id").String() == "" {
			out.Skipped = append(out.Skipped, errors.Errorf("entry %d has no id", i).Error())
			return true
		}
		var conv model.Conversation
		if err := json.Unmarshal([]byte(entry.Raw), &conv); err != nil {
			out.Skipped = append(out.Skipped, errors.Wrapf(err, "entry %d", i).Error())
			return true
		}
		if conv.Title == "" {
			conv.Title = model.DefaultTitle
		}
		out.Snapshot.Conversations = append(out.Snapshot.Conversations, &conv)
		return true
	})

	if active := root.Get("activeConversationId"); active.Type == gjson.String {
		out.Snapshot.ActiveID = active.String()
	}
	return out, nil
}
