// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codec

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/store"
)

func populated(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	first := s.ActiveID()
	_, err := s.Append(model.Message{Role: model.RoleUser, Content: "hello"}, "")
	require.NoError(t, err)
	_, err = s.Append(model.Message{Role: model.RoleAssistant, Content: "oops", IsError: true}, "")
	require.NoError(t, err)
	require.True(t, s.SetSystemPrompt(first, "be terse"))

	second := s.CreateConversation("Second")
	_, err = s.Append(model.Message{Role: model.RoleAssistant, Content: "half", IsStreaming: true}, second)
	require.NoError(t, err)

	require.True(t, s.SetActive(first))
	return s
}

func byID(convs []*model.Conversation) []*model.Conversation {
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	return convs
}

func TestEncodeLayout(t *testing.T) {
	s := populated(t)
	blob, err := Encode(s)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(blob), &raw))
	assert.Contains(t, raw, "conversations")
	assert.Contains(t, raw, "activeConversationId")
	assert.Len(t, raw, 2, "no version or extra fields")

	assert.Contains(t, blob, `"systemPrompt":"be terse"`)
	assert.Contains(t, blob, `"isError":true`)
	assert.Contains(t, blob, `"isStreaming":true`)
	assert.Contains(t, blob, `"createdAt"`)
}

func TestRoundTrip(t *testing.T) {
	s := populated(t)
	blob, err := Encode(s)
	require.NoError(t, err)

	restored := Decode(blob)
	assert.Equal(t, s.ActiveID(), restored.ActiveID())
	assert.Equal(t, byID(s.ListAll()), byID(restored.ListAll()))
}

func TestDecodeEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   \n"} {
		s := Decode(in)
		assert.Equal(t, 1, s.Len())
		_, ok := s.Active()
		assert.True(t, ok)
	}
}

func TestDecodeMalformedNeverFails(t *testing.T) {
	inputs := []string{
		"{",
		"null",
		"42",
		`"just a string"`,
		`[]`,
		`{}`,
		`{"conversations": "nope"}`,
		`{"conversations": {"id": "x"}}`,
		`{"conversations": null, "activeConversationId": "x"}`,
		"\x00\xff garbage",
		`{"conversations": [1, "two", null, {"title": "no id"}], "activeConversationId": 7}`,
		`{"conversations": [{"id": "a", "messages": "broken"}], "activeConversationId": "a"}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			var s *store.Store
			require.NotPanics(t, func() { s = Decode(in) })
			require.GreaterOrEqual(t, s.Len(), 1)
			conv, ok := s.Active()
			require.True(t, ok)
			assert.Equal(t, s.ActiveID(), conv.ID)
		})
	}
}

func TestDecodeIntoReportsError(t *testing.T) {
	s := store.New()
	err := DecodeInto(s, `{"conversations": 3}`)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, s.Len())
}

func TestDecodeSkipsBadEntries(t *testing.T) {
	blob := `{
		"conversations": [
			{"id": "good", "title": "Good", "messages": [
				{"id": "m1", "content": "hi", "role": "user", "timestamp": 1}
			], "createdAt": 1, "updatedAt": 2},
			{"title": "missing id"},
			"not an object",
			{"id": "bad", "messages": [{"id": 5}]}
		],
		"activeConversationId": "good"
	}`

	parsed, err := Parse(blob)
	require.NoError(t, err)
	assert.Len(t, parsed.Snapshot.Conversations, 1)
	assert.Len(t, parsed.Skipped, 3)

	s := Decode(blob)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "good", s.ActiveID())
	conv, _ := s.Active()
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hi", conv.Messages[0].Content)
}

func TestDecodeDanglingActive(t *testing.T) {
	blob := `{"conversations":[{"id":"a","title":"A","messages":[],"createdAt":1,"updatedAt":1}],"activeConversationId":"zzz"}`
	s := Decode(blob)

	assert.Equal(t, 2, s.Len())
	assert.NotEqual(t, "a", s.ActiveID())
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestDecodeNullActive(t *testing.T) {
	blob := `{"conversations":[{"id":"a","title":"","messages":null,"createdAt":1,"updatedAt":1}],"activeConversationId":null}`
	parsed, err := Parse(blob)
	require.NoError(t, err)
	assert.Empty(t, parsed.Snapshot.ActiveID)
	assert.Equal(t, model.DefaultTitle, parsed.Snapshot.Conversations[0].Title)
}

func TestDecodeAppliesHistoryCap(t *testing.T) {
	s := store.New()
	for i := 0; i < 10; i++ {
		_, err := s.Append(model.Message{Role: model.RoleUser, Content: "x"}, "")
		require.NoError(t, err)
	}
	blob, err := Encode(s)
	require.NoError(t, err)

	restored := Decode(blob, store.WithMaxHistory(4))
	conv, _ := restored.Active()
	assert.Len(t, conv.Messages, 4)
}
