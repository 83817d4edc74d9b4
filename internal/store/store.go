// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds every conversation in memory together with the
// active-conversation pointer.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/model"
)

// ErrNoActiveConversation is returned by Append when the target conversation
// cannot be resolved.
var ErrNoActiveConversation = errors.New("no active conversation")

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Store.
type Option func(*Store)

// WithMaxHistory sets the per-conversation message cap. Values below 1 keep
// the default.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory conversation arena.
type Store struct {
	mu sync.Mutex

	conversations map[string]*model.Conversation
	index         []string // conversation IDs, most recently updated first
	indexDirty    bool
	activeID      string

	maxHistory int
	now        func() time.Time
}

// Snapshot is the raw state exchanged with the persistence codec.
type Snapshot struct {
	Conversations []*model.Conversation
	ActiveID      string
}

// New creates a store holding one empty, active conversation.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*model.Conversation),
		maxHistory:    model.DefaultMaxHistory,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.synthesizeLocked()
	return s
}

// MaxHistory returns the per-conversation message cap.
func (s *Store) MaxHistory() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxHistory
}

// SetMaxHistory changes the message cap and trims every conversation to it.
func (s *Store) SetMaxHistory(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHistory = n
	for _, conv := range s.conversations {
		if s.truncateLocked(conv) {
			s.touchLocked(conv)
		}
	}
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// CreateConversation allocates an empty conversation, makes it active and
// returns its ID.
func (s *Store) CreateConversation(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(title)
}

// Active returns a copy of the active conversation.
func (s *Store) Active() (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[s.activeID]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// ActiveID returns the ID of the active conversation.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// EnsureActive synthesizes a conversation when the active pointer does not
// resolve and returns the active ID.
func (s *Store) EnsureActive() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[s.activeID]; !ok {
		s.synthesizeLocked()
	}
	return s.activeID
}

// Get returns a copy of the conversation with the given ID.
func (s *Store) Get(id string) (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// SetActive switches the active pointer. Unknown IDs leave it unchanged and
// return false.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	s.activeID = id
	return true
}

// ListAll returns copies of every conversation, most recently updated first.
func (s *Store) ListAll() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.orderedLocked()
	out := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.conversations[id].Clone())
	}
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Delete removes a conversation. Deleting the active one promotes the most
// recently updated survivor, or a fresh conversation when none remain.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false
	}
	delete(s.conversations, id)
	s.indexDirty = true

	if id != s.activeID {
		return true
	}
	if ids := s.orderedLocked(); len(ids) > 0 {
		s.activeID = ids[0]
	} else {
		s.synthesizeLocked()
	}
	return true
}

// Rename changes a conversation's title.
func (s *Store) Rename(id, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return false
	}
	conv.Title = title
	s.touchLocked(conv)
	return true
}

// SetSystemPrompt sets the per-conversation system prompt. An empty prompt
// falls back to the configured default.
func (s *Store) SetSystemPrompt(id, prompt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return false
	}
	conv.SystemPrompt = prompt
	s.touchLocked(conv)
	return true
}

// Clear empties a conversation's messages. An empty ID means the active
// conversation.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.resolveLocked(id)
	if !ok {
		return false
	}
	conv.Messages = make([]model.Message, 0)
	s.touchLocked(conv)
	return true
}

// =============================================================================
// MESSAGES
// =============================================================================

// Append stores msg at the tail of the target conversation (the active one
// when targetID is empty). The message always receives a fresh ID; a zero
// timestamp is stamped with the current time. The stored message is returned
// so callers can address it later.
func (s *Store) Append(msg model.Message, targetID string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.resolveLocked(targetID)
	if !ok {
		return model.Message{}, ErrNoActiveConversation
	}

	msg.ID = model.NewID()
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	conv.Messages = append(conv.Messages, msg)
	s.truncateLocked(conv)
	s.touchLocked(conv)
	return msg, nil
}

// UpdateInPlace rewrites a message in the active conversation. Messages that
// no longer exist (deleted or truncated away) are ignored.
func (s *Store) UpdateInPlace(messageID, content string, streaming bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(s.activeID, messageID, content, streaming)
}

// UpdateInConversation rewrites a message in the named conversation.
func (s *Store) UpdateInConversation(convID, messageID, content string, streaming bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(convID, messageID, content, streaming)
}

// RemoveMessage deletes a single message from a conversation.
func (s *Store) RemoveMessage(convID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[convID]
	if !ok {
		return false
	}
	i := conv.FindMessage(messageID)
	if i < 0 {
		return false
	}
	conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
	s.touchLocked(conv)
	return true
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot returns a copy of the full state, conversations ordered most
// recently updated first.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.orderedLocked()
	snap := Snapshot{
		Conversations: make([]*model.Conversation, 0, len(ids)),
		ActiveID:      s.activeID,
	}
	for _, id := range ids {
		snap.Conversations = append(snap.Conversations, s.conversations[id].Clone())
	}
	return snap
}

// Restore replaces the store contents with snap. Conversations without an ID
// or with a duplicate ID are dropped, message lists are trimmed to the cap,
// and a fresh conversation is synthesized when nothing usable remains or the
// active ID does not resolve.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*model.Conversation, len(snap.Conversations))
	s.indexDirty = true
	for _, in := range snap.Conversations {
		if in == nil || in.ID == "" {
			continue
		}
		if _, dup := s.conversations[in.ID]; dup {
			continue
		}
		conv := in.Clone()
		if conv.Messages == nil {
			conv.Messages = make([]model.Message, 0)
		}
		if conv.UpdatedAt < conv.CreatedAt {
			conv.UpdatedAt = conv.CreatedAt
		}
		s.truncateLocked(conv)
		s.conversations[conv.ID] = conv
	}

	s.activeID = snap.ActiveID
	if _, ok := s.conversations[s.activeID]; !ok {
		s.synthesizeLocked()
	}
}

// =============================================================================
// INTERNAL HELPERS (caller holds s.mu)
// =============================================================================

func (s *Store) createLocked(title string) string {
	conv := model.NewConversation(title, s.now())
	s.conversations[conv.ID] = conv
	s.activeID = conv.ID
	s.indexDirty = true
	return conv.ID
}

func (s *Store) synthesizeLocked() {
	s.createLocked(model.DefaultTitle)
}

func (s *Store) resolveLocked(id string) (*model.Conversation, bool) {
	if id == "" {
		id = s.activeID
	}
	conv, ok := s.conversations[id]
	return conv, ok
}

func (s *Store) updateLocked(convID, messageID, content string, streaming bool) bool {
	conv, ok := s.conversations[convID]
	if !ok {
		return false
	}
	i := conv.FindMessage(messageID)
	if i < 0 {
		return false
	}
	conv.Messages[i].Content = content
	conv.Messages[i].IsStreaming = streaming
	s.touchLocked(conv)
	return true
}

// truncateLocked drops the oldest messages beyond the cap. It reports whether
// anything was dropped.
func (s *Store) truncateLocked(conv *model.Conversation) bool {
	excess := len(conv.Messages) - s.maxHistory
	if excess <= 0 {
		return false
	}
	kept := make([]model.Message, s.maxHistory)
	copy(kept, conv.Messages[excess:])
	conv.Messages = kept
	return true
}

// touchLocked bumps UpdatedAt, never moving it backwards even if the clock
// does.
func (s *Store) touchLocked(conv *model.Conversation) {
	ts := s.now().UnixMilli()
	if ts < conv.UpdatedAt {
		ts = conv.UpdatedAt
	}
	conv.UpdatedAt = ts
	s.indexDirty = true
}

func (s *Store) orderedLocked() []string {
	if !s.indexDirty && len(s.index) == len(s.conversations) {
		return s.index
	}
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.conversations[ids[i]], s.conversations[ids[j]]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID < b.ID
	})
	s.index = ids
	s.indexDirty = false
	return ids
}
