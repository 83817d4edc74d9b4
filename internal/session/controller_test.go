// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/generation/gentest"
	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/storage"
	"github.com/jeranaias/mohadith/internal/store"
)

const waitFor = 2 * time.Second

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// eventLog collects notifier events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

type harness struct {
	store   *store.Store
	backend *gentest.Backend
	blobs   *storage.MemoryStore
	events  *eventLog
	ctrl    *Controller
}

func newHarness(t *testing.T, backend *gentest.Backend, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   store.New(),
		backend: backend,
		blobs:   storage.NewMemoryStore(),
		events:  &eventLog{},
	}
	base := []Option{
		WithPersister(&StorePersister{Store: h.store, Blobs: h.blobs}),
		WithNotifier(h.events),
		WithSettings(func() generation.Settings {
			return generation.Settings{APIKey: "k", Model: "m", Streaming: true, SystemPrompt: "default prompt"}
		}),
	}
	h.ctrl = New(h.store, generation.New(backend), append(base, opts...)...)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) wait(t *testing.T, turn *Turn) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	res, err := turn.Wait(ctx)
	require.NoError(t, err)
	return res
}

func (h *harness) messages(t *testing.T) []model.Message {
	t.Helper()
	conv, ok := h.store.Active()
	require.True(t, ok)
	return conv.Messages
}

// =============================================================================
// SEND
// =============================================================================

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Chunks: []string{"Go", "routines ", "are cheap."}})

	turn, err := h.ctrl.Send(context.Background(), "What is a goroutine?")
	require.NoError(t, err)
	res := h.wait(t, turn)

	assert.Equal(t, "Goroutines are cheap.", res.Text)
	assert.False(t, res.Cancelled)
	assert.False(t, res.Failed)

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is a goroutine?", msgs[0].Content)
	assert.Equal(t, turn.UserMessageID, msgs[0].ID)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, turn.AssistantMessageID, msgs[1].ID)
	assert.Equal(t, "Goroutines are cheap.", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)

	assert.Equal(t, Idle, h.ctrl.State(turn.ConversationID))
	assert.GreaterOrEqual(t, h.blobs.Saves(), 1)
	assert.Equal(t, []EventKind{EventStarted, EventPartial, EventPartial, EventPartial, EventCompleted}, h.events.kinds())

	conv, _ := h.store.Active()
	assert.Equal(t, "What is a goroutine?", conv.Title)
}

func TestSendPersistsEncodedState(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Chunks: []string{"ok"}})

	turn, err := h.ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)
	h.wait(t, turn)

	restored, err := LoadStore(context.Background(), h.blobs)
	require.NoError(t, err)
	assert.Equal(t, h.store.ActiveID(), restored.ActiveID())
	conv, _ := restored.Active()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "ok", conv.Messages[1].Content)
}

func TestSendRejectsEmpty(t *testing.T) {
	h := newHarness(t, &gentest.Backend{})
	_, err := h.ctrl.Send(context.Background(), "  \n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.messages(t))
}

func TestSendRejectsWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &gentest.Backend{Chunks: []string{"a"}, Gate: gate})

	turn, err := h.ctrl.Send(context.Background(), "first")
	require.NoError(t, err)
	assert.True(t, h.ctrl.InFlight(turn.ConversationID))
	assert.Equal(t, AwaitingResponse, h.ctrl.State(turn.ConversationID))

	_, err = h.ctrl.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Len(t, h.messages(t), 2, "rejected send must not append")

	gate <- struct{}{}
	h.wait(t, turn)
	assert.False(t, h.ctrl.InFlight(turn.ConversationID))
}

func TestConversationsGenerateIndependently(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &gentest.Backend{Chunks: []string{"x"}, Gate: gate})

	first, err := h.ctrl.Send(context.Background(), "one")
	require.NoError(t, err)

	h.store.CreateConversation("other")
	second, err := h.ctrl.Send(context.Background(), "two")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)

	gate <- struct{}{}
	gate <- struct{}{}
	h.wait(t, first)
	h.wait(t, second)

	conv, _ := h.store.Get(first.ConversationID)
	assert.Equal(t, "x", conv.Messages[1].Content)
	conv, _ = h.store.Get(second.ConversationID)
	assert.Equal(t, "x", conv.Messages[1].Content)
}

func TestTurnKeepsWritingToItsConversationAfterSwitch(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &gentest.Backend{Chunks: []string{"answer"}, Gate: gate})

	turn, err := h.ctrl.Send(context.Background(), "question")
	require.NoError(t, err)
	h.store.CreateConversation("elsewhere")

	gate <- struct{}{}
	h.wait(t, turn)

	conv, _ := h.store.Get(turn.ConversationID)
	assert.Equal(t, "answer", conv.Messages[1].Content)
	assert.Empty(t, h.messages(t))
}

func TestSendUsesConversationSystemPrompt(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "ok"})

	turn, err := h.ctrl.Send(context.Background(), "a")
	require.NoError(t, err)
	h.wait(t, turn)

	require.True(t, h.store.SetSystemPrompt(h.store.ActiveID(), "custom prompt"))
	turn, err = h.ctrl.Send(context.Background(), "b")
	require.NoError(t, err)
	h.wait(t, turn)

	reqs := h.backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "default prompt", reqs[0].SystemPrompt)
	assert.Equal(t, "custom prompt", reqs[1].SystemPrompt)
}

type staticContext string

func (s staticContext) ContextFor(string) string { return string(s) }

func TestSendWithContextProvider(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Chunks: []string{"ok"}}, WithContextProvider(staticContext("note body")))

	turn, err := h.ctrl.Send(context.Background(), "summarize")
	require.NoError(t, err)
	h.wait(t, turn)

	reqs := h.backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, generation.ContextPrompt("note body", "summarize"), reqs[0].Prompt)
	assert.Equal(t, "summarize", h.messages(t)[0].Content, "stored message is the raw text")
}

func TestSendRecoversFromMissingConversation(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "ok"})

	turn, err := h.ctrl.send(context.Background(), "deleted-id", "hello", true)
	require.NoError(t, err)
	h.wait(t, turn)

	assert.Equal(t, h.store.ActiveID(), turn.ConversationID)
	assert.Len(t, h.messages(t), 2)
}

func TestAutoTitleOnlyForDefaultTitle(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "ok"})
	require.True(t, h.store.Rename(h.store.ActiveID(), "Named"))

	turn, err := h.ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)
	h.wait(t, turn)

	conv, _ := h.store.Active()
	assert.Equal(t, "Named", conv.Title)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelFreezesContentAfterNChunks(t *testing.T) {
	gate := make(chan struct{})
	backend := &gentest.Backend{Chunks: []string{"one ", "two ", "three ", "four"}, Gate: gate}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "count")
	require.NoError(t, err)

	gate <- struct{}{}
	gate <- struct{}{}
	require.Eventually(t, func() bool { return backend.Delivered() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, Streaming, h.ctrl.State(turn.ConversationID))

	require.True(t, h.ctrl.Cancel(turn.ConversationID))
	assert.Equal(t, Idle, h.ctrl.State(turn.ConversationID))
	res := h.wait(t, turn)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "one two ", res.Text)

	// The underlying call keeps running; its output is discarded.
	gate <- struct{}{}
	gate <- struct{}{}
	select {
	case <-backend.StreamDone():
	case <-time.After(waitFor):
		t.Fatal("stream did not drain")
	}
	h.ctrl.Close()

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one two ", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)
	assert.Equal(t, 4, backend.Delivered())
	assert.Contains(t, h.events.kinds(), EventCancelled)
	assert.NotEqual(t, EventCompleted, h.events.last().Kind)
}

func TestCancelBeforeAnyChunkRemovesPlaceholder(t *testing.T) {
	gate := make(chan struct{})
	backend := &gentest.Backend{Chunks: []string{"late"}, Gate: gate}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.True(t, h.ctrl.CancelActive())
	assert.False(t, h.ctrl.Cancel(turn.ConversationID), "second cancel is a no-op")

	gate <- struct{}{}
	h.ctrl.Close()

	msgs := h.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestCancelWithoutTurn(t *testing.T) {
	h := newHarness(t, &gentest.Backend{})
	assert.False(t, h.ctrl.CancelActive())
}

func TestSendAfterCancelWhileOldCallRuns(t *testing.T) {
	gate := make(chan struct{})
	backend := &gentest.Backend{Chunks: []string{"x"}, Gate: gate}
	h := newHarness(t, backend)

	first, err := h.ctrl.Send(context.Background(), "first")
	require.NoError(t, err)
	require.True(t, h.ctrl.Cancel(first.ConversationID))

	second, err := h.ctrl.Send(context.Background(), "second")
	require.NoError(t, err)

	gate <- struct{}{}
	gate <- struct{}{}
	h.wait(t, second)
	h.ctrl.Close()

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "x"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

// =============================================================================
// FAILURE AND FALLBACK
// =============================================================================

func TestStreamFailureFallbackYieldsAtomicText(t *testing.T) {
	backend := &gentest.Backend{
		Chunks:    []string{"partial "},
		StreamErr: errors.New("connection reset"),
		Text:      "the complete atomic answer",
	}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)
	res := h.wait(t, turn)

	assert.True(t, res.FellBack)
	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "the complete atomic answer", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)
	assert.False(t, msgs[1].IsError)
	assert.True(t, h.events.last().FellBack)
}

func TestTotalFailureAppendsErrorMessage(t *testing.T) {
	backend := &gentest.Backend{
		OpenErr:     errors.New("stream refused"),
		CompleteErr: errors.New("401 unauthorized"),
	}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)
	res := h.wait(t, turn)
	assert.True(t, res.Failed)

	msgs := h.messages(t)
	require.Len(t, msgs, 2, "empty placeholder is replaced by the error message")
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, ErrorMessageText, msgs[1].Content)
	assert.NotEqual(t, generation.ErrorPlaceholder, msgs[1].Content)

	last := h.events.last()
	assert.Equal(t, EventFailed, last.Kind)
	assert.True(t, generation.IsAuth(last.Err))
	assert.GreaterOrEqual(t, h.blobs.Saves(), 1)
	assert.Equal(t, Idle, h.ctrl.State(turn.ConversationID))
}

func TestFailureAfterPartialKeepsPartialText(t *testing.T) {
	backend := &gentest.Backend{
		Chunks:      []string{"half an "},
		StreamErr:   errors.New("broken pipe"),
		CompleteErr: errors.New("still broken"),
	}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)
	h.wait(t, turn)

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "half an ", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)
	assert.True(t, msgs[2].IsError)
}

// =============================================================================
// REGENERATE
// =============================================================================

func TestRegenerateAfterSystemMessageIsNoOp(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "new"})
	_, err := h.store.Append(model.Message{Role: model.RoleSystem, Content: "setup"}, "")
	require.NoError(t, err)
	answer, err := h.store.Append(model.Message{Role: model.RoleAssistant, Content: "old"}, "")
	require.NoError(t, err)
	before := h.messages(t)

	turn, err := h.ctrl.Regenerate(context.Background(), answer.ID)
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Equal(t, before, h.messages(t))
	_, completes := h.backend.Calls()
	assert.Zero(t, completes)
}

func TestRegenerateNoOpCases(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "new"})
	first, err := h.store.Append(model.Message{Role: model.RoleAssistant, Content: "greeting"}, "")
	require.NoError(t, err)
	user, err := h.store.Append(model.Message{Role: model.RoleUser, Content: "hi"}, "")
	require.NoError(t, err)

	for _, id := range []string{first.ID, user.ID, "missing"} {
		turn, err := h.ctrl.Regenerate(context.Background(), id)
		assert.NoError(t, err)
		assert.Nil(t, turn)
	}
	assert.Len(t, h.messages(t), 2)
}

func TestRegenerateResendsUserMessage(t *testing.T) {
	backend := &gentest.Backend{Chunks: []string{"answer"}}
	h := newHarness(t, backend)

	turn, err := h.ctrl.Send(context.Background(), "question")
	require.NoError(t, err)
	h.wait(t, turn)
	original := h.messages(t)

	again, err := h.ctrl.Regenerate(context.Background(), turn.AssistantMessageID)
	require.NoError(t, err)
	require.NotNil(t, again)
	h.wait(t, again)

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, original[0], msgs[0])
	assert.Equal(t, "question", msgs[1].Content)
	assert.NotEqual(t, original[0].ID, msgs[1].ID)
	assert.Equal(t, "answer", msgs[2].Content)
	assert.Equal(t, -1, (&model.Conversation{Messages: msgs}).FindMessage(turn.AssistantMessageID))
}

func TestRegenerateLast(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Text: "answer"})
	turn, err := h.ctrl.RegenerateLast(context.Background())
	require.NoError(t, err)
	assert.Nil(t, turn)

	first, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)
	h.wait(t, first)

	turn, err = h.ctrl.RegenerateLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, turn)
	h.wait(t, turn)
	assert.Len(t, h.messages(t), 3)
}

func TestRegenerateWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &gentest.Backend{Chunks: []string{"x"}, Gate: gate})
	_, err := h.store.Append(model.Message{Role: model.RoleUser, Content: "q"}, "")
	require.NoError(t, err)
	old, err := h.store.Append(model.Message{Role: model.RoleAssistant, Content: "a"}, "")
	require.NoError(t, err)

	turn, err := h.ctrl.Send(context.Background(), "next")
	require.NoError(t, err)

	_, err = h.ctrl.Regenerate(context.Background(), old.ID)
	assert.ErrorIs(t, err, ErrTurnInFlight)
	_, err = h.ctrl.RegenerateLast(context.Background())
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.GreaterOrEqual(t, (&model.Conversation{Messages: h.messages(t)}).FindMessage(old.ID), 0,
		"refused regenerate must keep the old answer")

	gate <- struct{}{}
	h.wait(t, turn)
}

func TestRegenerateLastAfterFailureWithPartial(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Chunks: []string{"fresh"}})
	user, err := h.store.Append(model.Message{Role: model.RoleUser, Content: "q"}, "")
	require.NoError(t, err)
	partial, err := h.store.Append(model.Message{Role: model.RoleAssistant, Content: "half"}, "")
	require.NoError(t, err)
	notice, err := h.store.Append(model.Message{Role: model.RoleAssistant, Content: ErrorMessageText, IsError: true}, "")
	require.NoError(t, err)

	turn, err := h.ctrl.RegenerateLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, turn)
	h.wait(t, turn)

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, "q", msgs[1].Content)
	assert.Equal(t, "fresh", msgs[2].Content)
	conv := &model.Conversation{Messages: msgs}
	assert.Equal(t, -1, conv.FindMessage(partial.ID))
	assert.Equal(t, -1, conv.FindMessage(notice.ID))
}

func TestRegenerateLastAfterFailureWithoutPartial(t *testing.T) {
	h := newHarness(t, &gentest.Backend{Chunks: []string{"fresh"}})
	_, err := h.store.Append(model.Message{Role: model.RoleUser, Content: "q"}, "")
	require.NoError(t, err)
	_, err = h.store.Append(model.Message{Role: model.RoleAssistant, Content: ErrorMessageText, IsError: true}, "")
	require.NoError(t, err)

	turn, err := h.ctrl.RegenerateLast(context.Background())
	require.NoError(t, err)
	require.NotNil(t, turn)
	h.wait(t, turn)

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.False(t, m.IsError)
	}
	assert.Equal(t, "fresh", msgs[2].Content)
}

// =============================================================================
// MISC
// =============================================================================

func TestTurnStateStrings(t *testing.T) {
	names := []string{}
	for _, s := range []TurnState{Idle, AwaitingResponse, Streaming, Completing, Cancelled} {
		names = append(names, s.String())
	}
	assert.Equal(t, "idle,awaiting response,streaming,completing,cancelled", strings.Join(names, ","))
	assert.Equal(t, "failed", EventFailed.String())
}

func TestWaitHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &gentest.Backend{Chunks: []string{"x"}, Gate: gate})
	turn, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = turn.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	gate <- struct{}{}
	h.wait(t, turn)
}

func TestLoadStoreWithoutSavedState(t *testing.T) {
	s, err := LoadStore(context.Background(), storage.NewMemoryStore(), store.WithMaxHistory(5))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 5, s.MaxHistory())
}
