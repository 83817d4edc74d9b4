// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs conversation turns against a store and a generation
// client.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/store"
)

// ErrorMessageText is the content of the inline message shown when a turn
// fails.
const ErrorMessageText = "Sorry, I encountered an error while generating a response. Please try again."

// titleWidth is the display width of titles derived from a first message.
const titleWidth = 40

// persistTimeout bounds a single save.
const persistTimeout = 10 * time.Second

var (
	// ErrTurnInFlight is returned when the conversation is already waiting
	// for a response.
	ErrTurnInFlight = errors.New("a response is already being generated for this conversation")

	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithPersister sets where state is saved after each turn.
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithSettings sets the source of generation settings. It is read at the
// start of every turn, so reloaded configuration applies to the next one.
func WithSettings(fn func() generation.Settings) Option {
	return func(c *Controller) {
		if fn != nil {
			c.settings = fn
		}
	}
}

// WithContextProvider enables context-aware generation.
func WithContextProvider(p ContextProvider) Option {
	return func(c *Controller) { c.contexts = p }
}

// WithNotifier sets the receiver of turn events.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithAutoTitle controls whether a conversation still carrying the default
// title is renamed after its first message. Enabled by default.
func WithAutoTitle(enabled bool) Option {
	return func(c *Controller) { c.autoTitle = enabled }
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller coordinates turns for every conversation in a store.
type Controller struct {
	store     *store.Store
	client    *generation.Client
	settings  func() generation.Settings
	persister Persister
	contexts  ContextProvider
	notifier  Notifier
	autoTitle bool

	mu    sync.Mutex
	turns map[string]*Turn // in-flight turn per conversation ID

	wg sync.WaitGroup
}

// New creates a controller.
func New(st *store.Store, client *generation.Client, opts ...Option) *Controller {
	c := &Controller{
		store:     st,
		client:    client,
		settings:  func() generation.Settings { return generation.Settings{Streaming: true} },
		autoTitle: true,
		turns:     make(map[string]*Turn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the controller's store.
func (c *Controller) Store() *store.Store {
	return c.store
}

// State returns the turn state of a conversation.
func (c *Controller) State(convID string) TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn, ok := c.turns[convID]; ok {
		return turn.state
	}
	return Idle
}

// InFlight reports whether a conversation is waiting for a response.
func (c *Controller) InFlight(convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.turns[convID]
	return ok
}

// Close waits for every background generation to finish, including those
// whose turns were cancelled.
func (c *Controller) Close() {
	c.wg.Wait()
}

// =============================================================================
// SEND
// =============================================================================

// Send posts text to the active conversation and starts generating a reply.
// The returned turn ends when the reply completes, fails, or is cancelled.
func (c *Controller) Send(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return c.send(ctx, c.store.ActiveID(), text, true)
}

// send starts a turn on convID. Messages named in replace are removed once
// the turn gate is held, so a refused turn leaves the conversation untouched.
func (c *Controller) send(ctx context.Context, convID, text string, retry bool, replace ...string) (*Turn, error) {
	turn := newTurn(convID, text)
	c.mu.Lock()
	if _, busy := c.turns[convID]; busy {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	for _, id := range replace {
		c.store.RemoveMessage(convID, id)
	}
	userMsg, err := c.store.Append(model.Message{Role: model.RoleUser, Content: text}, convID)
	if err == nil {
		var placeholder model.Message
		placeholder, err = c.store.Append(model.Message{Role: model.RoleAssistant, IsStreaming: true}, convID)
		turn.UserMessageID = userMsg.ID
		turn.AssistantMessageID = placeholder.ID
	}
	if err == nil {
		c.turns[convID] = turn
	}
	c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, store.ErrNoActiveConversation) || !retry {
			return nil, errors.Wrap(err, "append message")
		}
		// The conversation vanished between resolving and appending.
		log.Error().Err(err).Str("conversation", convID).Msg("conversation missing, starting a new one")
		return c.send(ctx, c.store.EnsureActive(), text, false)
	}

	conv, _ := c.store.Get(convID)
	c.maybeTitle(conv, text)

	settings := c.settings()
	if conv != nil && conv.SystemPrompt != "" {
		settings.SystemPrompt = conv.SystemPrompt
	}
	var contextText string
	if c.contexts != nil {
		contextText = c.contexts.ContextFor(convID)
	}

	log.Debug().Str("conversation", convID).Str("message", turn.AssistantMessageID).
		Bool("streaming", settings.Streaming).Bool("context", contextText != "").Msg("turn started")
	c.notify(Event{Kind: EventStarted, ConversationID: convID, MessageID: turn.AssistantMessageID})

	c.wg.Add(1)
	go c.run(ctx, turn, settings, text, contextText)
	return turn, nil
}

func (c *Controller) run(ctx context.Context, turn *Turn, settings generation.Settings, prompt, contextText string) {
	defer c.wg.Done()
	resp := c.client.GenerateWithContext(ctx, settings, prompt, contextText, &turnSink{c: c, turn: turn})
	c.finish(turn, resp)
}

// maybeTitle renames a default-titled conversation after its first user
// message.
func (c *Controller) maybeTitle(conv *model.Conversation, text string) {
	if !c.autoTitle || conv == nil || conv.Title != model.DefaultTitle {
		return
	}
	users := 0
	for _, m := range conv.Messages {
		if m.Role == model.RoleUser {
			users++
		}
	}
	if users == 1 {
		c.store.Rename(conv.ID, model.TitleFrom(text, titleWidth))
	}
}

// =============================================================================
// STREAM UPDATES
// =============================================================================

// turnSink applies generation progress to the store.
type turnSink struct {
	c    *Controller
	turn *Turn
}

func (s *turnSink) Start() {}

func (s *turnSink) Complete() {}

func (s *turnSink) Error(err error) {
	log.Debug().Err(err).Str("conversation", s.turn.ConversationID).Msg("generation attempt failed")
}

func (s *turnSink) Partial(text string) {
	if !s.c.applyPartial(s.turn, text) {
		return
	}
	s.c.notify(Event{
		Kind:           EventPartial,
		ConversationID: s.turn.ConversationID,
		MessageID:      s.turn.AssistantMessageID,
		Text:           text,
	})
}

// applyPartial writes streamed text unless the turn was cancelled. The check
// and the write happen under one lock so nothing lands after a cancel.
func (c *Controller) applyPartial(turn *Turn, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn.cancelled {
		return false
	}
	turn.state = Streaming
	turn.applied = text
	c.store.UpdateInConversation(turn.ConversationID, turn.AssistantMessageID, text, true)
	return true
}

// =============================================================================
// COMPLETION
// =============================================================================

func (c *Controller) finish(turn *Turn, resp generation.Response) {
	c.mu.Lock()
	if turn.cancelled {
		c.mu.Unlock()
		log.Debug().Str("conversation", turn.ConversationID).Bool("failed", resp.Failed).
			Msg("discarding result of cancelled turn")
		return
	}
	turn.state = Completing
	convID, msgID := turn.ConversationID, turn.AssistantMessageID

	var (
		event  Event
		result Result
	)
	if resp.Failed {
		c.finalizePlaceholderLocked(turn)
		if _, err := c.store.Append(model.Message{Role: model.RoleAssistant, Content: ErrorMessageText, IsError: true}, convID); err != nil {
			log.Error().Err(err).Str("conversation", convID).Msg("could not record generation failure")
		}
		result = Result{Text: turn.applied, Failed: true}
		event = Event{Kind: EventFailed, ConversationID: convID, MessageID: msgID, Text: ErrorMessageText, Err: resp.Err}
	} else {
		c.store.UpdateInConversation(convID, msgID, resp.Text, false)
		result = Result{Text: resp.Text, FellBack: resp.FellBack}
		event = Event{Kind: EventCompleted, ConversationID: convID, MessageID: msgID, Text: resp.Text, FellBack: resp.FellBack}
	}
	turn.state = Idle
	delete(c.turns, convID)
	c.mu.Unlock()

	if resp.Failed {
		log.Warn().Err(resp.Err).Str("conversation", convID).Msg("generation failed")
	} else if resp.FellBack {
		log.Info().Str("conversation", convID).Msg("response delivered by non-streaming fallback")
	}
	c.persist()
	c.notify(event)
	turn.end(result)
}

// finalizePlaceholderLocked stops the placeholder from streaming. A
// placeholder that never received text is removed.
func (c *Controller) finalizePlaceholderLocked(turn *Turn) {
	if turn.applied == "" {
		c.store.RemoveMessage(turn.ConversationID, turn.AssistantMessageID)
		return
	}
	c.store.UpdateInConversation(turn.ConversationID, turn.AssistantMessageID, turn.applied, false)
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel stops applying updates for the conversation's in-flight turn and
// returns the conversation to Idle. The assistant message keeps the text it
// had when cancelled. It reports false when no turn was in flight.
func (c *Controller) Cancel(convID string) bool {
	c.mu.Lock()
	turn, ok := c.turns[convID]
	if !ok || turn.cancelled {
		c.mu.Unlock()
		return false
	}
	turn.cancelled = true
	turn.state = Cancelled
	delete(c.turns, convID)
	c.finalizePlaceholderLocked(turn)
	text := turn.applied
	c.mu.Unlock()

	log.Debug().Str("conversation", convID).Int("chars", len(text)).Msg("turn cancelled")
	c.persist()
	c.notify(Event{Kind: EventCancelled, ConversationID: convID, MessageID: turn.AssistantMessageID, Text: text})
	turn.end(Result{Text: text, Cancelled: true})
	return true
}

// CancelActive cancels the active conversation's turn.
func (c *Controller) CancelActive() bool {
	return c.Cancel(c.store.ActiveID())
}

// =============================================================================
// REGENERATE
// =============================================================================

// Regenerate replaces an assistant message in the active conversation with a
// fresh answer to the user message right before it. The user's text is sent
// again as a new message, and error notices directly after the replaced
// message are dropped with it. When the message is not an assistant message
// or is not preceded by a user message nothing happens and (nil, nil) is
// returned.
func (c *Controller) Regenerate(ctx context.Context, messageID string) (*Turn, error) {
	convID := c.store.ActiveID()
	conv, ok := c.store.Get(convID)
	if !ok {
		return nil, nil
	}
	i := conv.FindMessage(messageID)
	if i <= 0 || conv.Messages[i].Role != model.RoleAssistant {
		return nil, nil
	}
	prev := conv.Messages[i-1]
	if prev.Role != model.RoleUser {
		return nil, nil
	}

	replace := []string{messageID}
	for _, m := range conv.Messages[i+1:] {
		if m.Role != model.RoleAssistant || !m.IsError {
			break
		}
		replace = append(replace, m.ID)
	}
	return c.send(ctx, convID, prev.Content, true, replace...)
}

// RegenerateLast regenerates the newest answer of the active conversation.
// Trailing error notices are skipped so a failed turn can be retried; when
// the failure left no partial answer the notice itself is replaced.
func (c *Controller) RegenerateLast(ctx context.Context) (*Turn, error) {
	conv, ok := c.store.Active()
	if !ok {
		return nil, nil
	}
	i := len(conv.Messages) - 1
	for i >= 0 && conv.Messages[i].Role == model.RoleAssistant && conv.Messages[i].IsError {
		i--
	}
	switch {
	case i >= 0 && conv.Messages[i].Role == model.RoleAssistant:
		return c.Regenerate(ctx, conv.Messages[i].ID)
	case i >= 0 && i+1 < len(conv.Messages) && conv.Messages[i].Role == model.RoleUser:
		return c.Regenerate(ctx, conv.Messages[i+1].ID)
	}
	return nil, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Persist saves state now. Failures are logged, not returned.
func (c *Controller) Persist() {
	c.persist()
}

func (c *Controller) persist() {
	if c.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.persister.Persist(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist conversations")
	}
}

func (c *Controller) notify(e Event) {
	if c.notifier != nil {
		c.notifier.Notify(e)
	}
}
