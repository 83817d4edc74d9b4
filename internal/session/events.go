// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the position of a turn in its lifecycle.
type TurnState int

const (
	Idle TurnState = iota
	AwaitingResponse
	Streaming
	Completing
	Cancelled
)

// String returns a human-readable state name.
func (s TurnState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting response"
	case Streaming:
		return "streaming"
	case Completing:
		return "completing"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies a turn notification.
type EventKind int

const (
	EventStarted EventKind = iota
	EventPartial
	EventCompleted
	EventCancelled
	EventFailed
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventPartial:
		return "partial"
	case EventCompleted:
		return "completed"
	case EventCancelled:
		return "cancelled"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes progress of a turn.
type Event struct {
	Kind           EventKind
	ConversationID string
	MessageID      string // the assistant message being written
	Text           string // accumulated text for partial/completed/cancelled
	FellBack       bool   // completed via the non-streaming retry
	Err            error  // set for EventFailed
}

// Notifier receives turn events. Notify is called outside the controller's
// lock and may call back into the controller.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f.
func (f NotifierFunc) Notify(e Event) {
	f(e)
}

// ContextProvider supplies reference text for context-aware generation.
type ContextProvider interface {
	// ContextFor returns the text to embed for a conversation, or "".
	ContextFor(conversationID string) string
}
