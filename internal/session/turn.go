// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
)

// Result is the outcome of a turn.
type Result struct {
	// Text is the final content of the assistant message.
	Text      string
	Cancelled bool
	Failed    bool
	FellBack  bool
}

// Turn is one user message plus its response. Fields other than the IDs are
// guarded by the owning controller.
type Turn struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Prompt             string

	state     TurnState
	cancelled bool
	applied   string // content as of the last applied chunk

	once   sync.Once
	done   chan struct{}
	result Result
}

func newTurn(convID, prompt string) *Turn {
	return &Turn{
		ConversationID: convID,
		Prompt:         prompt,
		state:          AwaitingResponse,
		done:           make(chan struct{}),
	}
}

// Done is closed when the turn ends from the controller's point of view:
// on completion, failure, or cancellation.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn ends or ctx is done.
func (t *Turn) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// end records the result and releases waiters. Only the first call counts.
func (t *Turn) end(r Result) {
	t.once.Do(func() {
		t.result = r
		close(t.done)
	})
}
