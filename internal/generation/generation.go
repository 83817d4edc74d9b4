// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation drives a single request against a text-generation
// backend, hiding whether the answer arrives in one piece or as a stream.
package generation

import (
	"context"
	"fmt"
)

const (
	// NoResponseText replaces an empty successful answer.
	NoResponseText = "No response"

	// ErrorPlaceholder is returned when every attempt failed.
	ErrorPlaceholder = "Error generating response. Please try again."

	// PingPrompt is sent by TestCredential.
	PingPrompt = "ping"
)

// =============================================================================
// SETTINGS AND REQUESTS
// =============================================================================

// Settings are the user-controlled inputs for one call.
type Settings struct {
	APIKey       string
	Model        string
	Temperature  float32
	Streaming    bool
	SystemPrompt string
}

// Request is what a Backend receives.
type Request struct {
	APIKey       string
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  float32
}

func (s Settings) request(prompt string) Request {
	return Request{
		APIKey:       s.APIKey,
		Model:        s.Model,
		Prompt:       prompt,
		SystemPrompt: s.SystemPrompt,
		Temperature:  s.Temperature,
	}
}

// ContextPrompt embeds reference text ahead of the user's question.
func ContextPrompt(contextText, prompt string) string {
	return fmt.Sprintf("Context information:\n%s\n\nUser question: %s\n\nPlease answer based on the context provided.",
		contextText, prompt)
}

// =============================================================================
// BACKEND
// =============================================================================

// Backend talks to one generation endpoint.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Complete returns the whole answer in one piece.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream delivers the answer as ordered deltas. onChunk is called from a
	// single goroutine, in arrival order, before Stream returns.
	Stream(ctx context.Context, req Request, onChunk func(delta string)) error
}

// =============================================================================
// SINKS
// =============================================================================

// Sink receives progress notifications for one Generate call.
type Sink interface {
	Start()
	Complete()
	Error(err error)
}

// PartialSink is a Sink that wants streamed text. Partial receives the full
// accumulated answer, not the latest delta.
type PartialSink interface {
	Sink
	Partial(textSoFar string)
}

// Callbacks adapts plain functions to a Sink. Nil fields are skipped.
type Callbacks struct {
	OnStart    func()
	OnPartial  func(textSoFar string)
	OnComplete func()
	OnError    func(err error)
}

// Sink returns the callbacks as a Sink. The result implements PartialSink
// only when OnPartial is set.
func (c Callbacks) Sink() Sink {
	if c.OnPartial != nil {
		return partialCallbacks{callbackSink{c}}
	}
	return callbackSink{c}
}

type callbackSink struct {
	c Callbacks
}

func (s callbackSink) Start() {
	if s.c.OnStart != nil {
		s.c.OnStart()
	}
}

func (s callbackSink) Complete() {
	if s.c.OnComplete != nil {
		s.c.OnComplete()
	}
}

func (s callbackSink) Error(err error) {
	if s.c.OnError != nil {
		s.c.OnError(err)
	}
}

type partialCallbacks struct {
	callbackSink
}

func (s partialCallbacks) Partial(text string) {
	s.c.OnPartial(text)
}

type nopSink struct{}

func (nopSink) Start()      {}
func (nopSink) Complete()   {}
func (nopSink) Error(error) {}

// =============================================================================
// RESPONSE
// =============================================================================

// Response is the outcome of Generate.
type Response struct {
	// Text is the answer, NoResponseText, or ErrorPlaceholder.
	Text string

	// Failed is true when no attempt succeeded.
	Failed bool

	// FellBack is true when streaming failed and the atomic retry succeeded.
	FellBack bool

	// Err is the last error seen, if any.
	Err error
}
