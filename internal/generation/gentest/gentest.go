// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gentest provides a scripted generation.Backend for tests.
package gentest

import (
	"context"
	"sync"

	"github.com/jeranaias/mohadith/internal/generation"
)

// Backend replays a fixed script. Set fields before first use.
type Backend struct {
	// Chunks are delivered in order by Stream.
	Chunks []string
	// OpenErr fails Stream before any chunk.
	OpenErr error
	// StreamErr fails Stream after every chunk was delivered.
	StreamErr error
	// Text is returned by Complete.
	Text string
	// CompleteErr fails Complete.
	CompleteErr error
	// Gate, when set, must be signalled once before each chunk is delivered.
	Gate chan struct{}

	mu            sync.Mutex
	requests      []generation.Request
	streamCalls   int
	completeCalls int
	delivered     int
	done          chan struct{}
}

// Name implements generation.Backend.
func (b *Backend) Name() string {
	return "fake"
}

// Complete implements generation.Backend.
func (b *Backend) Complete(ctx context.Context, req generation.Request) (string, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.completeCalls++
	b.mu.Unlock()
	if b.CompleteErr != nil {
		return "", b.CompleteErr
	}
	return b.Text, nil
}

// Stream implements generation.Backend.
func (b *Backend) Stream(ctx context.Context, req generation.Request, onChunk func(string)) error {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.streamCalls++
	b.mu.Unlock()
	defer b.markDone()

	if b.OpenErr != nil {
		return b.OpenErr
	}
	for _, chunk := range b.Chunks {
		if b.Gate != nil {
			select {
			case <-b.Gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		onChunk(chunk)
		b.mu.Lock()
		b.delivered++
		b.mu.Unlock()
	}
	return b.StreamErr
}

// StreamDone is closed once the first Stream call returns.
func (b *Backend) StreamDone() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
	}
	return b.done
}

func (b *Backend) markDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
	}
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// Requests returns every request received so far.
func (b *Backend) Requests() []generation.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]generation.Request(nil), b.requests...)
}

// Calls returns the number of Stream and Complete calls.
func (b *Backend) Calls() (stream, complete int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streamCalls, b.completeCalls
}

// Delivered returns how many chunks have been handed to onChunk.
func (b *Backend) Delivered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered
}

var _ generation.Backend = (*Backend)(nil)
