// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generation drives a single request against a text-generation
// backend, hiding whether the answer arrives in one piece or as a stream.
//
// # Protocol
//
// Generate always calls Sink.Start first. When streaming is enabled and the
// sink implements PartialSink, chunks are accumulated and Partial receives
// the whole text so far after each one. If the stream fails at any point the
// sink's Error is called and the request is retried once without streaming.
// A failed atomic request calls Error and returns ErrorPlaceholder instead of
// an error, so callers always have text to show.
//
// # Key Types
//
//   - Backend: the endpoint adapter (gemini, ollama, cloud packages)
//   - Client: runs the protocol over a Backend
//   - Sink, PartialSink, Callbacks: progress notifications
//   - TransportError: classified backend failure
//
// # Usage
//
//	client := generation.New(gemini.New())
//	resp := client.Generate(ctx, settings, "Why is the sky blue?", generation.Callbacks{
//	    OnPartial: func(text string) { render(text) },
//	}.Sink())
//	fmt.Println(resp.Text)
package generation
