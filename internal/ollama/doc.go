// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for a local Ollama server.
//
// The Client implements generation.Backend: Complete posts a non-streaming
// /api/chat request, Stream reads the newline-delimited JSON chunks Ollama
// emits when "stream" is true. Ollama needs no credential; the API key in a
// request is ignored.
//
// # Key Types
//
//   - Client: HTTP client configured by ClientConfig
//   - ClientError: classified failure, convertible to generation.TransportError
//   - StreamReader: NDJSON chunk reader
//
// # Usage
//
//	client := ollama.NewClient()
//	text, err := client.Complete(ctx, generation.Request{Model: "llama3.2", Prompt: "hi"})
package ollama
