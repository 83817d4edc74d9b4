// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides OpenRouter integration for cloud LLM inference.
//
// OpenRouter exposes many providers behind an OpenAI-compatible API, so the
// backend is built on the go-openai client with the base URL pointed at
// OpenRouter. Any other OpenAI-compatible endpoint works the same way.
//
// # Key Types
//
//   - Backend: generation.Backend over chat completions
//   - Config: base URL, default model and attribution headers
//
// # Usage
//
//	backend := cloud.New(cloud.Config{})
//	client := generation.New(backend)
//	resp := client.Generate(ctx, generation.Settings{APIKey: key, Streaming: true}, "Hello", sink)
//
// API keys are sent only in the Authorization header and never logged.
package cloud
