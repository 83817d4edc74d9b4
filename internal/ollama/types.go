// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for a local Ollama server.
package ollama

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is a chat message in Ollama's wire format.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is the request body for /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// Options contains model parameters for inference.
type Options struct {
	Temperature float32 `json:"temperature"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is a non-streaming /api/chat response, and also the shape of
// each streamed line.
type ChatResponse struct {
	Model      string  `json:"model"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ErrorResponse is the body Ollama sends with a non-200 status.
type ErrorResponse struct {
	Error string `json:"error"`
}
