// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/generation"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// transport converts a ClientError to the generation error taxonomy.
func transport(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if !errors.As(err, &ce) {
		return generation.NewTransportError(generation.KindOf(err), backendName, "request failed", err)
	}
	kind := generation.KindUnknown
	switch ce.Type {
	case ErrTypeNotRunning, ErrTypeConnection:
		kind = generation.KindNetwork
	case ErrTypeTimeout:
		kind = generation.KindTimeout
	case ErrTypeModelNotFound, ErrTypeInvalidResponse:
		kind = generation.KindPayload
	}
	return generation.NewTransportError(kind, backendName, ce.Message, ce.Cause)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const backendName = "ollama"

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434).
	// IPv4 literal avoids localhost resolving to ::1 first.
	BaseURL string

	// Timeout for non-streaming requests (default: 120s)
	Timeout time.Duration

	// DefaultModel to use if a request names none (default: "llama3.2")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      120 * time.Second,
		DefaultModel: "llama3.2",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API. It is safe for
// concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		// Streams can legitimately run longer than Timeout; the caller's
		// context bounds them instead.
		streamClient: &http.Client{},
	}
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// =============================================================================
// GENERATION BACKEND
// =============================================================================

// Name implements generation.Backend.
func (c *Client) Name() string {
	return backendName
}

// Complete implements generation.Backend with a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, req generation.Request) (string, error) {
	resp, err := c.Chat(ctx, c.chatRequest(req, false))
	if err != nil {
		return "", transport(err)
	}
	return resp.Message.Content, nil
}

// Stream implements generation.Backend with a streaming chat request.
func (c *Client) Stream(ctx context.Context, req generation.Request, onChunk func(string)) error {
	err := c.ChatStream(ctx, c.chatRequest(req, true), func(chunk ChatResponse) {
		onChunk(chunk.Message.Content)
	})
	return transport(err)
}

func (c *Client) chatRequest(req generation.Request, stream bool) ChatRequest {
	model := req.Model
	if model == "" {
		model = c.config.DefaultModel
	}
	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})
	return ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options:  &Options{Temperature: req.Temperature},
	}
}

// =============================================================================
// CHAT
// =============================================================================

// Chat sends a non-streaming chat request.
func (c *Client) Chat(ctx context.Context, chat ChatRequest) (*ChatResponse, error) {
	chat.Stream = false
	resp, err := c.post(ctx, c.httpClient, chat)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if out.Error != "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: out.Error}
	}
	return &out, nil
}

// ChatStream sends a streaming chat request and calls callback for each
// chunk, in order, until Ollama reports done.
func (c *Client) ChatStream(ctx context.Context, chat ChatRequest, callback StreamCallback) error {
	chat.Stream = true
	resp, err := c.post(ctx, c.streamClient, chat)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return NewStreamReader(resp.Body).Process(ctx, callback)
}

func (c *Client) post(ctx context.Context, hc *http.Client, chat ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(chat)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || generation.IsTimeout(err) {
			return nil, &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
		}
		return nil, &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &ClientError{Type: ErrTypeModelNotFound, Message: ErrModelNotFound.Message + ": " + chat.Model}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Error}
		}
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "request failed: " + resp.Status}
	}
	return resp, nil
}

var _ generation.Backend = (*Client)(nil)
