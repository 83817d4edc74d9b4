// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides OpenRouter integration for cloud LLM inference.
package cloud

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/mohadith/internal/generation"
)

// Configuration constants for OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when a request names no model.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	backendName = "openrouter"
)

// Config configures the backend.
type Config struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration

	// SiteURL and SiteName are sent as OpenRouter attribution headers.
	SiteURL  string
	SiteName string
}

// Backend implements generation.Backend over chat completions.
type Backend struct {
	config     Config
	httpClient *http.Client
}

// New creates a backend, filling zero config values with defaults.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "mohadith"
	}
	return &Backend{
		config: cfg,
		httpClient: &http.Client{
			Transport: &headerTransport{siteURL: cfg.SiteURL, siteName: cfg.SiteName, base: http.DefaultTransport},
		},
	}
}

// Name implements generation.Backend.
func (b *Backend) Name() string {
	return backendName
}

// Complete implements generation.Backend.
func (b *Backend) Complete(ctx context.Context, req generation.Request) (string, error) {
	client, err := b.client(req)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, b.chatRequest(req, false))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", generation.NewTransportError(generation.KindPayload, backendName, "response has no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements generation.Backend.
func (b *Backend) Stream(ctx context.Context, req generation.Request, onChunk func(string)) error {
	client, err := b.client(req)
	if err != nil {
		return err
	}
	stream, err := client.CreateChatCompletionStream(ctx, b.chatRequest(req, true))
	if err != nil {
		return classify(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		onChunk(resp.Choices[0].Delta.Content)
		if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
			log.Warn().Str("model", resp.Model).Msg("stream stopped by content filter")
		}
	}
}

func (b *Backend) client(req generation.Request) (*openai.Client, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, generation.NewTransportError(generation.KindAuth, backendName, "API key is not set", nil)
	}
	cfg := openai.DefaultConfig(req.APIKey)
	cfg.BaseURL = b.config.BaseURL
	cfg.HTTPClient = b.httpClient
	return openai.NewClientWithConfig(cfg), nil
}

func (b *Backend) chatRequest(req generation.Request, stream bool) openai.ChatCompletionRequest {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = b.config.DefaultModel
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// classify maps go-openai errors onto generation error kinds.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := generation.KindOf(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = generation.KindAuth
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		kind = generation.KindQuota
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		kind = generation.KindPayload
	case status >= 500:
		kind = generation.KindNetwork
	}
	return generation.NewTransportError(kind, backendName, "chat completion", err)
}

// =============================================================================
// ATTRIBUTION HEADERS
// =============================================================================

// headerTransport adds OpenRouter's optional attribution headers.
type headerTransport struct {
	siteURL  string
	siteName string
	base     http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.siteURL != "" {
		req.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		req.Header.Set("X-Title", t.siteName)
	}
	return t.base.RoundTrip(req)
}

var _ generation.Backend = (*Backend)(nil)
