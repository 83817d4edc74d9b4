// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements generation.Backend on the Google Generative AI
// API.
//
// A client is created per request from the request's API key, so a key
// changed in the config file takes effect on the next turn without
// rebuilding anything.
package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jeranaias/mohadith/internal/generation"
)

const backendName = "gemini"

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-1.5-flash"

// ErrMissingAPIKey is returned before any network call when no key is set.
var ErrMissingAPIKey = generation.NewTransportError(generation.KindAuth, backendName, "API key is not set", nil)

// Config configures the backend.
type Config struct {
	// Endpoint overrides the API endpoint (proxies, tests).
	Endpoint string
	// DefaultModel replaces DefaultModel when set.
	DefaultModel string
}

// Backend talks to Gemini.
type Backend struct {
	config Config
}

// New creates a Gemini backend.
func New(cfg Config) *Backend {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	return &Backend{config: cfg}
}

// Name implements generation.Backend.
func (b *Backend) Name() string {
	return backendName
}

// Complete implements generation.Backend.
func (b *Backend) Complete(ctx context.Context, req generation.Request) (string, error) {
	client, model, err := b.model(ctx, req)
	if err != nil {
		return "", err
	}
	defer closeClient(client)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", wrap(err, "generate content")
	}
	return ResponseText(resp), nil
}

// Stream implements generation.Backend.
func (b *Backend) Stream(ctx context.Context, req generation.Request, onChunk func(string)) error {
	client, model, err := b.model(ctx, req)
	if err != nil {
		return err
	}
	defer closeClient(client)

	iter := model.GenerateContentStream(ctx, genai.Text(req.Prompt))
	chunks := 0
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return wrap(err, "stream content")
		}
		chunks++
		if delta := ResponseText(resp); delta != "" {
			onChunk(delta)
		}
	}
	log.Debug().Str("model", req.Model).Int("chunks", chunks).Msg("gemini stream finished")
	return nil
}

// model builds a client and model handle for req.
func (b *Backend) model(ctx context.Context, req generation.Request) (*genai.Client, *genai.GenerativeModel, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, nil, ErrMissingAPIKey
	}
	opts := []option.ClientOption{option.WithAPIKey(req.APIKey)}
	if b.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.config.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, wrap(err, "create client")
	}

	model := client.GenerativeModel(ModelName(req.Model, b.config.DefaultModel))
	model.SetTemperature(req.Temperature)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	return client, model, nil
}

// ModelName normalizes a configured model identifier. The legacy
// "models/" prefix is dropped; an empty name selects fallback.
func ModelName(name, fallback string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "models/")
	if name == "" {
		return fallback
	}
	return name
}

// ResponseText concatenates the text parts of the first candidate that has
// content.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		return sb.String()
	}
	return ""
}

func wrap(err error, op string) error {
	return generation.NewTransportError(generation.KindOf(err), backendName, op, errors.WithStack(err))
}

func closeClient(client *genai.Client) {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("closing gemini client")
	}
}

var _ generation.Backend = (*Backend)(nil)
