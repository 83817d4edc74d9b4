// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT
// =============================================================================

// Client runs the generation protocol over a Backend. It is safe for
// concurrent use.
type Client struct {
	backend Backend
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit paces backend calls to perMinute requests. Zero or negative
// disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// New creates a client for backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{backend: backend}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the backend the client talks to.
func (c *Client) Backend() Backend {
	return c.backend
}

// Generate sends prompt and reports progress to sink, which may be nil.
// It never returns an error: failures are reported to the sink and folded
// into the Response.
func (c *Client) Generate(ctx context.Context, settings Settings, prompt string, sink Sink) Response {
	if sink == nil {
		sink = nopSink{}
	}
	sink.Start()

	req := settings.request(prompt)
	partial, wantsPartial := sink.(PartialSink)
	if !settings.Streaming || !wantsPartial {
		return c.atomic(ctx, req, sink, false)
	}

	text, err := c.stream(ctx, req, partial)
	if err == nil {
		sink.Complete()
		if text == "" {
			text = NoResponseText
		}
		return Response{Text: text}
	}

	if ctx.Err() != nil {
		log.Debug().Err(err).Str("backend", c.backend.Name()).Msg("streaming stopped by cancellation")
		sink.Error(err)
		return Response{Text: ErrorPlaceholder, Failed: true, Err: err}
	}
	log.Warn().Err(err).Str("backend", c.backend.Name()).Int("received", len(text)).
		Msg("streaming failed, retrying without streaming")
	sink.Error(err)
	return c.atomic(ctx, req, sink, true)
}

// GenerateWithContext prefixes prompt with reference text before generating.
// Empty contextText sends prompt unchanged.
func (c *Client) GenerateWithContext(ctx context.Context, settings Settings, prompt, contextText string, sink Sink) Response {
	if strings.TrimSpace(contextText) == "" {
		return c.Generate(ctx, settings, prompt, sink)
	}
	return c.Generate(ctx, settings, ContextPrompt(contextText, prompt), sink)
}

// TestCredential checks the configured credential with a minimal request.
func (c *Client) TestCredential(ctx context.Context, settings Settings) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.backend.Complete(ctx, settings.request(PingPrompt))
	return asTransport(c.backend.Name(), err)
}

// =============================================================================
// ATTEMPTS
// =============================================================================

func (c *Client) atomic(ctx context.Context, req Request, sink Sink, fallback bool) Response {
	text, err := c.complete(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("backend", c.backend.Name()).Bool("fallback", fallback).Msg("atomic request failed")
		sink.Error(err)
		return Response{Text: ErrorPlaceholder, Failed: true, Err: err}
	}
	sink.Complete()
	if text == "" {
		text = NoResponseText
	}
	if fallback {
		log.Info().Str("backend", c.backend.Name()).Msg("answer delivered by non-streaming fallback")
	}
	return Response{Text: text, FellBack: fallback}
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	text, err := c.backend.Complete(ctx, req)
	return text, asTransport(c.backend.Name(), err)
}

// stream returns whatever was accumulated, even on failure.
func (c *Client) stream(ctx context.Context, req Request, sink PartialSink) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	var acc strings.Builder
	err := c.backend.Stream(ctx, req, func(delta string) {
		if delta == "" {
			return
		}
		acc.WriteString(delta)
		sink.Partial(acc.String())
	})
	return acc.String(), asTransport(c.backend.Name(), err)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return NewTransportError(KindOf(err), c.backend.Name(), "rate limiter", errors.WithStack(err))
	}
	return nil
}
