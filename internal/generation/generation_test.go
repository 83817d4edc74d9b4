// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation_test

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/generation/gentest"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// recorder captures sink events in order.
type recorder struct {
	events   []string
	partials []string
	errs     []error
}

func (r *recorder) sink(withPartial bool) generation.Sink {
	cb := generation.Callbacks{
		OnStart:    func() { r.events = append(r.events, "start") },
		OnComplete: func() { r.events = append(r.events, "complete") },
		OnError: func(err error) {
			r.events = append(r.events, "error")
			r.errs = append(r.errs, err)
		},
	}
	if withPartial {
		cb.OnPartial = func(text string) {
			r.events = append(r.events, "partial")
			r.partials = append(r.partials, text)
		}
	}
	return cb.Sink()
}

var streaming = generation.Settings{APIKey: "k", Model: "m", Temperature: 0.2, Streaming: true}

func TestAtomicWhenStreamingDisabled(t *testing.T) {
	backend := &gentest.Backend{Text: "whole answer", Chunks: []string{"x"}}
	rec := &recorder{}

	settings := streaming
	settings.Streaming = false
	resp := generation.New(backend).Generate(context.Background(), settings, "q", rec.sink(true))

	assert.Equal(t, "whole answer", resp.Text)
	assert.False(t, resp.Failed)
	assert.Equal(t, []string{"start", "complete"}, rec.events)
	s, c := backend.Calls()
	assert.Equal(t, 0, s)
	assert.Equal(t, 1, c)
}

func TestAtomicWithoutPartialCallback(t *testing.T) {
	backend := &gentest.Backend{Text: "whole answer"}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(false))

	assert.Equal(t, "whole answer", resp.Text)
	s, c := backend.Calls()
	assert.Equal(t, 0, s)
	assert.Equal(t, 1, c)
}

func TestAtomicEmptyTextNormalized(t *testing.T) {
	backend := &gentest.Backend{Text: ""}
	resp := generation.New(backend).Generate(context.Background(), generation.Settings{}, "q", nil)
	assert.Equal(t, generation.NoResponseText, resp.Text)
	assert.False(t, resp.Failed)
}

func TestAtomicFailureReturnsPlaceholder(t *testing.T) {
	backend := &gentest.Backend{CompleteErr: errors.New("401 unauthorized")}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), generation.Settings{}, "q", rec.sink(false))

	assert.Equal(t, generation.ErrorPlaceholder, resp.Text)
	assert.True(t, resp.Failed)
	assert.Equal(t, []string{"start", "error"}, rec.events)
	assert.True(t, generation.IsAuth(resp.Err))

	var te *generation.TransportError
	require.ErrorAs(t, resp.Err, &te)
	assert.Equal(t, "fake", te.Backend)
}

func TestStreamingDeliversCumulativeText(t *testing.T) {
	backend := &gentest.Backend{Chunks: []string{"Hel", "lo", "", " world"}}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(true))

	assert.Equal(t, "Hello world", resp.Text)
	assert.False(t, resp.FellBack)
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, rec.partials)
	assert.Equal(t, []string{"start", "partial", "partial", "partial", "complete"}, rec.events)
}

func TestStreamingEmptyNormalized(t *testing.T) {
	backend := &gentest.Backend{}
	rec := &recorder{}
	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(true))
	assert.Equal(t, generation.NoResponseText, resp.Text)
}

func TestStreamOpenFailureFallsBack(t *testing.T) {
	backend := &gentest.Backend{OpenErr: errors.New("connection reset"), Text: "atomic answer"}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(true))

	assert.Equal(t, "atomic answer", resp.Text)
	assert.True(t, resp.FellBack)
	assert.False(t, resp.Failed)
	assert.Equal(t, []string{"start", "error", "complete"}, rec.events)
	s, c := backend.Calls()
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, c)
}

func TestMidStreamFailureFallsBack(t *testing.T) {
	backend := &gentest.Backend{
		Chunks:    []string{"par", "tial"},
		StreamErr: errors.New("stream broke"),
		Text:      "complete atomic answer",
	}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(true))

	assert.Equal(t, "complete atomic answer", resp.Text)
	assert.True(t, resp.FellBack)
	assert.Equal(t, []string{"par", "partial"}, rec.partials)
	assert.Equal(t, []string{"start", "partial", "partial", "error", "complete"}, rec.events)

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].Prompt, reqs[1].Prompt)
}

func TestFallbackFailureReturnsPlaceholder(t *testing.T) {
	backend := &gentest.Backend{
		OpenErr:     errors.New("stream down"),
		CompleteErr: errors.New("quota exceeded"),
	}
	rec := &recorder{}

	resp := generation.New(backend).Generate(context.Background(), streaming, "q", rec.sink(true))

	assert.Equal(t, generation.ErrorPlaceholder, resp.Text)
	assert.True(t, resp.Failed)
	assert.False(t, resp.FellBack)
	assert.Equal(t, []string{"start", "error", "error"}, rec.events)
	require.Len(t, rec.errs, 2)
	assert.Equal(t, generation.KindQuota, generation.KindOf(rec.errs[1]))
}

func TestCancelledStreamSkipsFallback(t *testing.T) {
	backend := &gentest.Backend{Chunks: []string{"never"}, Gate: make(chan struct{}), Text: "atomic"}
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := generation.New(backend).Generate(ctx, streaming, "q", rec.sink(true))

	assert.True(t, resp.Failed)
	assert.False(t, resp.FellBack)
	assert.ErrorIs(t, resp.Err, context.Canceled)
	assert.Equal(t, []string{"start", "error"}, rec.events)
	_, completes := backend.Calls()
	assert.Zero(t, completes)
}

func TestGenerateWithContext(t *testing.T) {
	backend := &gentest.Backend{Text: "ok"}
	client := generation.New(backend)

	client.GenerateWithContext(context.Background(), generation.Settings{}, "What is it?", "The note body", nil)
	client.GenerateWithContext(context.Background(), generation.Settings{}, "plain", "  ", nil)

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Context information:\nThe note body\n\nUser question: What is it?\n\nPlease answer based on the context provided.", reqs[0].Prompt)
	assert.Equal(t, "plain", reqs[1].Prompt)
}

func TestRequestCarriesSettings(t *testing.T) {
	backend := &gentest.Backend{Text: "ok"}
	settings := generation.Settings{APIKey: "secret", Model: "gemini-1.5-flash", Temperature: 0.7, SystemPrompt: "sys"}

	generation.New(backend).Generate(context.Background(), settings, "hi", nil)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, generation.Request{APIKey: "secret", Model: "gemini-1.5-flash", Prompt: "hi", SystemPrompt: "sys", Temperature: 0.7}, reqs[0])
}

func TestTestCredential(t *testing.T) {
	backend := &gentest.Backend{Text: "pong"}
	require.NoError(t, generation.New(backend).TestCredential(context.Background(), generation.Settings{APIKey: "k"}))
	assert.Equal(t, generation.PingPrompt, backend.Requests()[0].Prompt)

	bad := &gentest.Backend{CompleteErr: errors.New("API key not valid")}
	err := generation.New(bad).TestCredential(context.Background(), generation.Settings{})
	assert.True(t, generation.IsAuth(err))
}

func TestRateLimitedClientStillGenerates(t *testing.T) {
	backend := &gentest.Backend{Text: "ok"}
	client := generation.New(backend, generation.WithRateLimit(6000))
	for i := 0; i < 3; i++ {
		assert.Equal(t, "ok", client.Generate(context.Background(), generation.Settings{}, "q", nil).Text)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want generation.ErrorKind
	}{
		{context.DeadlineExceeded, generation.KindTimeout},
		{context.Canceled, generation.KindCanceled},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, generation.KindNetwork},
		{errors.New("HTTP 429 Too Many Requests"), generation.KindQuota},
		{errors.New("something odd"), generation.KindUnknown},
		{generation.NewTransportError(generation.KindPayload, "x", "bad json", nil), generation.KindPayload},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, generation.KindOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "payload", generation.KindPayload.String())
}
