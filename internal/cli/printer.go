// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// printer.go - Writes a followed conversation's turn events to the terminal.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/session"
)

// streamPrinter renders turn events for one followed conversation. Raw mode
// prints text as it streams; Markdown mode shows the spinner and renders
// the final text once. Events for other conversations, or arriving after
// the followed turn ended, are ignored.
type streamPrinter struct {
	mu sync.Mutex

	out      io.Writer
	render   *Renderer
	spinners func() *Spinner // nil disables the spinner

	following string // conversation id
	message   string // assistant message id of the followed turn
	printed   string
	spin      *Spinner
	failure   error // cause of the last failed turn
}

func newStreamPrinter(out io.Writer, render *Renderer, spinners func() *Spinner) *streamPrinter {
	return &streamPrinter{out: out, render: render, spinners: spinners}
}

// Follow starts printing events for convID's next turn.
func (p *streamPrinter) Follow(convID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.following = convID
	p.message = ""
	p.printed = ""
	p.failure = nil
}

// Failure returns why the last followed turn failed, if it did.
func (p *streamPrinter) Failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

// Notify implements session.Notifier.
func (p *streamPrinter) Notify(e session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.following == "" || e.ConversationID != p.following {
		return
	}
	if e.Kind == session.EventStarted {
		p.message = e.MessageID
		if p.spinners != nil {
			p.spin = p.spinners()
		}
		return
	}
	if e.MessageID != p.message {
		return
	}

	switch e.Kind {
	case session.EventPartial:
		if p.render.Enabled() {
			return
		}
		p.stopSpinner()
		p.writeDelta(e.Text)

	case session.EventCompleted:
		p.stopSpinner()
		if p.render.Enabled() {
			fmt.Fprint(p.out, p.render.Render(e.Text))
		} else {
			if p.printed != "" && !strings.HasPrefix(e.Text, p.printed) {
				fmt.Fprintf(p.out, "\n%s\n", DimStyle.Render("[stream interrupted, full reply follows]"))
				p.printed = ""
			}
			p.writeDelta(e.Text)
			fmt.Fprintln(p.out)
		}
		p.end()

	case session.EventCancelled:
		p.stopSpinner()
		if p.render.Enabled() && e.Text != "" {
			fmt.Fprint(p.out, p.render.Render(e.Text))
		} else if p.printed != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintln(p.out, WarningStyle.Render("[Cancelled]"))
		p.end()

	case session.EventFailed:
		p.stopSpinner()
		p.failure = e.Err
		if p.printed != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintln(p.out, ErrorStyle.Render(e.Text))
		if hint := failureHint(e.Err); hint != "" {
			fmt.Fprintln(p.out, DimStyle.Render(hint))
		}
		p.end()
	}
}

func (p *streamPrinter) writeDelta(text string) {
	if strings.HasPrefix(text, p.printed) {
		fmt.Fprint(p.out, text[len(p.printed):])
		p.printed = text
	}
}

func (p *streamPrinter) stopSpinner() {
	p.spin.Stop()
	p.spin = nil
}

func (p *streamPrinter) end() {
	p.following = ""
	p.message = ""
	p.printed = ""
}

// failureHint suggests a fix for common backend failures.
func failureHint(err error) string {
	switch generation.KindOf(err) {
	case generation.KindAuth:
		return "The API key was rejected. Check it with: mohadith test-key"
	case generation.KindQuota:
		return "The provider's rate limit or quota was reached. Try again later."
	case generation.KindNetwork:
		return "The provider could not be reached. Check your connection."
	case generation.KindTimeout:
		return "The provider took too long to answer."
	}
	return ""
}
