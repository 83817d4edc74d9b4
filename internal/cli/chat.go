// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for the mohadith CLI.
//
// Command: chat (also the default when no command is given)
// Short:   Start an interactive chat session
//
// Examples:
//   mohadith                          Start chatting in the last conversation
//   mohadith chat --provider ollama   Chat with a local model
//
// See repl.go for the slash commands available during chat.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/mohadith/internal/config"
	"github.com/jeranaias/mohadith/internal/session"
	"github.com/jeranaias/mohadith/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for interactive chat.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &lineReader{
		line:        line,
		historyFile: filepath.Join(config.Dir(), "chat_history"),
	}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadInput reads a line of input with the given prompt.
func (r *lineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// runChat runs the REPL until /quit, Ctrl+D or Ctrl+C at the prompt.
func runChat(ctx context.Context, app *App) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ctrl+C while a reply streams arrives as SIGINT; at the prompt liner
	// reports it as ErrPromptAborted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	if err := config.Watch(ctx, app.Options.configFile(), app.ApplyConfig); err != nil {
		log.Debug().Err(err).Msg("config file not watched")
	}

	reader := newLineReader()
	defer reader.Close()

	printWelcome(app)
	repl := NewREPL(app)

	for {
		input, err := reader.ReadInput(promptFor(app))
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) or io.EOF (Ctrl+D)
			fmt.Fprintln(app.Out)
			return nil
		}

		drainSignals(sigCh)
		turnCtx, turnCancel := context.WithCancel(ctx)
		turn, err := repl.Handle(turnCtx, input)
		if turn != nil {
			waitTurn(app.Controller, turn, sigCh)
		}
		// A cancelled turn is already detached, so aborting its request
		// only stops the download.
		turnCancel()

		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			DisplayError(app.ErrOut, err)
		}
	}
}

// waitTurn blocks until turn ends. An interrupt cancels it.
func waitTurn(ctrl *session.Controller, turn *session.Turn, sigCh <-chan os.Signal) {
	select {
	case <-turn.Done():
	case <-sigCh:
		ctrl.Cancel(turn.ConversationID)
		<-turn.Done()
	}
}

func drainSignals(sigCh <-chan os.Signal) {
	for {
		select {
		case <-sigCh:
		default:
			return
		}
	}
}

func promptFor(app *App) string {
	if conv, ok := app.Store.Active(); ok && conv.Title != "" {
		return fmt.Sprintf("[%s] > ", shortTitle(conv.Title))
	}
	return "> "
}

func shortTitle(title string) string {
	return util.TruncateWidth(title, 20)
}

func printWelcome(app *App) {
	cfg := app.Config.Get()
	backend := app.Client.Backend().Name()
	modelName := cfg.Generation.Model
	if modelName == "" {
		modelName = "default model"
	}
	fmt.Fprintln(app.Out, TitleStyle.Render("mohadith"))
	fmt.Fprintf(app.Out, "%s %s\n", RenderLabel("Provider"), ValueStyle.Render(backend+" / "+modelName))
	if conv, ok := app.Store.Active(); ok {
		fmt.Fprintf(app.Out, "%s %s %s\n", RenderLabel("Conversation"), ValueStyle.Render(conv.Title),
			DimStyle.Render(fmt.Sprintf("(%d messages)", conv.MessageCount())))
	}
	fmt.Fprintln(app.Out, DimStyle.Render("Type /help for commands, Ctrl+C to cancel a reply, Ctrl+D to exit."))
	fmt.Fprintln(app.Out)
}
