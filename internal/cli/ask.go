// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask [question...]
// Short:   Ask a single question and print the reply
//
// Flags:
//   -C, --conversation <ref>   Continue an existing conversation
//   -f, --file <path>          Attach a file as context
//
// Examples:
//   mohadith ask "What is a goroutine?"
//   git diff | mohadith ask
//   mohadith ask -C 2 "And what about channels?"
//
// The question is read from stdin when no arguments are given and stdin
// is not a terminal. Ctrl+C cancels the reply and keeps what arrived.

package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/session"
)

type askOptions struct {
	conversation string
	file         string
}

func newAskCommand(opts *Options) *cobra.Command {
	ask := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" && !IsTTY() {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read question")
				}
				question = strings.TrimSpace(string(data))
			}
			if question == "" {
				return ErrUsage("a question is required", `mohadith ask "What is a goroutine?"`)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				return runAsk(ctx, app, ask, question)
			})
		},
	}
	cmd.Flags().StringVarP(&ask.conversation, "conversation", "C", "", "continue this conversation (id, prefix or list number)")
	cmd.Flags().StringVarP(&ask.file, "file", "f", "", "attach a file as context")
	return cmd
}

// runAsk sends question and waits for the reply. A cancelled ctx cancels
// the turn rather than abandoning it.
func runAsk(ctx context.Context, app *App, opts *askOptions, question string) error {
	var convID string
	if opts.conversation != "" {
		conv, err := resolveConversation(app.Store, opts.conversation)
		if err != nil {
			return err
		}
		convID = conv.ID
		app.Store.SetActive(convID)
	} else {
		convID = app.Store.CreateConversation(model.DefaultTitle)
	}

	if opts.file != "" {
		if err := app.Contexts.Attach(convID, opts.file); err != nil {
			return err
		}
	}

	// The request outlives ctx until the turn is marked cancelled, so an
	// interrupt never surfaces as a generation failure.
	genCtx, genCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer genCancel()

	app.printer.Follow(convID)
	turn, err := app.Controller.Send(genCtx, question)
	if err != nil {
		return err
	}

	result, err := turn.Wait(ctx)
	if err != nil {
		app.Controller.Cancel(convID)
		genCancel()
		result, _ = turn.Wait(context.Background())
	}
	if result.Failed {
		if cause := app.printer.Failure(); cause != nil {
			return cause
		}
		return errors.New(session.ErrorMessageText)
	}
	return nil
}
