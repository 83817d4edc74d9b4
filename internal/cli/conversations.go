// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Commands that manage saved conversations.
//
// Commands:
//   list, ls                 List conversations, most recent first
//   show <ref>               Print a conversation
//   use <ref>                Make a conversation active
//   new [title]              Start a new conversation
//   delete, rm <ref>         Delete a conversation
//   rename <ref> <title...>  Rename a conversation
//   clear [ref]              Remove all messages (default: active)
//   export <ref>             Write a conversation to Markdown or JSON
//
// A <ref> is a conversation id, a unique id prefix, or its number in list.

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mohadith/internal/model"
)

func newListCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				printConversationList(app.Out, app.Store.ListAll(), app.Store.ActiveID())
				return nil
			})
		},
	}
}

func newShowCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				conv, err := resolveConversation(app.Store, args[0])
				if err != nil {
					return err
				}
				printTranscript(app.Out, conv, app.printer.render, app.Config.Get().UI.ShowTimestamps)
				return nil
			})
		},
	}
}

func newUseCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "use <ref>",
		Short: "Make a conversation active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				conv, err := resolveConversation(app.Store, args[0])
				if err != nil {
					return err
				}
				app.Store.SetActive(conv.ID)
				fmt.Fprintf(app.Out, "Active conversation: %s\n", HighlightStyle.Render(conv.Title))
				return nil
			})
		},
	}
}

func newNewCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title...]",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				title := strings.TrimSpace(strings.Join(args, " "))
				if title == "" {
					title = model.DefaultTitle
				}
				id := app.Store.CreateConversation(title)
				fmt.Fprintf(app.Out, "Created %s %s\n", HighlightStyle.Render(title), DimStyle.Render(shortID(id)))
				return nil
			})
		},
	}
}

func newDeleteCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <ref>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				conv, err := resolveConversation(app.Store, args[0])
				if err != nil {
					return err
				}
				app.Store.Delete(conv.ID)
				fmt.Fprintf(app.Out, "Deleted %s\n", conv.Title)
				return nil
			})
		},
	}
}

func newRenameCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <ref> <title...>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				conv, err := resolveConversation(app.Store, args[0])
				if err != nil {
					return err
				}
				title := strings.Join(args[1:], " ")
				app.Store.Rename(conv.ID, title)
				fmt.Fprintf(app.Out, "Renamed to %s\n", HighlightStyle.Render(title))
				return nil
			})
		},
	}
}

func newClearCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [ref]",
		Short: "Remove all messages from a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				id := ""
				if len(args) == 1 {
					conv, err := resolveConversation(app.Store, args[0])
					if err != nil {
						return err
					}
					id = conv.ID
				}
				app.Store.Clear(id)
				fmt.Fprintln(app.Out, SuccessStyle.Render("Conversation cleared."))
				return nil
			})
		},
	}
}

func newExportCommand(opts *Options) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Export a conversation to Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *App) error {
				conv, err := resolveConversation(app.Store, args[0])
				if err != nil {
					return err
				}
				path, err := exportConversation(conv, format, output)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Out, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "md or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default current directory)")
	return cmd
}
