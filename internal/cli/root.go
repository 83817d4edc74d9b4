// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Command tree and entry point for the mohadith CLI.
//
// Usage:
//   mohadith [command] [flags]
//
// Global Flags:
//   -c, --config <path>      Config file (default ~/.mohadith/config.toml)
//   -p, --provider <name>    gemini, ollama or openrouter
//   -m, --model <name>       Model override
//       --storage <kind>     file, bolt, sqlite or memory
//       --log-level <level>  debug, info, warn or error

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// NewRootCommand builds the command tree. With no subcommand it starts chat.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "mohadith",
		Short:         "Chat with language models from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, runChat)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ~/.mohadith/config.toml)")
	flags.StringVarP(&opts.Provider, "provider", "p", "", "provider: gemini, ollama or openrouter")
	flags.StringVarP(&opts.Model, "model", "m", "", "model name")
	flags.StringVar(&opts.Storage, "storage", "", "storage backend: file, bolt, sqlite or memory")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newChatCommand(opts),
		newAskCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
		newUseCommand(opts),
		newNewCommand(opts),
		newDeleteCommand(opts),
		newRenameCommand(opts),
		newClearCommand(opts),
		newExportCommand(opts),
		newTestKeyCommand(opts),
		newConfigCommand(opts),
		newDoctorCommand(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		DisplayError(os.Stderr, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// withApp opens an App for the duration of fn and saves it afterwards.
func withApp(cmd *cobra.Command, opts *Options, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	app, err := NewApp(ctx, *opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		cancel()
		return err
	}

	runErr := fn(ctx, app)
	cancel()
	if err := app.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newChatCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, runChat)
		},
	}
}
