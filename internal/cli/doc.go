// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the mohadith command-line interface.
//
// It wires configuration, storage and a generation backend into a session
// controller and exposes it as an interactive chat plus one-shot commands.
//
// # Key Types
//
//   - App: One wired session (config holder, store, controller, output)
//   - REPL: Interprets chat lines and slash commands
//   - FileContexts: Per-conversation context files for context awareness
//   - HealthCheck: One doctor check result
//
// # Usage
//
// Run the CLI from main:
//
//	os.Exit(cli.Execute())
//
// Build an App around your own backend, for example in tests:
//
//	app, err := cli.Assemble(ctx, cli.Deps{
//	    Config:  config.Default(),
//	    Blobs:   storage.NewMemoryStore(),
//	    Backend: backend,
//	})
//
// # Commands Overview
//
//   - chat (default): Interactive chat with streaming replies
//   - ask: Single question, from arguments or stdin
//   - list, show, use, new, delete, rename, clear, export: Conversations
//   - config: show, get, set, path, keys
//   - test-key, doctor: Credential and health checks
//
// # Exit Codes
//
// Errors map to exit codes via GetExitCode: usage 2, config 3, auth 4,
// network 5, storage 6, not found 7, timeout 8.
package cli
