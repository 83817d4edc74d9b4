// mohadith - Terminal chat with streaming replies and saved conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/mohadith/internal/cli"
)

// Version information (set at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	cli.Version = Version + " (" + GitCommit + ")"
	os.Exit(cli.Execute())
}
