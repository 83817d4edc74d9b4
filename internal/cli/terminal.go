// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - What the CLI knows about the terminal it runs in.
//
// NO_COLOR (https://no-color.org/) turns styling off. FORCE_COLOR turns it
// on even when stdout is piped.

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin is interactive.
func IsTTY() bool { return isTerminal(os.Stdin) }

// IsStdoutTTY reports whether replies go to a terminal.
func IsStdoutTTY() bool { return isTerminal(os.Stdout) }

// IsStderrTTY reports whether the spinner has a terminal to draw on.
func IsStderrTTY() bool { return isTerminal(os.Stderr) }

// Reply wrapping bounds, in columns.
const (
	DefaultTerminalWidth = 80
	minWrapWidth         = 40
	maxWrapWidth         = 120
)

// GetTerminalWidth returns the stdout width clamped to a readable range.
// Piped output gets DefaultTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return DefaultTerminalWidth
	case width < minWrapWidth:
		return minWrapWidth
	case width > maxWrapWidth:
		return maxWrapWidth
	}
	return width
}

// colorProfile picks the lipgloss profile from the environment and stdout.
func colorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") == "" && !IsStdoutTTY() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
