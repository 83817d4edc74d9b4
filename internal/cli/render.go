// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering for assistant replies.

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
)

// Renderer turns Markdown into styled terminal output. A zero or disabled
// Renderer returns text unchanged.
type Renderer struct {
	tr *glamour.TermRenderer
}

// themeStyle maps the ui.theme setting to a glamour style name.
func themeStyle(theme string) string {
	switch strings.ToLower(theme) {
	case "dark":
		return styles.DarkStyle
	case "light":
		return styles.LightStyle
	}
	if termenv.HasDarkBackground() {
		return styles.DarkStyle
	}
	return styles.LightStyle
}

// NewRenderer builds a renderer for theme wrapping at width. When enabled is
// false the renderer passes text through.
func NewRenderer(theme string, width int, enabled bool) *Renderer {
	if !enabled {
		return &Renderer{}
	}
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(themeStyle(theme)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable, using plain text")
		return &Renderer{}
	}
	return &Renderer{tr: tr}
}

// Enabled reports whether Markdown is rendered.
func (r *Renderer) Enabled() bool {
	return r != nil && r.tr != nil
}

// Render returns md rendered for the terminal, or md itself when rendering
// is off or fails.
func (r *Renderer) Render(md string) string {
	if !r.Enabled() {
		return md
	}
	out, err := r.tr.Render(md)
	if err != nil {
		return md
	}
	return out
}
