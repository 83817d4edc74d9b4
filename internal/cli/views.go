// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// views.go - Conversation listings and transcripts.

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/util"
)

const (
	titleColumn   = 32
	previewColumn = 36
)

// printConversationList writes one numbered row per conversation, most
// recently updated first. The active conversation is marked with "*".
func printConversationList(w io.Writer, convs []*model.Conversation, activeID string) {
	if len(convs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations."))
		return
	}
	for i, c := range convs {
		marker := " "
		title := util.PadWidth(c.Title, titleColumn)
		if c.ID == activeID {
			marker = "*"
			title = HighlightStyle.Render(title)
		}
		fmt.Fprintf(w, "%s %3d  %s  %s  %4d msg  %s  %s\n",
			marker,
			i+1,
			DimStyle.Render(shortID(c.ID)),
			title,
			c.MessageCount(),
			DimStyle.Render(formatAge(c.Updated(), time.Now())),
			DimStyle.Render(c.Preview(previewColumn)),
		)
	}
}

// printTranscript writes every message of conv.
func printTranscript(w io.Writer, conv *model.Conversation, render *Renderer, timestamps bool) {
	fmt.Fprintln(w, TitleStyle.Render(conv.Title))
	if conv.SystemPrompt != "" {
		fmt.Fprintln(w, DimStyle.Render("system: "+util.TruncateWidth(util.FirstLine(conv.SystemPrompt), 70)))
	}
	if conv.IsEmpty() {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for _, m := range conv.Messages {
		fmt.Fprintln(w, messageHeader(m, timestamps))
		if m.IsAssistant() && !m.IsError {
			fmt.Fprintln(w, strings.TrimRight(render.Render(m.Content), "\n"))
		} else {
			fmt.Fprintln(w, m.Content)
		}
		fmt.Fprintln(w)
	}
}

func messageHeader(m model.Message, timestamps bool) string {
	var label string
	switch m.Role {
	case model.RoleUser:
		label = UserStyle.Render("you")
	case model.RoleAssistant:
		label = AssistantStyle.Render("assistant")
	default:
		label = DimStyle.Render(m.Role.String())
	}
	if m.IsError {
		label += " " + ErrorStyle.Render("(error)")
	}
	if m.IsStreaming {
		label += " " + WarningStyle.Render("(incomplete)")
	}
	if timestamps {
		label += " " + DimStyle.Render(m.Time().Format("2006-01-02 15:04"))
	}
	return label
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}
