// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format. Messages still being
// streamed are exported with the text received so far.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, errors.New("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, errors.New("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
		fmt.Fprintf(&sb, "id: %s\n", conv.ID)
		fmt.Fprintf(&sb, "date: %s\n", time.UnixMilli(conv.CreatedAt).Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", time.UnixMilli(conv.UpdatedAt).Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: mohadith\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(conv.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(conv.Messages))
		if conv.SystemPrompt != "" {
			fmt.Fprintf(&sb, "- **System Prompt**: %s\n", strings.TrimSpace(conv.SystemPrompt))
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")

	for i, msg := range conv.Messages {
		label := formatRoleLabel(msg)
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from mohadith on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatRoleLabel returns a formatted label for the message role.
func formatRoleLabel(msg model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = "[User]"
	case model.RoleAssistant:
		label = "[Assistant]"
	case model.RoleSystem:
		label = "[System]"
	default:
		return "Unknown"
	}
	if msg.IsError {
		label += " (error)"
	}
	if msg.IsStreaming {
		label += " (incomplete)"
	}
	return label
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
