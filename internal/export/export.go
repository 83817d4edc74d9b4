// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Format names accepted by ForFormat.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// ForFormat returns the exporter for a format name. "markdown" is accepted
// as an alias for "md".
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatMarkdown, "markdown", "":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	}
	return nil, errors.Errorf("unknown export format %q (want md or json)", name)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata includes the frontmatter and session section.
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// Now stamps the export. Default: time.Now
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports a conversation to a new file in opts.OutputDir and returns
// its path.
func ToFile(conv *model.Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", errors.Wrap(err, "export failed")
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Title),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output directory")
	}

	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0o644); err != nil {
		return "", errors.Wrap(err, "write file")
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)

	result := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

// formatTimestamp formats a millisecond timestamp for display.
func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a millisecond timestamp for inline display.
func formatShortTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}
