// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations out as Markdown or JSON.
//
// # Key Types
//
//   - Exporter: Converts one conversation to bytes
//   - Options: Export configuration options
//
// # Supported Formats
//
//   - Markdown: Human-readable with metadata frontmatter
//   - JSON: The conversation exactly as it is persisted
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(conv, exporter, nil)
package export
