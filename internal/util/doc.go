// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across mohadith packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth, PadWidth: display-column aware truncation and padding
//   - FirstLine: first non-empty line of a block of text
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Fit a title into a 40 column listing cell
//	cell := util.PadWidth(conv.Title, 40)
//
//	// Write files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0600)
package util
