// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the global zerolog logger.
//
// Log lines go to a rotating file when one is configured. Otherwise they go
// to stderr, human-readable on a terminal and JSON when redirected.
package logging
