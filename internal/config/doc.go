// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for mohadith.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GenerationConfig: Provider, model and request shaping
//   - ConversationConfig: History cap and context awareness
//   - Holder: Swappable config shared with a file watcher
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MOHADITH_*, GEMINI_API_KEY, OPENROUTER_API_KEY)
//   - ~/.mohadith/config.toml
//   - ~/.mohadith/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Project onto generation settings:
//
//	settings := cfg.Settings()
package config
