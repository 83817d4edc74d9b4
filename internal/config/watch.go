// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// =============================================================================
// SHARED HOLDER
// =============================================================================

// Holder guards a Config that may be swapped while readers use it.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewHolder wraps cfg. A nil cfg holds Default().
func NewHolder(cfg *Config) *Holder {
	if cfg == nil {
		cfg = Default()
	}
	return &Holder{cfg: cfg}
}

// Get returns the current configuration. Callers must not mutate it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Set replaces the current configuration.
func (h *Holder) Set(cfg *Config) {
	if cfg == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// =============================================================================
// FILE WATCHER
// =============================================================================

// WatchDebounce is how long the file must be quiet before a reload.
const WatchDebounce = 150 * time.Millisecond

// Watch reloads path whenever it is written and hands the new configuration
// to onChange. Invalid edits are logged and skipped. The parent directory is
// watched so editors that replace the file are still seen. Watching stops
// when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}

	go watchLoop(ctx, watcher, path, onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func(*Config)) {
	defer watcher.Close()

	target := filepath.Clean(path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(WatchDebounce)
			} else {
				timer.Reset(WatchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := LoadFrom(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config reload skipped")
				continue
			}
			log.Info().Str("path", path).Msg("config reloaded")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
