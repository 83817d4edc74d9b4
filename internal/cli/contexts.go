// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// contexts.go - Files attached to conversations for context-aware replies.

package cli

import (
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// MaxContextFileSize is the largest file that can be attached (50KB).
const MaxContextFileSize = 50 * 1024

type attachment struct {
	path string
	text string
}

// FileContexts implements session.ContextProvider with one attached file per
// conversation. Attachments live for the process only.
type FileContexts struct {
	mu      sync.Mutex
	files   map[string]attachment
	enabled func() bool
}

// NewFileContexts creates an empty set. enabled gates ContextFor; nil means
// always on.
func NewFileContexts(enabled func() bool) *FileContexts {
	return &FileContexts{files: make(map[string]attachment), enabled: enabled}
}

// Attach reads path and attaches it to convID, replacing any earlier file.
func (f *FileContexts) Attach(convID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "attach context")
	}
	if info.IsDir() {
		return errors.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxContextFileSize {
		return errors.Errorf("%s is %d bytes, the limit is %d", path, info.Size(), MaxContextFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "attach context")
	}
	if !utf8.Valid(data) {
		return errors.Errorf("%s is not a text file", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[convID] = attachment{path: abs, text: string(data)}
	return nil
}

// Detach removes convID's attachment. It reports whether one existed.
func (f *FileContexts) Detach(convID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[convID]
	delete(f.files, convID)
	return ok
}

// Attached returns the path attached to convID.
func (f *FileContexts) Attached(convID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.files[convID]
	return a.path, ok
}

// ContextFor implements session.ContextProvider.
func (f *FileContexts) ContextFor(convID string) string {
	if f.enabled != nil && !f.enabled() {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[convID].text
}
