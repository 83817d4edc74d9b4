// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the blob stores that persist session state.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// BLOB STORE CONTRACT
// =============================================================================

// BlobStore persists one opaque string value.
type BlobStore interface {
	// Load returns the stored value. found is false when nothing has been
	// saved yet.
	Load(ctx context.Context) (data string, found bool, err error)

	// Save replaces the stored value.
	Save(ctx context.Context, data string) error

	// Close releases the underlying resources.
	Close() error
}

// Kind names a storage backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindBolt   Kind = "bolt"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

// Kinds lists the supported backends.
var Kinds = []Kind{KindFile, KindBolt, KindSQLite, KindMemory}

// ParseKind converts a config value to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.Errorf("unknown storage backend %q", s)
}

// KindOf reports which backend b is, or "" for implementations outside
// this package.
func KindOf(b BlobStore) Kind {
	switch b.(type) {
	case *FileStore:
		return KindFile
	case *BoltStore:
		return KindBolt
	case *SQLiteStore:
		return KindSQLite
	case *MemoryStore:
		return KindMemory
	}
	return ""
}

// stateKey addresses the session blob inside keyed backends.
const stateKey = "conversations"

// =============================================================================
// ERRORS
// =============================================================================

// StorageError wraps a backend failure with the operation that caused it.
type StorageError struct {
	Backend Kind
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return string(e.Backend) + " " + e.Op + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func wrapErr(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Backend: kind, Op: op, Cause: err}
}

// =============================================================================
// FACTORY
// =============================================================================

// DataDir returns the default data directory (~/.mohadith).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mohadith"
	}
	return filepath.Join(home, ".mohadith")
}

// DefaultPath returns the default location for a backend's data.
func DefaultPath(kind Kind) string {
	switch kind {
	case KindBolt:
		return filepath.Join(DataDir(), "state.bolt")
	case KindSQLite:
		return filepath.Join(DataDir(), "state.db")
	default:
		return filepath.Join(DataDir(), "conversations.json")
	}
}

// Open creates the backend of the given kind. An empty path selects
// DefaultPath(kind).
func Open(kind Kind, path string) (BlobStore, error) {
	if path == "" {
		path = DefaultPath(kind)
	}
	switch kind {
	case KindFile:
		return NewFileStore(path), nil
	case KindBolt:
		return OpenBolt(path)
	case KindSQLite:
		return OpenSQLite(path)
	case KindMemory:
		return NewMemoryStore(), nil
	}
	return nil, errors.Errorf("unknown storage backend %q", kind)
}
