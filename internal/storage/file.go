// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"

	"github.com/jeranaias/mohadith/internal/util"
)

// FileStore keeps the blob in a single file.
type FileStore struct {
	Path string
}

// NewFileStore creates a file-backed store. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file. A missing file is not an error.
func (f *FileStore) Load(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(KindFile, "load", err)
	}
	return string(data), true, nil
}

// Save writes the file atomically with owner-only permissions.
func (f *FileStore) Save(ctx context.Context, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapErr(KindFile, "save", util.AtomicWriteFile(f.Path, []byte(data), 0o600))
}

// Close is a no-op.
func (f *FileStore) Close() error {
	return nil
}
