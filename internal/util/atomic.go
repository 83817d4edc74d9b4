// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions shared across mohadith packages.
package util

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AtomicWriteFile writes data to path by writing a temp file in the same
// directory, syncing it, and renaming it over the target. After a crash either
// the old file or the complete new file exists. Parent directories are created
// with 0700.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "failed to get absolute path")
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	// Same directory so the rename stays on one filesystem.
	f, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "failed to write data")
	}

	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync data to disk")
	}

	// Windows refuses to rename an open file.
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}

	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to set file permissions")
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to rename temp file")
	}

	success = true
	return nil
}
