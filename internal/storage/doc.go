// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the blob stores that persist session state.
//
// The session layer treats persistence as a get/set pair over one opaque
// string. Every backend here implements that contract:
//
//   - FileStore: a single JSON file written atomically
//   - BoltStore: one key in a bbolt database
//   - SQLiteStore: one row in a SQLite key-value table
//   - MemoryStore: process memory, for tests and --ephemeral runs
//
// # Usage
//
//	blobs, err := storage.Open(storage.KindFile, "")
//	if err != nil {
//	    return err
//	}
//	defer blobs.Close()
//
//	data, found, err := blobs.Load(ctx)
//	err = blobs.Save(ctx, data)
package storage
