// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps the blob in one row of a key-value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, wrapErr(KindSQLite, "open", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr(KindSQLite, "open", err)
	}
	// One writer; the driver serializes anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrapErr(KindSQLite, "open", errors.Wrap(err, pragma))
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, wrapErr(KindSQLite, "open", errors.Wrap(err, "create schema"))
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the stored blob.
func (s *SQLiteStore) Load(ctx context.Context) (string, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", stateKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(KindSQLite, "load", err)
	}
	return data, true, nil
}

// Save upserts the stored blob.
func (s *SQLiteStore) Save(ctx context.Context, data string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		stateKey, data, time.Now().UnixMilli())
	return wrapErr(KindSQLite, "save", err)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return wrapErr(KindSQLite, "close", s.db.Close())
}
