// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltStore keeps the blob under one key of a bbolt database. The database
// file stays open (and locked) until Close.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, wrapErr(KindBolt, "open", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, wrapErr(KindBolt, "open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, wrapErr(KindBolt, "open", err)
	}
	return &BoltStore{db: db}, nil
}

// Load reads the stored blob.
func (b *BoltStore) Load(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		data  string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stateBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(stateKey)); v != nil {
			// v is only valid inside the transaction.
			data = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, wrapErr(KindBolt, "load", err)
	}
	return data, found, nil
}

// Save replaces the stored blob.
func (b *BoltStore) Save(ctx context.Context, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(stateBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(stateKey), []byte(data))
	})
	return wrapErr(KindBolt, "save", err)
}

// Close closes the database.
func (b *BoltStore) Close() error {
	return wrapErr(KindBolt, "close", b.db.Close())
}
