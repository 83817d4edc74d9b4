// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/codec"
	"github.com/jeranaias/mohadith/internal/storage"
	"github.com/jeranaias/mohadith/internal/store"
)

// Persister saves the current session state.
type Persister interface {
	Persist(ctx context.Context) error
}

// StorePersister encodes a store and hands the blob to a storage backend.
// Saves are serialized so a slow save never overwrites a newer one.
type StorePersister struct {
	Store *store.Store
	Blobs storage.BlobStore

	mu sync.Mutex
}

// Persist encodes and saves the store.
func (p *StorePersister) Persist(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := codec.Encode(p.Store)
	if err != nil {
		return err
	}
	return errors.Wrap(p.Blobs.Save(ctx, data), "save session state")
}

// LoadStore reads saved state from blobs. The returned store is always
// usable; a read failure is returned alongside a fresh store.
func LoadStore(ctx context.Context, blobs storage.BlobStore, opts ...store.Option) (*store.Store, error) {
	data, found, err := blobs.Load(ctx)
	if err != nil {
		return store.New(opts...), errors.Wrap(err, "load session state")
	}
	if !found {
		return store.New(opts...), nil
	}
	return codec.Decode(data, opts...), nil
}
