// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the blob in memory.
type MemoryStore struct {
	mu    sync.Mutex
	data  string
	found bool
	saves int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the last saved value.
func (m *MemoryStore) Load(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, m.found, nil
}

// Save stores the value.
func (m *MemoryStore) Save(ctx context.Context, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.found = true
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
