// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[Kind]BlobStore {
	t.Helper()
	dir := t.TempDir()
	stores := make(map[Kind]BlobStore)
	for _, kind := range Kinds {
		s, err := Open(kind, filepath.Join(dir, string(kind), "state"))
		require.NoError(t, err, kind)
		t.Cleanup(func() { _ = s.Close() })
		stores[kind] = s
	}
	return stores
}

func TestBlobStoresLoadBeforeSave(t *testing.T) {
	ctx := context.Background()
	for kind, s := range openAll(t) {
		data, found, err := s.Load(ctx)
		require.NoError(t, err, kind)
		assert.False(t, found, kind)
		assert.Empty(t, data, kind)
	}
}

func TestBlobStoresSaveLoad(t *testing.T) {
	ctx := context.Background()
	for kind, s := range openAll(t) {
		require.NoError(t, s.Save(ctx, `{"conversations":[]}`), kind)
		require.NoError(t, s.Save(ctx, `{"conversations":[],"activeConversationId":"x"}`), kind)

		data, found, err := s.Load(ctx)
		require.NoError(t, err, kind)
		assert.True(t, found, kind)
		assert.Equal(t, `{"conversations":[],"activeConversationId":"x"}`, data, kind)
	}
}

func TestPersistentStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, kind := range []Kind{KindFile, KindBolt, KindSQLite} {
		path := filepath.Join(dir, string(kind))
		s, err := Open(kind, path)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, "persisted "+string(kind)))
		require.NoError(t, s.Close())

		s, err = Open(kind, path)
		require.NoError(t, err)
		data, found, err := s.Load(ctx)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "persisted "+string(kind), data)
		require.NoError(t, s.Close())
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), "{}"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestFileStoreLoadError(t *testing.T) {
	// A directory where the file should be cannot be read as one.
	dir := t.TempDir()
	s := NewFileStore(dir)
	_, _, err := s.Load(context.Background())
	require.Error(t, err)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindFile, serr.Backend)
	assert.Equal(t, "load", serr.Op)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewFileStore(filepath.Join(t.TempDir(), "x.json"))
	assert.ErrorIs(t, s.Save(ctx, "x"), context.Canceled)
}

func TestMemoryStoreCountsSaves(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, "a"))
	require.NoError(t, m.Save(ctx, "b"))
	assert.Equal(t, 2, m.Saves())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" SQLite ")
	require.NoError(t, err)
	assert.Equal(t, KindSQLite, k)

	_, err = ParseKind("redis")
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	for kind, s := range openAll(t) {
		assert.Equal(t, kind, KindOf(s))
	}
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "state.bolt", filepath.Base(DefaultPath(KindBolt)))
	assert.Equal(t, "state.db", filepath.Base(DefaultPath(KindSQLite)))
	assert.Equal(t, "conversations.json", filepath.Base(DefaultPath(KindFile)))
}
