// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 6, "hél..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.max), "TruncateRunes(%q, %d)", tt.in, tt.max)
	}
}

func TestTruncateWidth(t *testing.T) {
	assert.Equal(t, "short", TruncateWidth("short", 10))
	assert.Equal(t, "hello...", TruncateWidth("hello world", 8))
	// Each CJK rune is two columns wide.
	got := TruncateWidth("日本語のテキスト", 7)
	assert.LessOrEqual(t, StringWidth(got), 7)
	assert.Equal(t, "", TruncateWidth("anything", 0))
}

func TestPadWidth(t *testing.T) {
	assert.Equal(t, "ab   ", PadWidth("ab", 5))
	assert.Equal(t, 6, StringWidth(PadWidth("日本語のテキスト", 6)))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "second", FirstLine("\n   \n  second  \nthird"))
	assert.Equal(t, "", FirstLine("  \n"))
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}
