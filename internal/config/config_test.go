// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mohadith/internal/storage"
)

var envKeys = []string{
	"MOHADITH_PROVIDER", "MOHADITH_MODEL", "MOHADITH_API_KEY",
	"GEMINI_API_KEY", "OPENROUTER_API_KEY", "MOHADITH_OLLAMA_URL",
	"MOHADITH_STORAGE", "MOHADITH_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderGemini, cfg.Generation.Provider)
	assert.Equal(t, 30, cfg.Conversation.MaxHistory)
	assert.True(t, cfg.Generation.Streaming)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromTOMLKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[generation]
provider = "ollama"
model = "llama3.2"
temperature = 0.7

[conversation]
max_history = 10
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Generation.Provider)
	assert.Equal(t, "llama3.2", cfg.Generation.Model)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.Equal(t, 10, cfg.Conversation.MaxHistory)
	assert.True(t, cfg.Generation.Streaming, "absent booleans keep their default")
	assert.Equal(t, DefaultSystemPrompt, cfg.Generation.SystemPrompt)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.URL)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFromJSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"generation":{"provider":"openrouter","streaming":false},"storage":{"backend":"bolt"}}`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenRouter, cfg.Generation.Provider)
	assert.False(t, cfg.Generation.Streaming)
	assert.Equal(t, storage.KindBolt, cfg.StorageKind())
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[generation]
provider = "watson"
temperature = 1.5

[conversation]
max_history = 500
`)

	_, err := LoadFrom(path)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"generation.provider",
		"generation.temperature",
		"conversation.max_history",
	}, fields)
}

func TestLoadFromMalformedTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[generation\nprovider=")
	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad ollama url", func(c *Config) { c.Ollama.URL = "ftp://host" }, "ollama.url"},
		{"missing host", func(c *Config) { c.OpenRouter.BaseURL = "https://" }, "openrouter.base_url"},
		{"bad storage", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative pacing", func(c *Config) { c.Generation.RequestsPerMinute = -1 }, "generation.requests_per_minute"},
		{"history too small", func(c *Config) { c.Conversation.MaxHistory = 4 }, "conversation.max_history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOHADITH_PROVIDER", "OpenRouter")
	t.Setenv("MOHADITH_MODEL", "meta/llama")
	t.Setenv("MOHADITH_API_KEY", "sk-generic")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("MOHADITH_OLLAMA_URL", "http://gpu:11434")
	t.Setenv("MOHADITH_STORAGE", "sqlite")
	t.Setenv("MOHADITH_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, ProviderOpenRouter, cfg.Generation.Provider)
	assert.Equal(t, "meta/llama", cfg.Generation.Model)
	assert.Equal(t, "sk-generic", cfg.Credentials.OpenRouterAPIKey)
	assert.Equal(t, "g-key", cfg.Credentials.GeminiAPIKey)
	assert.Equal(t, "http://gpu:11434", cfg.Ollama.URL)
	assert.Equal(t, storage.KindSQLite, cfg.StorageKind())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSettingsUsesProviderKey(t *testing.T) {
	cfg := Default()
	cfg.Credentials.GeminiAPIKey = "g"
	cfg.Credentials.OpenRouterAPIKey = "o"
	cfg.Generation.Temperature = 0.5

	s := cfg.Settings()
	assert.Equal(t, "g", s.APIKey)
	assert.InDelta(t, 0.5, float64(s.Temperature), 1e-6)
	assert.True(t, s.Streaming)

	cfg.Generation.Provider = ProviderOpenRouter
	assert.Equal(t, "o", cfg.Settings().APIKey)

	cfg.Generation.Provider = ProviderOllama
	assert.Empty(t, cfg.Settings().APIKey)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("generation.temperature", "0.9"))
	require.NoError(t, cfg.Set("conversation.max_history", "12"))
	require.NoError(t, cfg.Set("generation.streaming", "false"))
	require.NoError(t, cfg.Set("ui.theme", "dark"))

	v, err := cfg.Get("generation.temperature")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, v.(float64), 1e-9)

	v, err = cfg.Get("conversation.max_history")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	assert.False(t, cfg.Generation.Streaming)
	assert.Equal(t, "dark", cfg.UI.Theme)

	_, err = cfg.Get("generation.nope")
	assert.Error(t, err)
	_, err = cfg.Get("generation")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("", "x"))
	assert.Error(t, cfg.Set("conversation.max_history", "many"))
	assert.Error(t, cfg.Set("generation.streaming", "perhaps"))
}

func TestKeysAreAllGettable(t *testing.T) {
	cfg := Default()
	keys := Keys()
	assert.Contains(t, keys, "credentials.gemini_api_key")
	assert.Contains(t, keys, "logging.file")
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
	assert.True(t, IsSecret("credentials.openrouter_api_key"))
	assert.False(t, IsSecret("generation.model"))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Generation.Provider = ProviderOllama
	cfg.Conversation.ContextAwareness = false
	cfg.UI.ShowSpinner = false
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStringRedactsCredentials(t *testing.T) {
	cfg := Default()
	cfg.Credentials.GeminiAPIKey = "secret-gemini"
	cfg.Credentials.OpenRouterAPIKey = "secret-router"

	s := cfg.String()
	assert.NotContains(t, s, "secret-gemini")
	assert.NotContains(t, s, "secret-router")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "secret-gemini", cfg.Credentials.GeminiAPIKey)
}

func TestHolderConcurrentAccess(t *testing.T) {
	h := NewHolder(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Generation.Model = "m"
			h.Set(c)
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, h.Get())
		}()
	}
	wg.Wait()
	h.Set(nil)
	assert.Equal(t, "m", h.Get().Generation.Model)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { changes <- c }))

	// An unrelated file in the same directory is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))

	updated := Default()
	updated.Generation.Model = "gemini-2.0-flash"
	require.NoError(t, SaveTOML(updated, path))

	select {
	case c := <-changes:
		assert.Equal(t, "gemini-2.0-flash", c.Generation.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent", "config.toml"), func(*Config) {})
	assert.Error(t, err)
}

func TestReadFileSkipsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := writeFile(t, "config.toml", "[ollama]\nurl = \"http://box:11434\"\n")

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Credentials.GeminiAPIKey)
	assert.Equal(t, "http://box:11434", cfg.Ollama.URL)

	missing, err := ReadFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), missing)
}
