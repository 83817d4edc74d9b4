// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/model"
	"github.com/jeranaias/mohadith/internal/storage"
	"github.com/jeranaias/mohadith/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mohadith configuration.
type Config struct {
	Generation   GenerationConfig   `toml:"generation" json:"generation"`
	Credentials  CredentialsConfig  `toml:"credentials" json:"credentials"`
	Ollama       OllamaConfig       `toml:"ollama" json:"ollama"`
	OpenRouter   OpenRouterConfig   `toml:"openrouter" json:"openrouter"`
	Conversation ConversationConfig `toml:"conversation" json:"conversation"`
	Storage      StorageConfig      `toml:"storage" json:"storage"`
	UI           UIConfig           `toml:"ui" json:"ui"`
	Logging      LoggingConfig      `toml:"logging" json:"logging"`
}

// GenerationConfig selects the backend and shapes each request.
type GenerationConfig struct {
	// Provider is one of gemini, ollama, openrouter.
	Provider string `toml:"provider" json:"provider"`

	// Model is passed to the provider. Empty uses the provider default.
	Model string `toml:"model" json:"model"`

	// Temperature in [0, 1].
	Temperature float64 `toml:"temperature" json:"temperature"`

	// Streaming enables incremental delivery with atomic fallback.
	Streaming bool `toml:"streaming" json:"streaming"`

	// SystemPrompt is used when a conversation has none of its own.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	// RequestsPerMinute paces outgoing calls. 0 disables pacing.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// CredentialsConfig holds provider API keys.
type CredentialsConfig struct {
	GeminiAPIKey     string `toml:"gemini_api_key" json:"gemini_api_key"`
	OpenRouterAPIKey string `toml:"openrouter_api_key" json:"openrouter_api_key"`
}

// OllamaConfig configures the local Ollama server.
type OllamaConfig struct {
	URL string `toml:"url" json:"url"`
}

// OpenRouterConfig configures the OpenAI-compatible endpoint.
type OpenRouterConfig struct {
	BaseURL string `toml:"base_url" json:"base_url"`
}

// ConversationConfig shapes the conversation store.
type ConversationConfig struct {
	// MaxHistory caps messages kept per conversation (5 - 100).
	MaxHistory int `toml:"max_history" json:"max_history"`

	// ContextAwareness passes attached file text with each prompt.
	ContextAwareness bool `toml:"context_awareness" json:"context_awareness"`
}

// StorageConfig selects where session state lives.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
}

// UIConfig contains REPL display settings.
type UIConfig struct {
	Theme          string `toml:"theme" json:"theme"`
	ShowTimestamps bool   `toml:"show_timestamps" json:"show_timestamps"`
	ShowSpinner    bool   `toml:"show_spinner" json:"show_spinner"`
	RenderMarkdown bool   `toml:"render_markdown" json:"render_markdown"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
}

// Provider names.
const (
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

// DefaultSystemPrompt is sent when neither the config nor the conversation
// supplies one.
const DefaultSystemPrompt = "You are a helpful AI assistant. Provide concise and accurate information."

// History cap bounds.
const (
	MinHistory = 5
	MaxHistory = 100
)

// Default returns a new Config with default values.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider:     ProviderGemini,
			Temperature:  0.2,
			Streaming:    true,
			SystemPrompt: DefaultSystemPrompt,
		},
		Ollama: OllamaConfig{
			URL: "http://127.0.0.1:11434",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Conversation: ConversationConfig{
			MaxHistory:       model.DefaultMaxHistory,
			ContextAwareness: true,
		},
		Storage: StorageConfig{
			Backend: string(storage.KindFile),
		},
		UI: UIConfig{
			Theme:          "system",
			ShowTimestamps: true,
			ShowSpinner:    true,
			RenderMarkdown: true,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the mohadith configuration directory path.
func Dir() string {
	return storage.DataDir()
}

// PathTOML returns the path to the TOML config file.
func PathTOML() string {
	return filepath.Join(Dir(), "config.toml")
}

// PathJSON returns the path to the JSON config file.
func PathJSON() string {
	return filepath.Join(Dir(), "config.json")
}

// ensureSecurePermissions narrows a config file to 0600; it holds API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return errors.Wrapf(err, "fix permissions (was %o)", mode)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location. TOML is tried first,
// then JSON, then built-in defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, path := range []string{PathTOML(), PathJSON()} {
		if _, err := os.Stat(path); err == nil {
			return LoadFrom(path)
		}
	}
	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// LoadFrom loads configuration from a specific file. Files ending in .json
// are decoded as JSON, everything else as TOML.
func LoadFrom(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// ReadFile decodes path over the defaults without environment overrides or
// validation. It is the starting point for editing a config file in place.
// A missing file yields Default().
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var err error
	if strings.HasSuffix(path, ".json") {
		err = decodeJSON(cfg, path)
	} else {
		err = decodeTOML(cfg, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load config from %s", path)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func decodeTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return errors.Wrap(err, "decode TOML")
	}
	return nil
}

func decodeJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read JSON")
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "decode JSON")
	}
	return nil
}

// fillDefaults replaces empty strings and zero caps with their defaults.
// Booleans are left alone; false is a valid choice.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Generation.Provider == "" {
		c.Generation.Provider = d.Generation.Provider
	}
	if c.Generation.SystemPrompt == "" {
		c.Generation.SystemPrompt = d.Generation.SystemPrompt
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.OpenRouter.BaseURL == "" {
		c.OpenRouter.BaseURL = d.OpenRouter.BaseURL
	}
	if c.Conversation.MaxHistory == 0 {
		c.Conversation.MaxHistory = d.Conversation.MaxHistory
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	return SaveTOML(cfg, PathTOML())
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# mohadith configuration file\n")
	b.WriteString("# Generated by mohadith - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0o600); err != nil {
		return errors.Wrap(err, "write config file")
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidationErrors

	switch strings.ToLower(c.Generation.Provider) {
	case ProviderGemini, ProviderOllama, ProviderOpenRouter:
	default:
		errs = append(errs, ValidationError{
			Field:   "generation.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: gemini, ollama, openrouter", c.Generation.Provider),
		})
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		errs = append(errs, ValidationError{
			Field:   "generation.temperature",
			Message: fmt.Sprintf("temperature %.2f out of range, must be between 0.0 and 1.0", c.Generation.Temperature),
		})
	}

	if c.Generation.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "generation.requests_per_minute",
			Message: "must not be negative",
		})
	}

	if c.Conversation.MaxHistory < MinHistory || c.Conversation.MaxHistory > MaxHistory {
		errs = append(errs, ValidationError{
			Field:   "conversation.max_history",
			Message: fmt.Sprintf("%d out of range, must be between %d and %d", c.Conversation.MaxHistory, MinHistory, MaxHistory),
		})
	}

	for field, raw := range map[string]string{
		"ollama.url":          c.Ollama.URL,
		"openrouter.base_url": c.OpenRouter.BaseURL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	if _, err := storage.ParseKind(c.Storage.Backend); err != nil {
		errs = append(errs, ValidationError{Field: "storage.backend", Message: err.Error()})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "system", "dark", "light":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: system, dark, light", c.UI.Theme),
		})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Errorf("invalid URL '%s'", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("URL '%s' must use http or https", raw)
	}
	if u.Host == "" {
		return errors.Errorf("URL '%s' has no host", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - MOHADITH_PROVIDER: overrides generation.provider
//   - MOHADITH_MODEL: overrides generation.model
//   - MOHADITH_API_KEY: key for the selected provider
//   - GEMINI_API_KEY: overrides credentials.gemini_api_key
//   - OPENROUTER_API_KEY: overrides credentials.openrouter_api_key
//   - MOHADITH_OLLAMA_URL: overrides ollama.url
//   - MOHADITH_STORAGE: overrides storage.backend
//   - MOHADITH_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("MOHADITH_PROVIDER"); provider != "" {
		c.Generation.Provider = strings.ToLower(provider)
	}
	if m := os.Getenv("MOHADITH_MODEL"); m != "" {
		c.Generation.Model = m
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Credentials.GeminiAPIKey = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Credentials.OpenRouterAPIKey = key
	}
	// The generic key wins over the provider-specific ones.
	if key := os.Getenv("MOHADITH_API_KEY"); key != "" {
		switch strings.ToLower(c.Generation.Provider) {
		case ProviderOpenRouter:
			c.Credentials.OpenRouterAPIKey = key
		default:
			c.Credentials.GeminiAPIKey = key
		}
	}
	if u := os.Getenv("MOHADITH_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if backend := os.Getenv("MOHADITH_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if level := os.Getenv("MOHADITH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// APIKey returns the credential for the configured provider. Ollama needs
// none.
func (c *Config) APIKey() string {
	switch strings.ToLower(c.Generation.Provider) {
	case ProviderGemini:
		return c.Credentials.GeminiAPIKey
	case ProviderOpenRouter:
		return c.Credentials.OpenRouterAPIKey
	}
	return ""
}

// Settings projects the configuration onto per-request generation settings.
func (c *Config) Settings() generation.Settings {
	return generation.Settings{
		APIKey:       c.APIKey(),
		Model:        c.Generation.Model,
		Temperature:  float32(c.Generation.Temperature),
		Streaming:    c.Generation.Streaming,
		SystemPrompt: c.Generation.SystemPrompt,
	}
}

// StorageKind returns the parsed storage backend, falling back to file.
func (c *Config) StorageKind() storage.Kind {
	kind, err := storage.ParseKind(c.Storage.Backend)
	if err != nil {
		return storage.KindFile
	}
	return kind
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "ollama.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return errors.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by TOML tag, one section per dot.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, strings.ToLower(part))
		if !ok {
			return reflect.Value{}, errors.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, errors.Errorf("'%s' is a section, not a setting", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, errors.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, errors.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return errors.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return errors.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				lower := strings.ToLower(strVal)
				if lower != "yes" && lower != "no" {
					return errors.Errorf("invalid boolean value: %s", strVal)
				}
				boolVal = lower == "yes"
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		section := root.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// IsSecret reports whether a key holds a credential.
func IsSecret(key string) bool {
	return strings.HasPrefix(strings.ToLower(key), "credentials.")
}

// Clone returns a copy of the configuration. Config holds no references.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Credentials.GeminiAPIKey != "" {
		safe.Credentials.GeminiAPIKey = "[REDACTED]"
	}
	if safe.Credentials.OpenRouterAPIKey != "" {
		safe.Credentials.OpenRouterAPIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
