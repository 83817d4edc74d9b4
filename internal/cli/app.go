// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wires configuration, storage, backend and session controller.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/mohadith/internal/cloud"
	"github.com/jeranaias/mohadith/internal/config"
	"github.com/jeranaias/mohadith/internal/gemini"
	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/logging"
	"github.com/jeranaias/mohadith/internal/ollama"
	"github.com/jeranaias/mohadith/internal/session"
	"github.com/jeranaias/mohadith/internal/storage"
	"github.com/jeranaias/mohadith/internal/store"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options are the global command-line overrides.
type Options struct {
	ConfigPath string
	Provider   string
	Model      string
	Storage    string
	LogLevel   string
}

// LoadConfig reads the configuration and applies command-line overrides.
func LoadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFrom(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.Provider != "" {
		cfg.Generation.Provider = strings.ToLower(opts.Provider)
	}
	if opts.Model != "" {
		cfg.Generation.Model = opts.Model
	}
	if opts.Storage != "" {
		cfg.Storage.Backend = opts.Storage
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	return cfg, nil
}

// configFile returns the file a running session should watch.
func (o Options) configFile() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if _, err := os.Stat(config.PathJSON()); err == nil {
		if _, err := os.Stat(config.PathTOML()); err != nil {
			return config.PathJSON()
		}
	}
	return config.PathTOML()
}

// NewBackend creates the generation backend for the configured provider.
func NewBackend(cfg *config.Config) (generation.Backend, error) {
	switch strings.ToLower(cfg.Generation.Provider) {
	case config.ProviderGemini:
		return gemini.New(gemini.Config{DefaultModel: cfg.Generation.Model}), nil
	case config.ProviderOllama:
		return ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.Ollama.URL,
			DefaultModel: cfg.Generation.Model,
		}), nil
	case config.ProviderOpenRouter:
		return cloud.New(cloud.Config{
			BaseURL:      cfg.OpenRouter.BaseURL,
			DefaultModel: cfg.Generation.Model,
		}), nil
	}
	return nil, errors.Errorf("unknown provider %q", cfg.Generation.Provider)
}

// =============================================================================
// APP
// =============================================================================

// App is one wired session: a store loaded from storage and a controller
// generating into it.
type App struct {
	Options    Options
	Config     *config.Holder
	Blobs      storage.BlobStore
	Store      *store.Store
	Client     *generation.Client
	Controller *session.Controller
	Contexts   *FileContexts

	Out    io.Writer
	ErrOut io.Writer

	printer   *streamPrinter
	logCloser io.Closer
}

// Deps are the parts of an App that callers may supply directly.
type Deps struct {
	Config  *config.Config
	Blobs   storage.BlobStore
	Backend generation.Backend
	Out     io.Writer
	ErrOut  io.Writer

	// Interactive enables the spinner and Markdown rendering when the
	// configuration asks for them.
	Interactive bool
}

// NewApp loads configuration, sets up logging and opens storage.
func NewApp(ctx context.Context, opts Options, out, errOut io.Writer) (*App, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}

	logCloser, err := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, errors.Wrap(err, "set up logging")
	}

	blobs, err := storage.Open(cfg.StorageKind(), cfg.Storage.Path)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	backend, err := NewBackend(cfg)
	if err != nil {
		blobs.Close()
		logCloser.Close()
		return nil, err
	}

	app, err := Assemble(ctx, Deps{
		Config:      cfg,
		Blobs:       blobs,
		Backend:     backend,
		Out:         out,
		ErrOut:      errOut,
		Interactive: IsStdoutTTY(),
	})
	if err != nil {
		blobs.Close()
		logCloser.Close()
		return nil, err
	}
	app.Options = opts
	app.logCloser = logCloser
	return app, nil
}

// Assemble builds an App from ready dependencies and loads saved state.
// A state that cannot be read is logged and replaced by an empty one.
func Assemble(ctx context.Context, d Deps) (*App, error) {
	if d.Config == nil || d.Blobs == nil || d.Backend == nil {
		return nil, errors.New("assemble: config, blobs and backend are required")
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	if d.ErrOut == nil {
		d.ErrOut = io.Discard
	}

	holder := config.NewHolder(d.Config)
	st, err := session.LoadStore(ctx, d.Blobs, store.WithMaxHistory(d.Config.Conversation.MaxHistory))
	if err != nil {
		log.Error().Err(err).Msg("could not read saved conversations, starting fresh")
		fmt.Fprintf(d.ErrOut, "%s could not read saved conversations: %v\n", WarningStyle.Render("[WARN]"), err)
	}

	app := &App{
		Config: holder,
		Blobs:  d.Blobs,
		Store:  st,
		Client: generation.New(d.Backend, generation.WithRateLimit(d.Config.Generation.RequestsPerMinute)),
		Out:    d.Out,
		ErrOut: d.ErrOut,
	}

	ui := d.Config.UI
	render := NewRenderer(ui.Theme, GetTerminalWidth()-4, d.Interactive && ui.RenderMarkdown)
	var spinners func() *Spinner
	if d.Interactive && ui.ShowSpinner {
		spinners = func() *Spinner { return StartSpinner(d.ErrOut, "thinking...") }
	}
	app.printer = newStreamPrinter(d.Out, render, spinners)
	app.Contexts = NewFileContexts(func() bool {
		return holder.Get().Conversation.ContextAwareness
	})

	app.Controller = session.New(st, app.Client,
		session.WithPersister(&session.StorePersister{Store: st, Blobs: d.Blobs}),
		session.WithSettings(func() generation.Settings { return holder.Get().Settings() }),
		session.WithContextProvider(app.Contexts),
		session.WithNotifier(app.printer),
		session.WithAutoTitle(true),
	)
	return app, nil
}

// ApplyConfig swaps in a reloaded configuration. Provider and storage
// changes take effect on the next start.
func (a *App) ApplyConfig(cfg *config.Config) {
	prev := a.Config.Get()
	a.Config.Set(cfg)
	a.Store.SetMaxHistory(cfg.Conversation.MaxHistory)
	if prev.Generation.Provider != cfg.Generation.Provider || prev.Storage != cfg.Storage {
		log.Warn().Msg("provider or storage changed; restart to apply")
	}
}

// Settings returns the current generation settings.
func (a *App) Settings() generation.Settings {
	return a.Config.Get().Settings()
}

// Persist saves the store now.
func (a *App) Persist() {
	a.Controller.Persist()
}

// Close waits for in-flight turns, saves and releases storage.
func (a *App) Close() error {
	a.Controller.Close()
	a.Controller.Persist()
	err := a.Blobs.Close()
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return err
}
