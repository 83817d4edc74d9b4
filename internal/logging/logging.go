// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel keeps the REPL quiet unless something goes wrong.
const DefaultLevel = zerolog.WarnLevel

// ParseLevel maps a config value to a zerolog level. Empty selects
// DefaultLevel.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return DefaultLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return DefaultLevel, errors.Errorf("unknown log level %q", level)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the global logger at path, or at stderr when path is empty.
// The returned Closer flushes and closes the log file.
func Setup(level, path string) (io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if path == "" {
		console := term.IsTerminal(int(os.Stderr.Fd()))
		Configure(os.Stderr, lvl, console)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	Configure(file, lvl, false)
	return file, nil
}

// Configure installs w as the global log output at lvl. console selects the
// human-readable writer.
func Configure(w io.Writer, lvl zerolog.Level, console bool) {
	out := w
	if console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
