// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for mohadith.
//
// Command: doctor
// Short:   Run health checks on configuration, storage and credentials
//
// Examples:
//   mohadith doctor              Run all local checks
//   mohadith doctor --ping       Also send a test request to the provider
//   mohadith doctor --json       Results as JSON
//
// Status Symbols:
//   [OK]    Pass  - Check successful
//   [!!]    Warn  - Non-critical issue detected
//   [FAIL]  Fail  - Critical issue detected

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/codec"
	"github.com/jeranaias/mohadith/internal/config"
	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/storage"
)

// =============================================================================
// DOCTOR STYLES
// =============================================================================

var (
	checkPassStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	checkWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true)

	checkFailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	fixStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true).
			PaddingLeft(2)
)

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the rendered marker for the check status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return checkPassStyle.Render("[OK]")
	case CheckWarn:
		return checkWarnStyle.Render("[!!]")
	case CheckFail:
		return checkFailStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"`
}

// MarshalJSON adds the status name.
func (c *HealthCheck) MarshalJSON() ([]byte, error) {
	type plain HealthCheck
	return json.Marshal(struct {
		*plain
		Status string `json:"status"`
	}{(*plain)(c), c.Status.String()})
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return result
}

// =============================================================================
// RUN
// =============================================================================

// DoctorOptions select optional checks.
type DoctorOptions struct {
	Ping bool
	JSON bool
}

// pingTimeout bounds the optional provider round trip.
const pingTimeout = 20 * time.Second

// RunDoctor runs every check against cfg and writes the report to w.
// It returns an error when any check failed.
func RunDoctor(ctx context.Context, w io.Writer, cfg *config.Config, blobs storage.BlobStore, backend generation.Backend, opts DoctorOptions) error {
	checks := []*HealthCheck{checkConfig(cfg)}
	checks = append(checks, checkStorage(ctx, blobs)...)
	checks = append(checks, checkCredential(cfg))
	if opts.Ping && backend != nil {
		checks = append(checks, checkPing(ctx, cfg, backend))
	}

	var passed, warned, failed int
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Checks  []*HealthCheck `json:"checks"`
			Healthy bool           `json:"healthy"`
		}{checks, failed == 0}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, TitleStyle.Render("mohadith doctor"))
		fmt.Fprintln(w, RenderSeparator(41))
		for _, c := range checks {
			fmt.Fprintln(w, c.Render())
		}
		fmt.Fprintln(w, RenderSeparator(41))

		parts := []string{fmt.Sprintf("%d passed", passed)}
		if warned > 0 {
			parts = append(parts, checkWarnStyle.Render(fmt.Sprintf("%d warning", warned)))
		}
		if failed > 0 {
			parts = append(parts, checkFailStyle.Render(fmt.Sprintf("%d failed", failed)))
		}
		fmt.Fprintln(w, DimStyle.Render(strings.Join(parts, ", ")))
	}

	if failed > 0 {
		return errors.Errorf("%d health check(s) failed", failed)
	}
	return nil
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func checkConfig(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Config Valid"}
	if err := cfg.Validate(); err != nil {
		check.Status = CheckFail
		check.Message = "Configuration invalid: " + err.Error()
		check.Fix = "Run: mohadith config show"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Configuration valid (provider %s)", cfg.Generation.Provider)
	return check
}

func checkStorage(ctx context.Context, blobs storage.BlobStore) []*HealthCheck {
	read := &HealthCheck{Name: "Storage Readable"}
	data, found, err := blobs.Load(ctx)
	if err != nil {
		read.Status = CheckFail
		read.Message = "Could not read saved conversations: " + err.Error()
		read.Fix = "Check permissions under " + storage.DataDir()
		return []*HealthCheck{read}
	}
	read.Status = CheckPass
	kind := storage.KindOf(blobs)
	if kind == "" {
		kind = "custom"
	}
	read.Message = fmt.Sprintf("Storage readable (%s)", kind)
	if !found {
		read.Message += ", nothing saved yet"
		return []*HealthCheck{read}
	}

	state := &HealthCheck{Name: "Saved State"}
	parsed, err := codec.Parse(data)
	switch {
	case err != nil:
		state.Status = CheckFail
		state.Message = "Saved conversations are unreadable: " + err.Error()
		state.Fix = "The next save replaces them; export anything you need first"
	case len(parsed.Skipped) > 0:
		state.Status = CheckWarn
		state.Message = fmt.Sprintf("%d conversation(s) loaded, %d skipped: %s",
			len(parsed.Snapshot.Conversations), len(parsed.Skipped), strings.Join(parsed.Skipped, "; "))
	default:
		state.Status = CheckPass
		state.Message = fmt.Sprintf("%d conversation(s) saved", len(parsed.Snapshot.Conversations))
	}
	return []*HealthCheck{read, state}
}

func checkCredential(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Credential"}
	switch cfg.Generation.Provider {
	case config.ProviderOllama:
		check.Status = CheckPass
		check.Message = "Ollama needs no API key"
	default:
		if cfg.APIKey() == "" {
			check.Status = CheckFail
			check.Message = fmt.Sprintf("No API key for %s", cfg.Generation.Provider)
			check.Fix = fmt.Sprintf("Run: mohadith config set credentials.%s_api_key <key>", cfg.Generation.Provider)
			return check
		}
		check.Status = CheckPass
		check.Message = fmt.Sprintf("API key set for %s", cfg.Generation.Provider)
	}
	return check
}

func checkPing(ctx context.Context, cfg *config.Config, backend generation.Backend) *HealthCheck {
	check := &HealthCheck{Name: "Provider Reachable"}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := generation.New(backend).TestCredential(ctx, cfg.Settings())
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s did not answer: %v", backend.Name(), err)
		check.Fix = failureHint(err)
		return check
	}
	check.Status = CheckPass
	check.Message = backend.Name() + " answered"
	return check
}
