// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration, credential and health commands.
//
// Commands:
//   config show          Print the effective configuration (keys redacted)
//   config get <key>     Print one setting
//   config set <k> <v>   Change one setting in the config file
//   config path          Print the config file location
//   config keys          List every setting
//   test-key             Send a test request with the configured key
//   doctor [--ping]      Run health checks
//
// Examples:
//   mohadith config set generation.provider ollama
//   mohadith config set credentials.gemini_api_key AIza...
//   mohadith config get conversation.max_history

package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mohadith/internal/config"
	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/storage"
)

func newConfigCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return ErrUsage(err.Error(), "mohadith config keys")
			}
			fmt.Fprintln(cmd.OutOrStdout(), displayValue(args[0], value))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setConfigValue(cmd, opts, args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), opts.configFile())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List every setting",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	})
	return cmd
}

// setConfigValue edits the file as written, without environment overrides,
// so keys supplied by the environment are never persisted.
func setConfigValue(cmd *cobra.Command, opts *Options, key, value string) error {
	source := opts.configFile()
	target := opts.ConfigPath
	if target == "" {
		target = config.PathTOML()
	}
	if strings.EqualFold(filepath.Ext(target), ".json") {
		return ErrUsage("config set writes TOML files only", "mohadith -c ~/.mohadith/config.toml config set ...")
	}

	cfg, err := config.ReadFile(source)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return ErrUsage(err.Error(), "mohadith config keys")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, target); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("Set"), key, displayValue(key, value))
	return nil
}

func displayValue(key string, value interface{}) string {
	s := fmt.Sprint(value)
	if config.IsSecret(key) && s != "" {
		return maskSecret(s)
	}
	return s
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// testKeyTimeout bounds the test-key round trip.
const testKeyTimeout = 30 * time.Second

func newTestKeyCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "test-key",
		Short: "Send a test request with the configured credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				return err
			}
			backend, err := NewBackend(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), testKeyTimeout)
			defer cancel()
			var spin *Spinner
			if IsStderrTTY() {
				spin = StartSpinner(cmd.ErrOrStderr(), "contacting "+backend.Name()+"...")
			}
			err = generation.New(backend).TestCredential(ctx, cfg.Settings())
			spin.Stop()
			if err != nil {
				if hint := failureHint(err); hint != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render(hint))
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderStatus("ok")+" "+backend.Name()+" accepted the credential")
			return nil
		},
	}
}

func newDoctorCommand(opts *Options) *cobra.Command {
	var doctor DoctorOptions
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Run health checks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*opts)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), (&HealthCheck{
					Name:    "Config Valid",
					Status:  CheckFail,
					Message: "Configuration invalid: " + err.Error(),
					Fix:     "Edit " + opts.configFile(),
				}).Render())
				return err
			}

			blobs, err := storage.Open(cfg.StorageKind(), cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer blobs.Close()

			backend, err := NewBackend(cfg)
			if err != nil {
				return err
			}
			return RunDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, blobs, backend, doctor)
		},
	}
	cmd.Flags().BoolVar(&doctor.Ping, "ping", false, "send a test request to the provider")
	cmd.Flags().BoolVar(&doctor.JSON, "json", false, "output results as JSON")
	return cmd
}
