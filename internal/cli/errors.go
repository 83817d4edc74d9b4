// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for the mohadith CLI.

package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/jeranaias/mohadith/internal/config"
	"github.com/jeranaias/mohadith/internal/generation"
	"github.com/jeranaias/mohadith/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a rejected or missing credential
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitStorageError indicates the state store could not be read or written
	ExitStorageError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError represents invalid arguments.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nExample: %s", e.Reason, e.Example)
	}
	return e.Reason
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // e.g. "conversation", "message"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrNotFound creates a NotFoundError.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ErrUsage creates a UsageError.
func ErrUsage(reason, example string) error {
	return &UsageError{Reason: reason, Example: example}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err in the CLI's error format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return ExitNotFoundError
	}

	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		return ExitConfigError
	}

	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		return ExitStorageError
	}

	switch generation.KindOf(err) {
	case generation.KindAuth:
		return ExitAuthError
	case generation.KindNetwork:
		return ExitNetworkError
	case generation.KindTimeout:
		return ExitTimeoutError
	}
	return ExitGeneralError
}
