// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// ErrorKind categorizes backend failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindAuth
	KindQuota
	KindTimeout
	KindPayload
	KindCanceled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindTimeout:
		return "timeout"
	case KindPayload:
		return "payload"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TransportError is any failure reported by a Backend.
type TransportError struct {
	Kind    ErrorKind
	Backend string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError builds a TransportError.
func NewTransportError(kind ErrorKind, backend, message string, cause error) *TransportError {
	return &TransportError{Kind: kind, Backend: backend, Message: message, Cause: cause}
}

// KindOf returns the kind of a TransportError anywhere in err's chain, or
// classifies err from its shape.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var te *TransportError
	if errors.As(err, &te) && te.Kind != KindUnknown {
		return te.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission denied"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return KindQuota
	}
	return KindUnknown
}

// asTransport wraps err as a TransportError unless it already is one.
func asTransport(backend string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Kind: KindOf(err), Backend: backend, Message: "request failed", Cause: err}
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}
