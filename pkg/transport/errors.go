// Copyright (C) 2025 Dockside AI (oss@dockside.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"errors"
	"fmt"

	"github.com/docksideai/dockside/pkg/stream"
)

// ErrorKind classifies a failed backend interaction. The retry policy and
// the UI both branch on the kind, never on error strings.
type ErrorKind string

const (
	// KindTimeout means the attempt exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindNetwork means no response reached us at all.
	KindNetwork ErrorKind = "network"

	// KindValidation means the backend rejected the payload. Not retryable.
	KindValidation ErrorKind = "validation"

	// KindServer means a 5xx-equivalent backend failure. Retryable.
	KindServer ErrorKind = "server"

	// KindCircuitOpen means the call was refused locally by the breaker.
	KindCircuitOpen ErrorKind = "circuit_open"

	// KindDecode means a streaming record could not be parsed. The turn
	// fails but text decoded before the bad record is preserved.
	KindDecode ErrorKind = "decode_error"

	// KindLookup marks a failed mention lookup. Non-fatal: it degrades to
	// an empty suggestion list and never reaches the user as an error.
	KindLookup ErrorKind = "lookup_failed"
)

// Retryable reports whether the retry policy may re-attempt this kind.
// Validation failures and breaker refusals fail immediately.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindNetwork, KindServer:
		return true
	}
	return false
}

// ErrCircuitOpen is the sentinel wrapped by breaker-refused calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Error is a classified transport failure.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status when the backend responded, else 0
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from an error chain. Stream decode
// failures map to KindDecode; anything unclassified is treated as a
// network-level failure.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var de *stream.DecodeError
	if errors.As(err, &de) {
		return KindDecode
	}
	return KindNetwork
}

// UserMessage renders an error for display in the transcript. Breaker
// refusals get distinct wording so users understand an immediate retry is
// unlikely to help.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindCircuitOpen:
		return "Service temporarily unavailable — retrying immediately is unlikely to help."
	case KindTimeout:
		return "The request timed out. Please try again."
	case KindValidation:
		return "The request was rejected by the server."
	case KindDecode:
		return "The response was cut short by a malformed server record."
	case KindServer:
		return "The server hit an internal error. Please try again."
	default:
		return "Could not reach the server. Check your connection and try again."
	}
}
