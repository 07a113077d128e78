// Copyright 2025 The GameManager Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gmerrors defines the error taxonomy shared by every GameManager
// component: a single {code, message, details?} shape that is always
// surfaced to the upstream client, never swallowed.
package gmerrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the design's error
// handling section. Every error kind has a single shape and a single
// policy; callers switch on Kind, never on Message text.
type Kind string

const (
	KindProtocol      Kind = "protocol"
	KindValidation    Kind = "validation"
	KindTransport     Kind = "transport"
	KindAuth          Kind = "auth"
	KindChannelClosed Kind = "channel-closed"
	KindEngine        Kind = "engine"
	KindBridge        Kind = "bridge"
	KindCommandError  Kind = "command-error"
	KindBackpressure  Kind = "backpressure"
	KindInternal      Kind = "internal"
)

// Error is the typed error every exported GameManager operation returns.
// It marshals to the upstream wire shape {code, message, details}.
type Error struct {
	Kind    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with an optional detail map.
func New(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap creates an Error of the given kind that chains an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail returns a copy of e with an additional detail key set.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Is reports whether err (or any error in its chain) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// As extracts the *Error from err's chain, if any.
func As(err error) (*Error, bool) {
	var ge *Error
	ok := errors.As(err, &ge)
	return ge, ok
}

// Internal wraps an unexpected invariant violation. Callers must still log
// the original error with full context before surfacing this.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// MarshalJSON implements the wire shape explicitly so zero-value Details
// and the unexported cause never leak into the envelope.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Code    Kind           `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}
	return json.Marshal(wire{Code: e.Kind, Message: e.Message, Details: e.Details})
}
