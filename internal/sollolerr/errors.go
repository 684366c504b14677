// Copyright 2025 The SOLLOL Authors
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

// Package sollolerr defines the error-kind taxonomy shared across the
// routing core, so that an (out-of-scope) HTTP surface can map any error
// returned by this module to a status code without string matching.
package sollolerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	// BadRequest means the inbound payload could not be analyzed.
	BadRequest Kind = "bad_request"

	// NoCapacity means no node satisfied the selection constraints.
	NoCapacity Kind = "no_capacity"

	// UpstreamFailure means the selected node returned an error.
	UpstreamFailure Kind = "upstream_failure"

	// UpstreamTimeout means the deadline passed waiting on a node or coordinator.
	UpstreamTimeout Kind = "upstream_timeout"

	// ModelNotFound means the GGUF resolver could not locate the requested model.
	ModelNotFound Kind = "model_not_found"

	// CoordinatorUnavailable means the coordinator failed to start or become ready.
	CoordinatorUnavailable Kind = "coordinator_unavailable"

	// Cancelled means the caller cancelled the request.
	Cancelled Kind = "cancelled"
)

// httpStatus maps each Kind to the status code an HTTP surface should use.
var httpStatus = map[Kind]int{
	BadRequest:             400,
	NoCapacity:             503,
	UpstreamFailure:        503,
	UpstreamTimeout:        504,
	ModelNotFound:          404,
	CoordinatorUnavailable: 503,
	Cancelled:              499,
}

// Error is the structured error type returned by the routing core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code an HTTP surface should report for e's kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return 500
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
