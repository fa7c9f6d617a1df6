/*
Copyright 2021 k0s authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
// Package rackyerr defines the error kinds the core distinguishes so the
// HTTP façade can map them to status codes without inspecting error text.
package rackyerr

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories propagated out of the core.
type Kind int

const (
	// KindInvalidInput: caller-supplied data violates a schema.
	KindInvalidInput Kind = iota
	// KindNotFound: program or file does not exist.
	KindNotFound
	// KindConflict: program already exists or is already running.
	KindConflict
	// KindIO: filesystem or process-control failure.
	KindIO
	// KindInternal: an invariant should have prevented this.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid-input"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindIO:
		return "io"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the typed error every core operation returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidInput(format string, args ...interface{}) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func IO(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindIO, fmt.Sprintf(format, args...), cause)
}

func Internal(format string, args ...interface{}) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise, so the façade always has something to map.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
