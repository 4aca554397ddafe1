// Package errkind provides the unified error classification used across
// the simulation kernel, adapted from the service layer's ServiceError
// (infrastructure/errors) to the kernel's own taxonomy (spec §7): Misuse,
// NotFound, Conflict, SchemaMismatch, BufferTooSmall and Invariant.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for both programmatic handling and diagnostic
// rendering.
type Kind string

const (
	// Misuse is an API contract violation: concurrent RW borrow,
	// structural mutation during query iteration, re-entrant publish.
	// Fatal to the current tick; the world remains valid.
	Misuse Kind = "misuse"
	// NotFound covers a destroyed entity, an absent component, or an
	// unresolved network id. Recoverable: callers receive false/nil.
	NotFound Kind = "not_found"
	// Conflict covers registration mismatches and replication version
	// skew. Recoverable: the operation is rejected.
	Conflict Kind = "conflict"
	// SchemaMismatch is a serialization failure: declared type id does
	// not match the buffer's. Recoverable per-message.
	SchemaMismatch Kind = "schema_mismatch"
	// BufferTooSmall is a serialization failure: the destination span
	// cannot hold the encoded payload. Recoverable per-message.
	BufferTooSmall Kind = "buffer_too_small"
	// Invariant is an internal bug (generation desync, orphan
	// component). Fatal: the world marks itself Poisoned.
	Invariant Kind = "invariant"
)

// Fatal reports whether errors of this kind poison the world (Invariant)
// or merely abort the current tick/operation (Misuse); all other kinds
// are locally recoverable.
func (k Kind) Fatal() bool {
	return k == Invariant
}

// Error is the structured error type returned by every FDP package.
// Modeled on infrastructure/errors.ServiceError: a stable code, a
// human message, optional structured details, and an optional wrapped
// cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a diagnostic key/value pair and returns e for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Convenience constructors mirroring the per-category helpers in
// infrastructure/errors.

func Misused(message string) *Error {
	return New(Misuse, message)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflicted(message string) *Error {
	return New(Conflict, message)
}

func BadSchema(declared, actual uint32) *Error {
	return New(SchemaMismatch, "declared type id does not match buffer's type id").
		WithDetail("declared", declared).
		WithDetail("actual", actual)
}

func TooSmall(need, have int) *Error {
	return New(BufferTooSmall, "destination span too small").
		WithDetail("need", need).
		WithDetail("have", have)
}

func Invariantf(format string, args ...any) *Error {
	return New(Invariant, fmt.Sprintf(format, args...))
}
