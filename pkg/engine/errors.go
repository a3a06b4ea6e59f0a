// Package engine provides the per-host execution core: connection
// lifecycle, operation dispatch through a pluggable connector, and the
// fact facade tying hosts to the fact registry and run-scoped cache.
package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors so callers can branch on the
// failure class without string matching.
type ErrorKind string

const (
	// ErrorKindPrecondition indicates an operation was attempted before
	// its prerequisites held, for example connecting a host that has no
	// run state bound.
	ErrorKindPrecondition ErrorKind = "precondition"

	// ErrorKindUnknownFact indicates a fact name absent from the registry.
	ErrorKindUnknownFact ErrorKind = "unknown_fact"

	// ErrorKindFactUnavailable indicates a fact could not be resolved
	// because the host connection failed.
	ErrorKindFactUnavailable ErrorKind = "fact_unavailable"

	// ErrorKindUnsupported indicates an operation the named fact does
	// not implement, for example creating a read-only fact.
	ErrorKindUnsupported ErrorKind = "unsupported"
)

// Error represents a classified engine error with host and fact context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Host is the host name the error relates to, if applicable.
	Host string `json:"host,omitempty"`

	// Fact is the fact name the error relates to, if applicable.
	Fact string `json:"fact,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Host != "" {
		msg += fmt.Sprintf(" (host=%s)", e.Host)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewPreconditionError creates a precondition failure for host.
func NewPreconditionError(host, message string) *Error {
	return &Error{
		Kind:    ErrorKindPrecondition,
		Message: message,
		Host:    host,
	}
}

// NewUnknownFactError creates an unknown-fact error.
func NewUnknownFactError(host, fact string) *Error {
	return &Error{
		Kind:    ErrorKindUnknownFact,
		Message: fmt.Sprintf("no fact named %q is registered", fact),
		Host:    host,
		Fact:    fact,
	}
}

// NewFactUnavailableError creates a fact-unavailable error for a fact
// whose host could not be reached.
func NewFactUnavailableError(host, fact string) *Error {
	return &Error{
		Kind:    ErrorKindFactUnavailable,
		Message: fmt.Sprintf("fact %q unavailable: host connection failed", fact),
		Host:    host,
		Fact:    fact,
	}
}

// NewUnsupportedError creates an unsupported-operation error.
func NewUnsupportedError(host, fact, operation string) *Error {
	return &Error{
		Kind:    ErrorKindUnsupported,
		Message: fmt.Sprintf("fact %q does not support %s", fact, operation),
		Host:    host,
		Fact:    fact,
	}
}

// kindIs reports whether err carries the given classification.
func kindIs(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsPrecondition returns true if the error is a precondition failure.
func IsPrecondition(err error) bool {
	return kindIs(err, ErrorKindPrecondition)
}

// IsUnknownFact returns true if the error names an unregistered fact.
func IsUnknownFact(err error) bool {
	return kindIs(err, ErrorKindUnknownFact)
}

// IsFactUnavailable returns true if the error is a fact resolution
// blocked by a failed connection.
func IsFactUnavailable(err error) bool {
	return kindIs(err, ErrorKindFactUnavailable)
}

// IsUnsupported returns true if the error is an unsupported fact operation.
func IsUnsupported(err error) bool {
	return kindIs(err, ErrorKindUnsupported)
}
