// Package apperr defines the closed set of error kinds shared across the
// ingestion and retrieval engine, so the API layer can classify failures
// without string-sniffing wrapped errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed set of machine-readable error classifications.
type Kind string

const (
	BadInput            Kind = "bad_input"
	NotFound            Kind = "not_found"
	Unauthorized        Kind = "unauthorized"
	RateLimited         Kind = "rate_limited"
	UpstreamUnavailable Kind = "upstream_unavailable"
	SchemaMismatch      Kind = "schema_mismatch"
	Cancelled           Kind = "cancelled"
	Internal            Kind = "internal"
)

// Error is a typed error carrying a machine-readable Kind alongside the
// human-readable message and, where applicable, the upstream cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind carrying cause as its
// unwrap target, matching the corpus's fmt.Errorf("...: %w", err) style but
// preserving the classification for the API layer.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise returns Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
