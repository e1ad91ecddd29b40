// Package fetch provides the coordination layer between callers and remote
// resource endpoints: a single-flight, cache-aware request coordinator and
// a bounded retry policy driven by a shared failure taxonomy.
package fetch

import (
	"errors"
	"fmt"
)

// Class partitions fetch failures by how callers should react to them.
type Class int

const (
	// ClassTransient marks failures worth retrying: network errors,
	// server errors, anything unclassified.
	ClassTransient Class = iota
	// ClassRateLimited marks a server throttle response. Terminal for the
	// current session; callers surface a distinct "slow down" state.
	ClassRateLimited
	// ClassAbsent marks a resource that legitimately does not exist yet.
	// Callers treat this as a successful empty outcome, not a failure.
	ClassAbsent
	// ClassAuthRequired marks a fetch refused before any network I/O
	// because the session is not ready.
	ClassAuthRequired
	// ClassValidationRejected marks a mutation payload the server refused.
	// Surfaced verbatim, never retried, never invalidates caches.
	ClassValidationRejected
)

// String returns a short label for log fields.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAbsent:
		return "absent"
	case ClassAuthRequired:
		return "auth_required"
	case ClassValidationRejected:
		return "validation_rejected"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure. StatusCode is the HTTP status that
// produced it, when one exists.
type Error struct {
	Class      Class
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("fetch: %s: %s", e.Class, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("fetch: %s: %v", e.Class, e.cause)
	}
	return "fetch: " + e.Class.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a classified error wrapping an underlying cause.
func NewError(class Class, statusCode int, message string, cause error) *Error {
	return &Error{Class: class, StatusCode: statusCode, Message: message, cause: cause}
}

// ErrAuthRequired is returned synchronously when a fetch is attempted while
// the caller-supplied readiness signal reports "not ready".
var ErrAuthRequired = &Error{Class: ClassAuthRequired, Message: "session not ready"}

// ClassOf extracts the Class from an error chain. Unclassified errors are
// transient: anything we cannot name is assumed retryable.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassTransient
}

// IsAbsent reports whether err marks a legitimate absence of data.
func IsAbsent(err error) bool {
	return err != nil && ClassOf(err) == ClassAbsent
}

// IsRateLimited reports whether err marks a server throttle response.
func IsRateLimited(err error) bool {
	return err != nil && ClassOf(err) == ClassRateLimited
}
