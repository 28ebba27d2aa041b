// Package l2err defines the single error taxonomy surfaced by the
// forwarding engine's administrative API, per the core's error design:
// every operation returns one of a small fixed set of sentinel kinds,
// wrapped with operation/resource context. Boundary adapters (the SAI
// object adapter, the CLI, the Python bindings) translate from this
// taxonomy into their own status codes; this package does not know
// about any of them.
package l2err

import (
	"errors"
	"fmt"
)

// Sentinel errors. Compare with errors.Is against the value returned
// from any engine operation.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotInitialized   = errors.New("not initialized")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrTableFull        = errors.New("table full")
	ErrInvalidFrame     = errors.New("invalid frame")
	ErrInternal         = errors.New("internal error")
)

// Error carries the sentinel kind plus the operation and resource it
// was raised against, so callers get an actionable message while still
// being able to errors.Is against the taxonomy.
type Error struct {
	Kind      error
	Operation string
	Resource  string
	Detail    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Operation, e.Kind)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (%s)", e.Resource)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// New constructs an Error for the given sentinel kind.
func New(kind error, operation, resource, detail string) *Error {
	return &Error{Kind: kind, Operation: operation, Resource: resource, Detail: detail}
}

func Invalid(operation, resource, detail string) *Error {
	return New(ErrInvalidParameter, operation, resource, detail)
}

func NotFound(operation, resource string) *Error {
	return New(ErrNotFound, operation, resource, "")
}

func AlreadyExists(operation, resource string) *Error {
	return New(ErrAlreadyExists, operation, resource, "")
}

func Forbidden(operation, resource, detail string) *Error {
	return New(ErrForbidden, operation, resource, detail)
}

func InvalidState(operation, resource, detail string) *Error {
	return New(ErrInvalidState, operation, resource, detail)
}

func TableFull(operation, resource string) *Error {
	return New(ErrTableFull, operation, resource, "")
}

func NotInitialized(operation string) *Error {
	return New(ErrNotInitialized, operation, "", "")
}

// Internal wraps an invariant violation discovered at runtime. This
// path should be unreachable; callers are expected to log it.
func Internal(operation, detail string) *Error {
	return New(ErrInternal, operation, "", detail)
}
