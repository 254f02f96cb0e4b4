// Package faults defines the error taxonomy shared by the organization
// service: domain failures that always reach the caller unmasked, and
// infrastructure failures that the resilience layer may absorb.
package faults

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure
type Kind int

const (
	Unknown Kind = iota
	NotFound
	Unauthorized
	ValidationFailed
	Unavailable
	Timeout
	Rejected
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case ValidationFailed:
		return "validation_failed"
	case Unavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Domain reports whether failures of this kind describe the request itself
// rather than the health of a dependency.
func (k Kind) Domain() bool {
	return k == NotFound || k == Unauthorized || k == ValidationFailed
}

// Transient reports whether an operation failing with this kind may succeed
// if attempted again.
func (k Kind) Transient() bool {
	return k == Timeout || k == Unavailable
}

// Error is a classified failure
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors are mapped from well-known sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Classify(err)
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human readable message of the first classified error,
// falling back to err.Error().
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Classify maps unclassified errors onto the taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Unknown
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled):
		return Unavailable
	case errors.Is(err, sql.ErrNoRows):
		return NotFound
	case errors.Is(err, sql.ErrConnDone):
		return Unavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Unavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Unavailable
	}
	return Unknown
}
