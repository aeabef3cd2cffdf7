// Package errs defines the error-kind taxonomy of §7 of the
// specification and wraps github.com/pkg/errors for stack-preserving
// context at each propagation layer.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error without being a Go error type of its own; every
// operation that can fail returns (or wraps) one of these.
type Kind int

const (
	Config Kind = iota
	Memory
	Timer
	Signal
	Network
	Tracing
	Io
	Protocol
	Permission
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "Config"
	case Memory:
		return "Memory"
	case Timer:
		return "Timer"
	case Signal:
		return "Signal"
	case Network:
		return "Network"
	case Tracing:
		return "Tracing"
	case Io:
		return "Io"
	case Protocol:
		return "Protocol"
	case Permission:
		return "Permission"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// E is a kinded, context-carrying error. The wrapped cause (if any) keeps
// its pkg/errors stack trace.
type E struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *E) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *E) Unwrap() error { return e.Cause }

// New creates a kinded error with a stack trace rooted at the call site.
func New(kind Kind, msg string) error {
	return &E{Kind: kind, Msg: msg, Cause: errors.New(msg)}
}

// Wrap attaches kind and additional context to cause, preserving cause's
// stack trace (or starting one if cause didn't carry one).
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &E{Kind: kind, Msg: msg, Cause: errors.Wrap(cause, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *E.
// Returns (0, false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *E
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err's kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
