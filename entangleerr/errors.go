// Package entangleerr defines the typed error taxonomy shared by the
// tree, store, and paramschema packages. Every operation that can fail
// for a reason a caller might want to branch on returns an *Error
// carrying one of the Kind values below, checkable with errors.Is/As
// the way the standard library expects.
package entangleerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindInvalidArgument covers a null/empty namespace, a non-string
	// path, or a non-callable transmit argument.
	KindInvalidArgument Kind = iota
	// KindAlreadyAttached is returned by Attach when the namespace is
	// already registered to a remote.
	KindAlreadyAttached
	// KindNotFound is returned by Unsubscribe when no non-pass-through
	// link matches the given path or id.
	KindNotFound
	// KindPartialFailure is returned by UnsubscribeTree when
	// pass-through links owned by a remote survive the sweep.
	KindPartialFailure
	// KindConflictingMount is returned by Set when the write would
	// overwrite or shadow an attached mount.
	KindConflictingMount
	// KindTypeError covers Push against a non-sequence leaf, or Set at
	// the root with a non-mapping value.
	KindTypeError
	// KindProtocolError is returned by Receive for an unrecognized
	// message kind.
	KindProtocolError
	// KindMissingContext is returned by Receive when an event message
	// arrives with no sender remote handle.
	KindMissingContext
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindAlreadyAttached:
		return "already attached"
	case KindNotFound:
		return "not found"
	case KindPartialFailure:
		return "partial failure"
	case KindConflictingMount:
		return "conflicting mount"
	case KindTypeError:
		return "type error"
	case KindProtocolError:
		return "protocol error"
	case KindMissingContext:
		return "missing context"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by store/tree/paramschema
// operations. Op names the operation that failed (e.g. "attach"), Path
// is the tree path involved if any, and Err wraps an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
