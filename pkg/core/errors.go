package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine can surface.
type ErrorKind string

// Structural kinds: detected before any node runs, fatal to the call.
const (
	ErrCyclicGraph         ErrorKind = "cyclic_graph"
	ErrUnboundVariable     ErrorKind = "unbound_variable"
	ErrUnresolvedReference ErrorKind = "unresolved_reference"
)

// Operational kinds: local to one node; dependents are skipped and the
// run continues.
const (
	ErrUnknownOperation ErrorKind = "unknown_operation"
	ErrInvalidArgument  ErrorKind = "invalid_argument"
	ErrExternalService  ErrorKind = "external_service_failure"
	ErrNotFound         ErrorKind = "not_found"
	ErrTimeout          ErrorKind = "timeout"
)

// Guard kinds: fatal to the call, signalling a malformed or runaway
// graph, or a caller-triggered stop.
const (
	ErrDepthExceeded   ErrorKind = "depth_exceeded"
	ErrSelfReferential ErrorKind = "self_referential"
	ErrCancelled       ErrorKind = "cancelled"
)

// Error is the typed error carried through the resolver, interpreter,
// and primitives. Node is set when the failure is node-local.
type Error struct {
	Kind ErrorKind
	Node string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Node != "" && e.Err != nil:
		return fmt.Sprintf("%s: node %s: %s: %v", e.Kind, e.Node, e.Msg, e.Err)
	case e.Node != "":
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.Node, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NodeError builds a node-local Error.
func NodeError(kind ErrorKind, nodeID, format string, args ...any) *Error {
	return &Error{Kind: kind, Node: nodeID, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Fatal reports whether an error of this kind aborts the whole Execute
// call rather than failing a single node.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrCyclicGraph, ErrUnboundVariable, ErrUnresolvedReference,
		ErrDepthExceeded, ErrSelfReferential, ErrCancelled:
		return true
	default:
		return false
	}
}
