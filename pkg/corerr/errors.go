// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package corerr holds the structural error kinds shared by the bus,
// registry, and CNP manager (spec §7). Soft failures (unknown id, duplicate
// bid, closed negotiation) are reported as bool/zero-value results by their
// callers, not through this package — Error is reserved for precondition
// violations a caller is expected to treat as a programming error.
package corerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a hard precondition failure.
type Kind string

const (
	InvalidArg   Kind = "INVALID_ARG"
	Duplicate    Kind = "DUPLICATE"
	InvalidState Kind = "INVALID_STATE"
	Timeout      Kind = "TIMEOUT"
	Cancelled    Kind = "CANCELLED"
	Unknown      Kind = "UNKNOWN"
)

// Error is the structural error type returned for hard preconditions.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on Kind alone, e.g. errors.Is(err, corerr.New(corerr.Timeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, if err is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
