/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package problem

import (
	"errors"
	"fmt"
)

// ErrKind classifies every error surfaced by construction and solving.
type ErrKind string

const (
	KindMalformedProblem ErrKind = "malformed_problem"
	KindUnbounded        ErrKind = "unbounded"
	KindInfeasible       ErrKind = "infeasible"
	KindCancelled        ErrKind = "cancelled"
	KindInternal         ErrKind = "internal"
)

// Error is the error type returned by this package and the solver.
// Entity names the offending timeline, value, group or token when known.
type Error struct {
	Kind   ErrKind
	Entity string
	Reason string
}

// Sentinels for errors.Is. A *Error matches the sentinel of its kind.
var (
	ErrMalformedProblem = &Error{Kind: KindMalformedProblem}
	ErrUnbounded        = &Error{Kind: KindUnbounded}
	ErrInfeasible       = &Error{Kind: KindInfeasible}
	ErrCancelled        = &Error{Kind: KindCancelled}
	ErrInternal         = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	switch {
	case e.Entity != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Entity)
	default:
		return string(e.Kind)
	}
}

// Is reports whether target is the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.Reason == ""
}

// Malformed builds a MalformedProblem error for entity.
func Malformed(entity, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedProblem, Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// Errorf builds an error of the given kind.
func Errorf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or "" when err is not a *Error.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// EntityOf returns the entity name carried by err, if any.
func EntityOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Entity
	}
	return ""
}
