// Package apperr defines the typed error taxonomy returned by the domain
// services. Every rejected operation surfaces one of these kinds to the
// caller; the core never logs-and-swallows a business-rule violation.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure.
type Kind string

const (
	Validation        Kind = "validation"
	InsufficientStock Kind = "insufficient_stock"
	Conflict          Kind = "conflict"
	NotFound          Kind = "not_found"
	State             Kind = "state"
)

// Error is a classified business-rule violation.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a Validation error.
func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, format, args...)
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, format, args...)
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

// Statef builds a State error.
func Statef(format string, args ...interface{}) *Error {
	return New(State, format, args...)
}

// StockError reports a remove-stock request exceeding the available units.
// The requested and available counts are surfaced verbatim; nothing is
// partially applied.
type StockError struct {
	BloodType string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient %s stock: requested %d units, %d available",
		e.BloodType, e.Requested, e.Available)
}

// KindOf returns the classification of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var se *StockError
	if errors.As(err, &se) {
		return InsufficientStock
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
