// Package apperr defines the error taxonomy shared by the allocation and
// pricing engine. Request-level failures carry a Kind that callers map to a
// user-visible outcome; per-candidate failures are degraded instead of being
// returned.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	NotFound              Kind = "not_found"
	NoViableCandidate     Kind = "no_viable_candidate"
	ExternalLookupFailure Kind = "external_lookup_failure"
	ConcurrencyConflict   Kind = "concurrency_conflict"
	ValidationFailure     Kind = "validation_failure"
	Internal              Kind = "internal"
)

// Sentinels usable with errors.Is.
var (
	ErrNotFound              = &Error{Kind: NotFound}
	ErrNoViableCandidate     = &Error{Kind: NoViableCandidate}
	ErrExternalLookupFailure = &Error{Kind: ExternalLookupFailure}
	ErrConcurrencyConflict   = &Error{Kind: ConcurrencyConflict}
	ErrValidationFailure     = &Error{Kind: ValidationFailure}
)

// Error is a classified error with an operation name and optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Err != nil {
		return e == t
	}
	return t.Kind == e.Kind
}

// New builds a classified error.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFoundf reports a missing record.
func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, format, args...)
}

// Invalidf reports rejected input.
func Invalidf(op, format string, args ...any) *Error {
	return New(ValidationFailure, op, format, args...)
}

// Conflictf reports a lost compare-and-set.
func Conflictf(op, format string, args ...any) *Error {
	return New(ConcurrencyConflict, op, format, args...)
}

// KindOf returns the kind of the first classified error in the chain, or
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps err to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case ValidationFailure:
		return http.StatusUnprocessableEntity
	case ConcurrencyConflict:
		return http.StatusConflict
	case NoViableCandidate:
		return http.StatusOK
	case ExternalLookupFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
