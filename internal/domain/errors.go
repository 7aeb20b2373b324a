package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers of the core.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindExpired         Kind = "expired"
	KindTooManyAttempts Kind = "too_many_attempts"
	KindWrongCode       Kind = "wrong_code"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindInternal        Kind = "internal"
)

// Error is a structured, caller-visible error: a kind plus a human message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind, so the sentinels
// below match any error built with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors for the application.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrExpired         = &Error{Kind: KindExpired, Message: "code expired"}
	ErrTooManyAttempts = &Error{Kind: KindTooManyAttempts, Message: "too many wrong attempts"}
	ErrWrongCode       = &Error{Kind: KindWrongCode, Message: "wrong code"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidInput    = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrInternal        = &Error{Kind: KindInternal, Message: "internal error"}
)

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func Invalid(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// Internal wraps an unexpected failure (storage, crypto) that must not be swallowed.
func Internal(msg string, cause error) error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
