package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers that translate it to a
// transport status.
type ErrorKind string

// ErrorKind values enumerate the failure classes.
const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindUpstream     ErrorKind = "upstream"
	KindInternal     ErrorKind = "internal"
)

// Error is the error type returned by run operations.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Allowed []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a rejected input field, optionally listing accepted values.
func Validation(field, msg string, allowed ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Field: field, Allowed: allowed}
}

// NotFound reports a missing resource.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Unauthorized reports a failed authenticity check.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Upstream reports a failure of the store or a remote service.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Internal reports an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
