// Package apperr is the error taxonomy shared by services and handlers.
// Services return *Error values; handlers translate Kind into an HTTP
// status in exactly one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller can react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// HTTPStatus maps k to a response code.  Conflicts are 400 because the
// resolve contract reports "not pending" as a bad request.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Error carries a Kind, a client-safe message and optionally field level
// messages (validation) or the failing operation and cause (internal).
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation wraps aggregated field errors.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Msg: "validation failed", Fields: fields}
}

// BadRequest is a validation error without field detail.
func BadRequest(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindAuthentication, Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindAuthorization, Msg: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Internal records the failing operation with its cause.  The cause is
// never shown to clients outside development.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Op: op, Err: err}
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
