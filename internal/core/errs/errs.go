// Package errs defines the error taxonomy shared across the platform.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags the category of an Error so callers can branch on it with
// errors.As without parsing messages.
type Kind string

const (
	Validation   Kind = "validation"
	NotFound     Kind = "not_found"
	Forbidden    Kind = "forbidden"
	Auth         Kind = "auth"
	Conflict     Kind = "conflict"
	Database     Kind = "database"
	Cache        Kind = "cache"
	Conversion   Kind = "conversion"
	Config       Kind = "config"
	Io           Kind = "io"
)

// AuthReason narrows an Auth-kind error into a specific authentication failure.
type AuthReason string

const (
	InvalidCredentials AuthReason = "invalid_credentials"
	TokenExpired       AuthReason = "token_expired"
	TokenValidation    AuthReason = "token_validation"
	TokenGeneration    AuthReason = "token_generation"
	AccountInactive    AuthReason = "account_inactive"
	AuthOther          AuthReason = "other"
)

// Error is the concrete error type produced throughout the platform.
type Error struct {
	Kind    Kind
	Reason  AuthReason // only meaningful when Kind == Auth
	Field   string     // offending field/path, when applicable
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.SentinelNotFound) style matching against a
// bare Kind wrapped in a sentinel Error (see the sentinel helpers below).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Field(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

func AuthErr(reason AuthReason, message string) *Error {
	return &Error{Kind: Auth, Reason: reason, Message: message}
}

// sentinel helpers so callers can do errors.Is(err, errs.SentinelNotFound)
var (
	SentinelNotFound   = &Error{Kind: NotFound}
	SentinelValidation = &Error{Kind: Validation}
	SentinelForbidden  = &Error{Kind: Forbidden}
	SentinelConflict   = &Error{Kind: Conflict}
	SentinelAuth       = &Error{Kind: Auth}
)

// Of reports whether err carries the given Kind, unwrapping as needed.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
