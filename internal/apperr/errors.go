// Package apperr defines the typed error taxonomy shared by the identity and
// billing services. Every domain failure is tagged with a Kind at the point
// of detection; the Kind carries the HTTP status the boundary should use.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	InvalidCredentials
	InvalidOrExpiredToken
	Unauthorized
	NotConfigured
	UpstreamFailure
	ValidationFailure
)

var kindNames = map[Kind]string{
	Internal:              "internal",
	NotFound:              "not_found",
	Conflict:              "conflict",
	InvalidCredentials:    "invalid_credentials",
	InvalidOrExpiredToken: "invalid_or_expired_token",
	Unauthorized:          "unauthorized",
	NotConfigured:         "not_configured",
	UpstreamFailure:       "upstream_failure",
	ValidationFailure:     "validation_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// HTTPStatus returns the status code hint for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidCredentials, Unauthorized:
		return http.StatusUnauthorized
	case InvalidOrExpiredToken, ValidationFailure:
		return http.StatusBadRequest
	case UpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request.
func (k Kind) Retryable() bool { return k == UpstreamFailure }

// Error is a tagged domain failure. Code identifies the specific failure
// (e.g. "email_in_use") and is what errors.Is compares. Message is safe to
// show to end users; Err holds the underlying cause for logs only.
type Error struct {
	Kind           Kind
	Code           string
	Message        string
	UpstreamStatus int
	Err            error
}

// New returns a sentinel-style error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.UpstreamStatus != 0 {
		msg += fmt.Sprintf(" (upstream status %d)", e.UpstreamStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap copies the sentinel and attaches a cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage copies the sentinel with a different user-facing message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithUpstream copies the sentinel and records the upstream HTTP status.
func (e *Error) WithUpstream(status int, cause error) *Error {
	cp := *e
	cp.UpstreamStatus = status
	cp.Err = cause
	return &cp
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Validation builds a ValidationFailure with the given message.
func Validation(msg string) *Error {
	return New(ValidationFailure, "validation_failed", msg)
}

// ErrUnauthorized is returned when a request carries no usable session.
var ErrUnauthorized = New(Unauthorized, "unauthorized", "authentication required")
