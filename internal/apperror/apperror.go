// Package apperror holds the error kinds the HTTP layer maps to status codes.
package apperror

import (
	"errors"
	"net/http"
	"time"
)

type Kind string

const (
	KindInput           Kind = "input_error"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

// Reason refines an unauthorized error so clients can tell whether logging in
// again will help.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoToken         Reason = "no_token"
	ReasonInvalidToken    Reason = "invalid_token"
	ReasonTokenExpired    Reason = "token_expired"
	ReasonSessionExpired  Reason = "session_expired"
	ReasonPasswordChanged Reason = "password_changed"
	ReasonBadCredentials  Reason = "bad_credentials"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Message string

	// RetryAfter, when positive, is sent as the Retry-After header.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Reason != ReasonNone {
		return string(e.Kind) + " (" + string(e.Reason) + "): " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

// WithRetryAfter returns a copy of e that tells the client when to retry.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	out := *e
	out.RetryAfter = d
	return &out
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Input(message string) *Error {
	return New(KindInput, message)
}

func Unauthorized(reason Reason, message string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason, Message: message}
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func TooManyRequests(message string) *Error {
	return New(KindTooManyRequests, message)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports KindInternal for errors that carry no kind.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
