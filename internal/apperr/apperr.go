// Package apperr defines the error taxonomy shared across the backend.
// Every failure surfaced to a handler carries a Kind so the HTTP layer can
// map it to a stable status category without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindInternal is the catch-all for bugs and unclassified failures.
	KindInternal Kind = iota
	// KindUnauthorized means the credential is missing or invalid.
	KindUnauthorized
	// KindForbidden means a role or workflow-order rule was violated.
	KindForbidden
	// KindConflict means the action is invalid for the entity's current state.
	KindConflict
	// KindRateLimited means the weekly session cap was reached.
	KindRateLimited
	// KindNotFound means the entity is absent or not owned by the caller.
	KindNotFound
	// KindUpstreamUnavailable means the generator is out of quota, down,
	// or returned empty/malformed output.
	KindUpstreamUnavailable
	// KindStoreFailure means the backing store errored, including
	// constraint violations.
	KindStoreFailure
	// KindValidation means the input failed shape or range constraints.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindStoreFailure:
		return "store_failure"
	case KindValidation:
		return "validation_failure"
	default:
		return "internal"
	}
}

// Error is a classified application error. Msg is safe to show to callers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a caller-visible message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. The wrapped error is kept for logs,
// only Msg reaches the client.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, KindInternal if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-visible message of a classified error, or a
// generic one for unclassified errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// HTTPStatus maps an error's Kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
