// Package common holds the error taxonomy shared by every layer and the JSON
// response helpers used by the HTTP handlers.
package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
	ErrInternal        = errors.New("internal error")
)

// Stable reason codes sent to clients alongside the message.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeMissingAuthorization = "missing_authorization"
	CodeInvalidAPIKey        = "invalid_api_key"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeConflict             = "conflict"
	CodeInvalidInput         = "invalid_input"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

// HTTPStatusFromError maps taxonomy errors to HTTP status codes. Anything
// outside the taxonomy is a 500.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromError returns the reason code for err.
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInternal):
		return CodeInternal
	default:
		return CodeInternal
	}
}

// IsTaxonomy reports whether err belongs to the client-facing taxonomy, i.e.
// whether its message may be shown to the caller.
func IsTaxonomy(err error) bool {
	for _, target := range []error{ErrUnauthenticated, ErrUnauthorized, ErrNotFound, ErrConflict, ErrInvalidInput, ErrRateLimited} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Internal marks a store or dependency failure as ErrInternal while keeping
// the cause in the chain. Taxonomy errors pass through unchanged.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTaxonomy(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
