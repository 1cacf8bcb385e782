// Package client is the Go SDK for the careflow HTTP API.
package client

import (
	"errors"
	"fmt"
)

// Standard sentinel errors mapped from response status codes.
var (
	// ErrNotFound indicates the thread does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates invalid or missing credentials.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrForbidden indicates the credential's role does not cover the
	// operation.
	ErrForbidden = errors.New("permission denied")

	// ErrConflict indicates the thread is not in a state that accepts
	// the operation, or is busy on another request.
	ErrConflict = errors.New("conflicting thread state")

	// ErrRateLimited indicates the mutation rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBadRequest indicates the request was malformed or failed
	// validation.
	ErrBadRequest = errors.New("bad request")

	// ErrServerError indicates a server-side failure.
	ErrServerError = errors.New("server error")
)

// APIError is an error response from the careflow API.
type APIError struct {
	// StatusCode is the HTTP status returned.
	StatusCode int

	// Code is the machine-readable error code from the response body,
	// e.g. "not_found" or "invalid_state".
	Code string

	// Message is the error message from the response body.
	Message string

	// Endpoint is the path that was called.
	Endpoint string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("careflow API error (%d %s) at %s: %s",
			e.StatusCode, e.Code, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("careflow API error (%d) at %s: %s",
		e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap returns the sentinel error for the status code.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 429:
		return ErrRateLimited
	default:
		if e.StatusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsNotFound reports whether the error indicates a missing thread.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether the error indicates the thread rejected
// the operation in its current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRateLimited reports whether the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether the error is transient and the request
// can be repeated.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}
	return false
}
