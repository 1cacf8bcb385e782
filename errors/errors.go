package errors

import "errors"

// Shared error values for the careflow control surface. The server maps
// these (plus the typed errors in the root package) to response codes;
// the client maps response codes back to them.
var (
	// ErrThreadNotFound indicates no thread exists for the given id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrThreadBusy indicates another executor is already advancing the thread.
	ErrThreadBusy = errors.New("thread is busy")

	// ErrInvalidTransition indicates the operation is not valid for the
	// thread's current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnauthorized indicates missing or rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the server shed the call for rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the server is unreachable.
	ErrUnavailable = errors.New("service unavailable")
)
