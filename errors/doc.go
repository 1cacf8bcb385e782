// Package errors provides shared error values and classification
// predicates for the careflow control surface.
//
// Sentinel errors for common boundary conditions:
//   - ErrThreadNotFound: no thread exists for the id
//   - ErrThreadBusy: another executor owns the thread right now
//   - ErrInvalidTransition: operation not valid for the current status
//   - ErrUnauthorized / ErrForbidden: credential problems
//   - ErrRateLimited: the server shed the call
//   - ErrUnavailable: the server is unreachable
//
// Predicates classify errors that crossed a process boundary and lost
// their concrete type:
//
//	if errors.IsInvalidTransition(err) {
//	    // thread was not pending human review
//	}
//	if errors.IsRetryable(err) {
//	    // back off and try again
//	}
package errors
