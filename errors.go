package careflow

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before it enters the state
// machine. No thread state is created or mutated when one is returned.
type ValidationError struct {
	Field  string // Input field that failed (e.g., "intent", "action")
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named input field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ExecutionError reports a node invocation that failed after bounded
// retries. The thread halts with status error; the last good checkpoint
// stays readable.
type ExecutionError struct {
	Node     string // Node that failed (e.g., "draft", "safety_review")
	Attempts int    // Total invocation attempts made
	Err      error  // Last underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempts: %v", e.Node, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TransitionError reports an operation that would move a thread along an
// edge the state machine does not define, such as resuming a thread that
// is not pending human review. The operation fails and state is left
// untouched.
type TransitionError struct {
	ThreadID string
	From     Status // Status the thread was in
	Op       string // Operation that was attempted (e.g., "resume")
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s on thread %s in status %s", e.Op, e.ThreadID, e.From)
}

// PersistenceError reports a checkpoint read or write failure. A failed
// write aborts the step: the runner never advances past state that was
// not durably recorded.
type PersistenceError struct {
	Op       string // Operation that failed (e.g., "save", "load_latest")
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkpoint %s for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExecution checks if an error is an ExecutionError.
func IsExecution(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsTransition checks if an error is a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsPersistence checks if an error is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
