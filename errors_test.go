package careflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("intent", "must not be empty")
	want := "invalid intent: must not be empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestExecutionError(t *testing.T) {
	cause := fmt.Errorf("model overloaded")
	err := &ExecutionError{Node: "safety_review", Attempts: 3, Err: cause}

	want := "node safety_review failed after 3 attempts: model overloaded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}

func TestTransitionError(t *testing.T) {
	err := &TransitionError{ThreadID: "thr_abc", From: StatusCompleted, Op: "resume"}
	want := "invalid state transition: resume on thread thr_abc in status completed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPersistenceError(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := &PersistenceError{Op: "save", ThreadID: "thr_abc", Err: cause}

	want := "checkpoint save for thread thr_abc: database is locked"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}

func TestErrorPredicates(t *testing.T) {
	validation := NewValidationError("intent", "empty")
	execution := &ExecutionError{Node: "draft", Attempts: 1, Err: fmt.Errorf("boom")}
	transition := &TransitionError{ThreadID: "thr_x", From: StatusDrafting, Op: "resume"}
	persistence := &PersistenceError{Op: "load", ThreadID: "thr_x", Err: fmt.Errorf("gone")}

	tests := []struct {
		name string
		pred func(error) bool
		hit  error
	}{
		{"IsValidation", IsValidation, validation},
		{"IsExecution", IsExecution, execution},
		{"IsTransition", IsTransition, transition},
		{"IsPersistence", IsPersistence, persistence},
	}

	all := []error{validation, execution, transition, persistence}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, err := range all {
				got := tt.pred(err)
				want := err == tt.hit
				if got != want {
					t.Errorf("%s(%T) = %v, want %v", tt.name, err, got, want)
				}
			}
			if tt.pred(nil) {
				t.Errorf("%s(nil) = true", tt.name)
			}

			// Predicates see through wrapping
			wrapped := fmt.Errorf("run thread: %w", tt.hit)
			if !tt.pred(wrapped) {
				t.Errorf("%s(wrapped) = false, want true", tt.name)
			}
		})
	}
}
