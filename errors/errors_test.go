package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrThreadNotFound, true},
		{"wrapped sentinel", fmt.Errorf("get state: %w", ErrThreadNotFound), true},
		{"status code", errors.New("server returned 404"), true},
		{"message", errors.New("thread thr_abc not found"), true},
		{"unrelated", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsInvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrInvalidTransition, true},
		{"wrapped", fmt.Errorf("resume: %w", ErrInvalidTransition), true},
		{"message", errors.New("invalid state transition: resume on thread thr_x in status completed"), true},
		{"conflict code", errors.New("server returned 409"), true},
		{"unrelated", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidTransition(tt.err); got != tt.want {
				t.Errorf("IsInvalidTransition(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(ErrUnauthorized) {
		t.Error("ErrUnauthorized should be an auth error")
	}
	if !IsAuthError(ErrForbidden) {
		t.Error("ErrForbidden should be an auth error")
	}
	if !IsAuthError(errors.New("401 Unauthorized")) {
		t.Error("401 message should be an auth error")
	}
	if IsAuthError(errors.New("connection refused")) {
		t.Error("connection error should not be an auth error")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrUnavailable, true},
		{"refused", errors.New("dial tcp 127.0.0.1:8600: connection refused"), true},
		{"dns", errors.New("no such host"), true},
		{"tls", errors.New("x509: certificate signed by unknown authority"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"unrelated", errors.New("invalid payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrRateLimited) {
		t.Error("rate limited should be retryable")
	}
	if !IsRetryable(errors.New("connection refused")) {
		t.Error("connection errors should be retryable")
	}
	if IsRetryable(ErrInvalidTransition) {
		t.Error("invalid transitions should never be retryable")
	}
	if IsRetryable(ErrUnauthorized) {
		t.Error("auth failures should never be retryable")
	}
	if IsRetryable(ErrThreadNotFound) {
		t.Error("not-found should never be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}
