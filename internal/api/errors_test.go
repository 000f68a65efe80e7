package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with message",
			err:      &Error{StatusCode: 401, Message: "JWT expired"},
			expected: "backend error 401: JWT expired",
		},
		{
			name:     "with code",
			err:      &Error{StatusCode: 406, Message: "multiple rows", Code: "PGRST116"},
			expected: "backend error 406 (PGRST116): multiple rows",
		},
		{
			name:     "bare status",
			err:      &Error{StatusCode: 500},
			expected: "backend error 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		target     error
		want       bool
	}{
		{"401 matches unauthorized", 401, ErrUnauthorized, true},
		{"403 matches unauthorized", 403, ErrUnauthorized, true},
		{"404 matches item not found", 404, ErrItemNotFound, true},
		{"429 matches rate limited", 429, ErrRateLimited, true},
		{"500 matches nothing", 500, ErrUnauthorized, false},
		{"401 does not match rate limited", 401, ErrRateLimited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &Error{StatusCode: tt.statusCode})
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{Err: cause, URL: "https://example.supabase.co", Attempt: 2}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if err.Error() != "network error: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}
