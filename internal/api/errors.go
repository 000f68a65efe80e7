package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Common backend errors that can be checked with errors.Is.
var (
	// ErrUnauthorized indicates the service key is invalid or revoked.
	ErrUnauthorized = errors.New("invalid or revoked service key")
	// ErrProductNotFound indicates no product row matches the product key.
	ErrProductNotFound = errors.New("product not found")
	// ErrProfileNotFound indicates the user has no enrollment profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrItemNotFound indicates the storage object does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Error represents an HTTP error from the backend.
type Error struct {
	StatusCode int
	Message    string
	// Code is the PostgREST error code, when the data API produced the
	// error. Storage errors leave it empty.
	Code string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *Error) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 404:
		return target == ErrItemNotFound
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a transport-level failure after retries were
// exhausted.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// parseErrorResponse builds an *Error from a non-2xx response. Both error
// body shapes the backend produces are understood: PostgREST sends
// {"code","message",...}, storage sends {"error","message",...}.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Message
		if message == "" {
			message = errResp.Reason
		}
		if message != "" {
			return &Error{
				StatusCode: resp.StatusCode,
				Message:    message,
				Code:       errResp.Code,
			}
		}
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
