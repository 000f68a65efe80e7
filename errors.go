package facegate

import (
	"errors"
	"fmt"

	"github.com/facegate/client-go/auditlog"
	"github.com/facegate/client-go/gallery"
	"github.com/facegate/client-go/internal/api"
	"github.com/facegate/client-go/internal/envelope"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingServiceKey is returned when no backend service key is provided.
	ErrMissingServiceKey = errors.New("service key is required")

	// ErrMissingBaseURL is returned when no backend base URL is provided.
	ErrMissingBaseURL = errors.New("base URL is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrNotProvisioned is returned when an operation needs the device key
	// and none exists yet.
	ErrNotProvisioned = errors.New("device is not provisioned")

	// ErrAlreadyProvisioned is returned when Provision finds an existing
	// device key.
	ErrAlreadyProvisioned = errors.New("device is already provisioned")

	// ErrNoExtractor is returned when an operation needs face extraction
	// and no extractor was configured.
	ErrNoExtractor = errors.New("no face extractor configured")

	// ErrNoFaceDetected is returned when an image contains no usable face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrNoFacesEnrolled is returned when an enrollment ends with zero
	// usable records.
	ErrNoFacesEnrolled = errors.New("no faces enrolled")

	// ErrProfileUnavailable is returned when the backend cannot be reached
	// or answers with an error.
	ErrProfileUnavailable = errors.New("profile unavailable")

	// ErrProfileInvalid is returned when a fetched profile fails validation.
	ErrProfileInvalid = errors.New("profile invalid")

	// ErrProductNotFound is returned when the product key matches no account.
	ErrProductNotFound = errors.New("product not found")

	// ErrProfileNotFound is returned when the user has no enrollment profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrUnauthorized is returned when the service key is invalid or revoked.
	ErrUnauthorized = errors.New("invalid or revoked service key")

	// ErrRateLimited is returned when the backend rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Sentinels shared with the packages that produce them, re-exported so
// callers only need this package for errors.Is checks.
var (
	// ErrKeyUnwrap is returned when a wrapped item key cannot be recovered.
	ErrKeyUnwrap = envelope.ErrKeyUnwrap

	// ErrInvalidPadding is returned when item decryption yields bad padding.
	ErrInvalidPadding = envelope.ErrInvalidPadding

	// ErrPrivateKey is returned when device key material cannot be parsed.
	ErrPrivateKey = envelope.ErrPrivateKey

	// ErrGalleryInconsistent is returned when the stored gallery fails its
	// integrity checks.
	ErrGalleryInconsistent = gallery.ErrInconsistent

	// ErrCorruptVector is returned when a stored embedding fails the norm
	// check.
	ErrCorruptVector = gallery.ErrCorruptVector

	// ErrAuditCorrupt is returned when the audit log file cannot be parsed.
	ErrAuditCorrupt = auditlog.ErrCorrupt
)

// FacegateError is implemented by all SDK errors.
type FacegateError interface {
	error
	FacegateError() // marker method
}

// APIError represents an HTTP error from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Code       string // PostgREST error code, if the data API produced the error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error %d", e.StatusCode)
}

// FacegateError implements the FacegateError interface.
func (e *APIError) FacegateError() {}

// Is implements errors.Is for sentinel error matching. Any backend
// error also counts as the profile being unavailable.
func (e *APIError) Is(target error) bool {
	if target == ErrProfileUnavailable {
		return true
	}
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure after retries were
// exhausted.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *NetworkError) Is(target error) bool {
	return target == ErrProfileUnavailable
}

// FacegateError implements the FacegateError interface.
func (e *NetworkError) FacegateError() {}

// ValidationError reports everything wrong with a fetched profile.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("profile validation failed: %v", e.Errors)
}

// Is implements errors.Is for sentinel error matching.
func (e *ValidationError) Is(target error) bool {
	return target == ErrProfileInvalid
}

// FacegateError implements the FacegateError interface.
func (e *ValidationError) FacegateError() {}

// ItemError reports a failure while processing one profile item during
// enrollment. Index is the item's position in the profile; Stage names
// the step that failed.
type ItemError struct {
	Index int
	Stage string // "download", "unwrap", "decrypt", "extract", "enroll"
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.Index, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// FacegateError implements the FacegateError interface.
func (e *ItemError) FacegateError() {}

// wrapError converts internal API errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, api.ErrProductNotFound):
		return ErrProductNotFound
	case errors.Is(err, api.ErrProfileNotFound):
		return ErrProfileNotFound
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	return err
}
