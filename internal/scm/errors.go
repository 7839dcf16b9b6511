// errors.go defines the error values shared by content-hosting clients.
package scm

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidRepositoryURL is returned when a string is not a GitHub repository URL.
	ErrInvalidRepositoryURL = errors.New("invalid GitHub repository URL")

	// ErrRepositoryNotFound is returned when the host reports the repository as missing.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrFileNotFound is returned when a raw file does not exist on the requested branch.
	ErrFileNotFound = errors.New("file not found")

	// ErrRateLimitExceeded is returned when the host rejects a request for quota reasons.
	ErrRateLimitExceeded = errors.New("API rate limit exceeded")
)

// APIError represents a non-success response from the content-hosting API
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message string, err error) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// ClassifyStatus maps a host HTTP status to the sentinel it represents, or nil when
// the status has no dedicated sentinel.
func ClassifyStatus(statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return ErrRepositoryNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	default:
		return nil
	}
}
