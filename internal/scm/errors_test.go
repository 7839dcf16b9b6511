package scm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewAPIError(t *testing.T) {
	wrapped := fmt.Errorf("upstream failure")
	e := NewAPIError(404, "not found", wrapped)
	if e.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", e.StatusCode)
	}
	if e.Message != "not found" {
		t.Errorf("Message = %q, want %q", e.Message, "not found")
	}
	if e.Err != wrapped {
		t.Errorf("Err = %v, want %v", e.Err, wrapped)
	}
}

func TestAPIErrorError(t *testing.T) {
	t.Run("with inner error includes both messages", func(t *testing.T) {
		e := NewAPIError(503, "service unavailable", fmt.Errorf("connection refused"))
		if e.Error() != "service unavailable: connection refused" {
			t.Errorf("Error() = %q", e.Error())
		}
	})

	t.Run("without inner error returns message only", func(t *testing.T) {
		e := NewAPIError(400, "bad request", nil)
		if e.Error() != "bad request" {
			t.Errorf("Error() = %q, want %q", e.Error(), "bad request")
		}
	})
}

func TestAPIErrorUnwrap(t *testing.T) {
	e := NewAPIError(http.StatusNotFound, "failed to fetch repository", ErrRepositoryNotFound)
	if !errors.Is(e, ErrRepositoryNotFound) {
		t.Error("errors.Is(APIError, ErrRepositoryNotFound) = false, want true")
	}
	var apiErr *APIError
	if !errors.As(fmt.Errorf("wrapped: %w", e), &apiErr) || apiErr.StatusCode != 404 {
		t.Error("errors.As did not recover the APIError")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrRepositoryNotFound},
		{http.StatusTooManyRequests, ErrRateLimitExceeded},
		{http.StatusInternalServerError, nil},
		{http.StatusForbidden, nil},
	}
	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
