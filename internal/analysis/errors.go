package analysis

import (
	"errors"
	"net/http"

	"github.com/dandi-dev/dandi/internal/ledger"
)

// Kind classifies a failed analysis.
type Kind string

const (
	KindMissingKey            Kind = "missing_key"
	KindInvalidKey            Kind = "invalid_key"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindInvalidRepositoryURL  Kind = "invalid_repository_url"
	KindReadmeNotFound        Kind = "readme_not_found"
	KindUpstreamConfiguration Kind = "upstream_configuration"
	KindInternal              Kind = "internal"
)

// Caller-visible messages.
const (
	MsgMissingKey            = "API key is required"
	MsgInvalidKey            = "Invalid API key"
	MsgQuotaExceeded         = "API key has exceeded monthly limit"
	MsgMissingRepositoryURL  = "GitHub URL is required"
	MsgInvalidRepositoryURL  = "Invalid GitHub repository URL"
	MsgReadmeNotFound        = "Could not fetch README.md from the provided GitHub repository"
	MsgUpstreamConfiguration = "Server configuration error"
	MsgInternal              = "Internal server error"
)

// Error is the only error type Orchestrator returns. Message is safe to show to callers;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Status: statusFor(kind), Message: message, Err: err}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindMissingKey, KindInvalidRepositoryURL:
		return http.StatusBadRequest
	case KindInvalidKey:
		return http.StatusUnauthorized
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindReadmeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fromLedger maps a key validation failure onto the caller-visible taxonomy.
func fromLedger(err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrMissingKey):
		return newError(KindMissingKey, MsgMissingKey, err)
	case errors.Is(err, ledger.ErrInvalidKey):
		return newError(KindInvalidKey, MsgInvalidKey, err)
	case errors.Is(err, ledger.ErrQuotaExceeded):
		return newError(KindQuotaExceeded, MsgQuotaExceeded, err)
	case errors.Is(err, ledger.ErrNotConfigured):
		return newError(KindUpstreamConfiguration, MsgUpstreamConfiguration, err)
	default:
		return newError(KindInternal, MsgInternal, err)
	}
}

// AsError extracts an *Error from err, treating anything else as internal.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return newError(KindInternal, MsgInternal, err)
}
