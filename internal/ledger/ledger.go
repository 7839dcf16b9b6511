// Package ledger admits API keys and accounts for their usage. A key is admitted when it
// matches exactly one stored record and that record's quota is not exhausted; usage is
// charged once per successful analysis.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/db/models"
	"github.com/dandi-dev/dandi/internal/telemetry"
)

var (
	// ErrMissingKey is returned when no key was supplied.
	ErrMissingKey = errors.New("api key is required")
	// ErrInvalidKey is returned when the key matches no record, more than one record,
	// or a record outside the caller's scope.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrQuotaExceeded is returned when the key's enabled monthly limit is used up.
	ErrQuotaExceeded = errors.New("api key has exceeded monthly limit")
	// ErrNotConfigured is returned when the ledger has no record store.
	ErrNotConfigured = errors.New("api key store is not configured")
)

// Store is the subset of the API key repository the ledger needs.
type Store interface {
	FindByValue(ctx context.Context, value string) ([]*models.APIKey, error)
	IncrementUsage(ctx context.Context, id string) (int64, error)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOwnerScope only admits keys owned by the principal that principal reports.
// Requests without a principal are rejected.
func WithOwnerScope(principal auth.PrincipalFunc) Option {
	return func(l *Ledger) {
		l.principal = principal
	}
}

// Ledger validates keys against a Store.
type Ledger struct {
	store     Store
	principal auth.PrincipalFunc
}

// New creates a Ledger.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Validate looks up rawKey and returns its record when the key may be used.
func (l *Ledger) Validate(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		return nil, ErrMissingKey
	}
	if l.store == nil {
		slog.Error("api key validation attempted without a configured store")
		return nil, ErrNotConfigured
	}

	hint := KeyHint(rawKey)
	slog.Debug("validating api key", "key", hint)

	matches, err := l.store.FindByValue(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	switch len(matches) {
	case 0:
		slog.Info("api key rejected: no matching record", "key", hint)
		return nil, ErrInvalidKey
	case 1:
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		slog.Error("api key integrity violation: value shared by multiple records", "key", hint, "ids", ids)
		return nil, ErrInvalidKey
	}

	key := matches[0]
	if l.principal != nil {
		userID, ok := l.principal(ctx)
		if !ok || !key.OwnedBy(userID) {
			slog.Info("api key rejected: not owned by the current principal", "key", hint, "key_id", key.ID)
			return nil, ErrInvalidKey
		}
	}
	if key.QuotaExceeded() {
		slog.Info("api key rejected: monthly limit reached", "key_id", key.ID, "usage", key.Usage, "monthly_limit", key.MonthlyLimit)
		return nil, ErrQuotaExceeded
	}
	return key, nil
}

// RecordUsage charges one use to the key. Failures are logged and counted, never returned:
// the analysis the caller paid for has already succeeded.
func (l *Ledger) RecordUsage(ctx context.Context, keyID string) {
	if l.store == nil {
		return
	}
	usage, err := l.store.IncrementUsage(ctx, keyID)
	if err != nil {
		telemetry.UsageRecordFailuresTotal.Inc()
		slog.Error("failed to record api key usage", "key_id", keyID, "error", err)
		return
	}
	slog.Debug("recorded api key usage", "key_id", keyID, "usage", usage)
}

// KeyHint returns a log-safe prefix of a key.
func KeyHint(rawKey string) string {
	const visible = 8
	if len(rawKey) <= visible {
		return "***"
	}
	return rawKey[:visible] + "..."
}
