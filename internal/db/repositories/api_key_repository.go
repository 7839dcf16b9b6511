// api_key_repository.go implements APIKeyRepository, the record store behind the key ledger:
// lookup by secret value, owner-scoped CRUD, usage aggregation and the atomic usage increment.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dandi-dev/dandi/internal/db/models"
)

// ErrAPIKeyNotFound is returned by operations that target a key id that does not exist.
var ErrAPIKeyNotFound = errors.New("api key not found")

const apiKeyColumns = `id, name, value, user_id, usage, limit_usage, monthly_limit, created_at`

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByValue returns the keys whose secret equals value. At most two rows are read:
// one means a normal match, two means the uniqueness invariant is broken and the
// caller must not trust either record.
func (r *APIKeyRepository) FindByValue(ctx context.Context, value string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE value = $1 LIMIT 2`

	var keys []*models.APIKey
	if err := r.db.SelectContext(ctx, &keys, query, value); err != nil {
		return nil, fmt.Errorf("failed to look up api key by value: %w", err)
	}
	return keys, nil
}

// GetByID retrieves an API key by ID. Returns nil, nil when it does not exist.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key := &models.APIKey{}
	err := r.db.GetContext(ctx, key, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// ListByUser returns all keys owned by userID, newest first.
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	keys := []*models.APIKey{}
	if err := r.db.SelectContext(ctx, &keys, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// Create inserts a new key. ID and CreatedAt are assigned here; usage always starts at zero.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now().UTC()
	key.Usage = 0

	query := `
		INSERT INTO api_keys (id, name, value, user_id, usage, limit_usage, monthly_limit, created_at)
		VALUES (:id, :name, :value, :user_id, :usage, :limit_usage, :monthly_limit, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// Update persists the owner-editable fields: name, limit_usage and monthly_limit.
// Value and usage are never written here.
func (r *APIKeyRepository) Update(ctx context.Context, key *models.APIKey) error {
	query := `
		UPDATE api_keys
		SET name = $2, limit_usage = $3, monthly_limit = $4
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, key.ID, key.Name, key.LimitUsage, key.MonthlyLimit)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return requireRowAffected(res)
}

// Delete removes a key.
func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return requireRowAffected(res)
}

// IncrementUsage adds one to the key's usage counter in a single statement and returns
// the new value, so concurrent increments for the same key never lose an update.
func (r *APIKeyRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	query := `UPDATE api_keys SET usage = usage + 1 WHERE id = $1 RETURNING usage`

	var usage int64
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&usage)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAPIKeyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment api key usage: %w", err)
	}
	return usage, nil
}

// UsageStatsByUser sums usage and monthly limits over every key owned by userID.
func (r *APIKeyRepository) UsageStatsByUser(ctx context.Context, userID string) (*models.UsageStats, error) {
	query := `
		SELECT COUNT(*)                        AS total_api_keys,
		       COALESCE(SUM(usage), 0)         AS total_usage,
		       COALESCE(SUM(monthly_limit), 0) AS total_limit
		FROM api_keys
		WHERE user_id = $1`

	stats := &models.UsageStats{}
	if err := r.db.GetContext(ctx, stats, query, userID); err != nil {
		return nil, fmt.Errorf("failed to aggregate api key usage: %w", err)
	}
	return stats, nil
}

// CountQuotaExceeded returns how many keys currently reject analyses because their
// enabled monthly limit has been reached.
func (r *APIKeyRepository) CountQuotaExceeded(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE limit_usage AND usage >= monthly_limit`

	var n int64
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count exhausted api keys: %w", err)
	}
	return n, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
