// Package models defines the database model types for the key ledger.
// Each type corresponds to a database table and uses struct tags for both JSON serialization and sqlx row scanning.
package models

import "time"

// APIKey is a caller credential together with its usage accounting.
// Value is the bearer secret itself; it is unique across all keys and never changes once issued.
type APIKey struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Value        string    `json:"value" db:"value"`
	UserID       *string   `json:"user_id" db:"user_id"` // nil in unauthenticated deployments
	Usage        int64     `json:"usage" db:"usage"`
	LimitUsage   bool      `json:"limit_usage" db:"limit_usage"`
	MonthlyLimit int64     `json:"monthly_limit" db:"monthly_limit"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// QuotaExceeded reports whether the key must reject new analyses.
// A limit of 0 with limiting enabled rejects everything.
func (k *APIKey) QuotaExceeded() bool {
	return k.LimitUsage && k.Usage >= k.MonthlyLimit
}

// OwnedBy reports whether the key belongs to the given principal.
func (k *APIKey) OwnedBy(userID string) bool {
	return userID != "" && k.UserID != nil && *k.UserID == userID
}

// UsageStats aggregates the keys owned by one principal.
type UsageStats struct {
	TotalAPIKeys int64 `json:"totalApiKeys" db:"total_api_keys"`
	TotalUsage   int64 `json:"totalUsage" db:"total_usage"`
	TotalLimit   int64 `json:"totalLimit" db:"total_limit"`
}

// UsagePercentage is the share of the combined limit already consumed, rounded to a whole percent.
func (s UsageStats) UsagePercentage() int64 {
	if s.TotalLimit <= 0 {
		return 0
	}
	return (s.TotalUsage*100 + s.TotalLimit/2) / s.TotalLimit
}
