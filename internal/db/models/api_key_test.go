package models

import "testing"

func TestAPIKey_QuotaExceeded(t *testing.T) {
	tests := []struct {
		name string
		key  APIKey
		want bool
	}{
		{"limit disabled", APIKey{Usage: 5000, LimitUsage: false, MonthlyLimit: 1000}, false},
		{"under limit", APIKey{Usage: 999, LimitUsage: true, MonthlyLimit: 1000}, false},
		{"at limit", APIKey{Usage: 1000, LimitUsage: true, MonthlyLimit: 1000}, true},
		{"over limit", APIKey{Usage: 1001, LimitUsage: true, MonthlyLimit: 1000}, true},
		{"zero limit rejects unused key", APIKey{Usage: 0, LimitUsage: true, MonthlyLimit: 0}, true},
		{"zero limit ignored when disabled", APIKey{Usage: 0, LimitUsage: false, MonthlyLimit: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.QuotaExceeded(); got != tt.want {
				t.Errorf("QuotaExceeded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIKey_OwnedBy(t *testing.T) {
	owner := "user-1"
	key := APIKey{UserID: &owner}

	if !key.OwnedBy("user-1") {
		t.Error("OwnedBy(owner) = false, want true")
	}
	if key.OwnedBy("user-2") {
		t.Error("OwnedBy(other) = true, want false")
	}
	if key.OwnedBy("") {
		t.Error("OwnedBy(\"\") = true, want false")
	}
	if (&APIKey{}).OwnedBy("user-1") {
		t.Error("ownerless key reported as owned")
	}
}

func TestUsageStats_UsagePercentage(t *testing.T) {
	tests := []struct {
		name  string
		stats UsageStats
		want  int64
	}{
		{"no limit", UsageStats{TotalUsage: 10}, 0},
		{"half", UsageStats{TotalUsage: 500, TotalLimit: 1000}, 50},
		{"rounds up", UsageStats{TotalUsage: 2, TotalLimit: 3}, 67},
		{"rounds down", UsageStats{TotalUsage: 1, TotalLimit: 3}, 33},
		{"over", UsageStats{TotalUsage: 1500, TotalLimit: 1000}, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.UsagePercentage(); got != tt.want {
				t.Errorf("UsagePercentage() = %d, want %d", got, tt.want)
			}
		})
	}
}
