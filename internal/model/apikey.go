package model

import "time"

// APIKey is the durable record of an issued key. The Key field holds the raw
// secret token; it is unique across all records, used as the cache key, and
// excluded from JSON output (the token is shown exactly once, at creation).
type APIKey struct {
	ID               int64      `json:"id" db:"id"`
	Key              string     `json:"-" db:"api_key"`
	Name             string     `json:"name" db:"name"`
	Description      string     `json:"description" db:"description"`
	Tier             Tier       `json:"tier" db:"tier"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	CreatedBy        string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	TotalRequests    int64      `json:"total_requests" db:"total_requests"`
	DailyRequests    int        `json:"daily_requests" db:"daily_requests"`
	LastDailyReset   time.Time  `json:"last_daily_reset" db:"last_daily_reset"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	AllowedOrigins   string     `json:"allowed_origins,omitempty" db:"allowed_origins"`
	AllowedEndpoints string     `json:"allowed_endpoints,omitempty" db:"allowed_endpoints"`
}

// IsExpired reports whether the key has an expiry set and it has passed.
// A key with no expiry never expires.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Prefix returns the first characters of the raw token for display in
// listings and logs. The full token is never shown after creation.
func (k *APIKey) Prefix() string {
	if len(k.Key) <= 11 {
		return k.Key
	}
	return k.Key[:11]
}
