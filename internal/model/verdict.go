package model

import "time"

// RateLimitVerdict is the computed allow/deny result of a rate-limit check.
// It is derived per request and never stored. TotalRequests is the daily
// counter observed at check time, not the lifetime total.
type RateLimitVerdict struct {
	RemainingRequests int       `json:"remaining_requests"`
	TotalRequests     int       `json:"total_requests"`
	ResetTime         time.Time `json:"reset_time"`
	Tier              Tier      `json:"tier"`
	IsExceeded        bool      `json:"is_exceeded"`
}

// AnonymousQuota is the ephemeral per-IP counter for unauthenticated callers.
// It lives only in the cache with a one-day TTL and is recreated on the first
// request after expiry; it is never persisted.
type AnonymousQuota struct {
	IPAddress       string    `json:"ip_address"`
	DailyRequests   int       `json:"daily_requests"`
	LastDailyReset  time.Time `json:"last_daily_reset"`
	LastRequestTime time.Time `json:"last_request_time"`
}
