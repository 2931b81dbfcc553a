package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// BurstLimit returns an HTTP middleware that caps per-IP request rate over a
// one-minute sliding window. It protects the process from floods; the daily
// quotas enforced by QuotaGate are a separate, durable concern.
func BurstLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// BurstLimitByKey returns an HTTP middleware that caps request rate per API
// key token over a one-minute sliding window. Requests without the header
// share one bucket, so this belongs on routes where the key is mandatory.
func BurstLimitByKey(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return r.Header.Get("X-API-Key"), nil
		}),
	)
}
