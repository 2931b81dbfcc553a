package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// QuotaGate returns the middleware that enforces daily quotas on the data
// endpoints. Callers presenting an X-API-Key header are validated and
// charged against their key's tier quota; everyone else is tracked per
// client IP against the anonymous allowance.
//
// Checking and charging are separate steps: the verdict is computed first
// and only admitted requests are counted. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset headers.
func QuotaGate(keys *service.KeyService, quota *service.QuotaTracker, anon *service.AnonymousTracker, policies service.TierPolicies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
				if ok, err := keys.Validate(r.Context(), rawKey); !ok {
					writeAuthError(w, http.StatusUnauthorized, authFailureMessage(err))
					return
				}

				v := quota.Check(r.Context(), rawKey)
				setRateLimitHeaders(w, v, policies.Current().RequestsPerDay(v.Tier))
				if v.IsExceeded {
					writeAuthError(w, http.StatusTooManyRequests, "Daily request quota exceeded")
					return
				}

				quota.Increment(r.Context(), rawKey)
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			v := anon.Check(r.Context(), ip)
			setRateLimitHeaders(w, v, policies.Current().Anonymous)
			if v.IsExceeded {
				writeAuthError(w, http.StatusTooManyRequests, "Daily request quota exceeded")
				return
			}

			anon.Increment(r.Context(), ip)
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuth returns the middleware guarding the management API. It requires
// a valid JWT bearer token and attaches the admin principal to the request
// context for the system handlers.
func AdminAuth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			principal, err := authSvc.ValidateJWT(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := handler.WithAdmin(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authFailureMessage maps a validation error to the client-facing message.
// The message distinguishes key states without echoing the token.
func authFailureMessage(err error) string {
	switch err {
	case service.ErrKeyExpired:
		return "API key has expired"
	case service.ErrKeyRevoked:
		return "API key has been deactivated"
	case service.ErrUnknownKey:
		return "Invalid API key"
	default:
		return "Invalid API key"
	}
}

func setRateLimitHeaders(w http.ResponseWriter, v model.RateLimitVerdict, limit int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.RemainingRequests))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v.ResetTime.Unix(), 10))
}

// clientIP extracts the caller's address. RealIP runs earlier in the chain,
// so RemoteAddr already reflects X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
		},
	})
}
