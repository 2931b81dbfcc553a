package handler

import (
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/keygate/keygate/internal/service"
)

// StatusHandler serves the rate-limit status endpoint. It reports the
// caller's current verdict without consuming quota, so it is routed outside
// the quota gate.
type StatusHandler struct {
	quota *service.QuotaTracker
	anon  *service.AnonymousTracker
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(quota *service.QuotaTracker, anon *service.AnonymousTracker) *StatusHandler {
	return &StatusHandler{quota: quota, anon: anon}
}

// Status returns the caller's current rate-limit verdict. Keyed callers are
// identified by the X-API-Key header, everyone else by client IP.
// GET /api/v1/ratelimit/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
		writeJSON(w, http.StatusOK, h.quota.Check(r.Context(), rawKey))
		return
	}

	ip, err := httprate.KeyByIP(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cannot determine client address")
		return
	}
	writeJSON(w, http.StatusOK, h.anon.Check(r.Context(), ip))
}
