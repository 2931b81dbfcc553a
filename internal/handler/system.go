package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

type contextKey string

const adminContextKey contextKey = "admin"

// WithAdmin stores the authenticated admin principal in the request context.
// Set by the bearer-auth middleware before system handlers run.
func WithAdmin(ctx context.Context, principal *service.JWTPrincipal) context.Context {
	return context.WithValue(ctx, adminContextKey, principal)
}

// adminEmail returns the authenticated admin's email, or empty when the
// request was not authenticated.
func adminEmail(ctx context.Context) string {
	if p, ok := ctx.Value(adminContextKey).(*service.JWTPrincipal); ok {
		return p.Email
	}
	return ""
}

// AdminAccounts is the slice of the store the system handler needs for
// account management.
type AdminAccounts interface {
	CreateAdmin(ctx context.Context, admin *model.Admin) error
	ListAdmins(ctx context.Context) ([]model.Admin, error)
}

// SystemHandler serves the admin management API: sessions, API key
// lifecycle, tier policy inspection, and admin accounts.
type SystemHandler struct {
	keys     *service.KeyService
	auth     *service.AuthService
	admins   AdminAccounts
	policies service.TierPolicies
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(keys *service.KeyService, auth *service.AuthService, admins AdminAccounts, policies service.TierPolicies) *SystemHandler {
	return &SystemHandler{
		keys:     keys,
		auth:     auth,
		admins:   admins,
		policies: policies,
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	AdminID   int64  `json:"admin_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// Login authenticates an admin and returns a JWT session token.
// POST /api/v1/system/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	ttl := 24 * time.Hour
	token, err := h.auth.IssueJWT(r.Context(), admin.ID, admin.Email, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int(ttl.Seconds()),
		AdminID:   admin.ID,
		Email:     admin.Email,
		Name:      admin.Name,
	})
}

// Logout invalidates the current session. Since JWTs are stateless, this is
// a no-op on the server side. Clients should discard their token.
// DELETE /api/v1/system/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session invalidated",
	})
}

// ---------------------------------------------------------------------------
// API key management
// ---------------------------------------------------------------------------

// ListAPIKeys returns all key records. Raw tokens are never included; the
// APIKey JSON encoding exposes only the display prefix.
// GET /api/v1/system/keys
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list keys: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// createAPIKeyRequest is the expected payload for CreateAPIKey.
type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Tier        string     `json:"tier"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// createAPIKeyResponse includes the raw token (shown once only).
type createAPIKeyResponse struct {
	Key    string                 `json:"key"`
	APIKey map[string]interface{} `json:"api_key"`
}

// CreateAPIKey issues a new key and returns the raw token in the response.
// This is the only place the token is ever visible.
// POST /api/v1/system/keys
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Key name is required")
		return
	}
	tier, err := model.ParseTier(req.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.keys.Create(r.Context(), service.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Tier:        tier,
		CreatedBy:   adminEmail(r.Context()),
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		Key:    key.Key,
		APIKey: apiKeyToMap(key),
	})
}

// GetAPIKey returns a single key record by ID.
// GET /api/v1/system/keys/{id}
func (h *SystemHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	key, err := h.keys.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiKeyToMap(key))
}

// updateAPIKeyRequest is the expected payload for UpdateAPIKey. Absent fields
// are left unchanged.
type updateAPIKeyRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Tier        *string    `json:"tier"`
	IsActive    *bool      `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UpdateAPIKey edits the mutable attributes of a key.
// PATCH /api/v1/system/keys/{id}
func (h *SystemHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	var req updateAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	params := service.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.Tier != nil {
		tier, err := model.ParseTier(*req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		params.Tier = &tier
	}

	key, err := h.keys.Update(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiKeyToMap(key))
}

// DeactivateAPIKey marks a key inactive. Records are never hard deleted.
// DELETE /api/v1/system/keys/{id}
func (h *SystemHandler) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	key, err := h.keys.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get key: "+err.Error())
		return
	}

	if _, err := h.keys.Deactivate(r.Context(), key.Key); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to deactivate key: "+err.Error())
		return
	}

	key.IsActive = false
	writeJSON(w, http.StatusOK, apiKeyToMap(key))
}

// ---------------------------------------------------------------------------
// Tier policy
// ---------------------------------------------------------------------------

// ListTiers returns the effective quota for each tier plus the anonymous
// allowance.
// GET /api/v1/system/tiers
func (h *SystemHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	p := h.policies.Current()

	resources := make([]map[string]interface{}, 0, len(model.Tiers())+1)
	for _, tier := range model.Tiers() {
		resources = append(resources, map[string]interface{}{
			"tier":             tier,
			"requests_per_day": p.RequestsPerDay(tier),
		})
	}
	resources = append(resources, map[string]interface{}{
		"tier":             model.TierAnonymous,
		"requests_per_day": p.Anonymous,
	})

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// ---------------------------------------------------------------------------
// Admin accounts
// ---------------------------------------------------------------------------

// ListAdmins returns all admin accounts.
// GET /api/v1/system/admins
func (h *SystemHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.admins.ListAdmins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list admins: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: admins,
		Meta:     &model.ResponseMeta{Count: len(admins)},
	})
}

// createAdminRequest is the expected payload for CreateAdmin.
type createAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// CreateAdmin registers a new admin account.
// POST /api/v1/system/admins
func (h *SystemHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin := &model.Admin{
		Email:        req.Email,
		PasswordHash: store.HashPassword(req.Password),
		Name:         req.Name,
		IsActive:     true,
	}
	if err := h.admins.CreateAdmin(r.Context(), admin); err != nil {
		writeError(w, http.StatusConflict, "Failed to create admin: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, admin)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// apiKeyToMap renders a key record for API responses. The raw token is
// replaced with its display prefix.
func apiKeyToMap(key *model.APIKey) map[string]interface{} {
	return map[string]interface{}{
		"id":               key.ID,
		"key_prefix":       key.Prefix(),
		"name":             key.Name,
		"description":      key.Description,
		"tier":             key.Tier,
		"is_active":        key.IsActive,
		"created_by":       key.CreatedBy,
		"created_at":       key.CreatedAt,
		"expires_at":       key.ExpiresAt,
		"total_requests":   key.TotalRequests,
		"daily_requests":   key.DailyRequests,
		"last_daily_reset": key.LastDailyReset,
		"last_used_at":     key.LastUsedAt,
	}
}
