package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/policy"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

type fixture struct {
	system *SystemHandler
	status *StatusHandler
	keys   *service.KeyService
	store  *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c, err := cache.NewMemory(time.Minute, 1000)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	policies := policy.NewProvider(policy.Default())
	keys := service.NewKeyService(st, c, time.Minute, nil, nil)
	auth := service.NewAuthService(st, "test-jwt-secret")
	quota := service.NewQuotaTracker(keys, policies, nil, nil)
	anon := service.NewAnonymousTracker(c, policies, time.Hour, nil, nil)

	return &fixture{
		system: NewSystemHandler(keys, auth, st, policies),
		status: NewStatusHandler(quota, anon),
		keys:   keys,
		store:  st,
	}
}

func (f *fixture) createAdmin(t *testing.T, email, password string) {
	t.Helper()
	admin := &model.Admin{
		Email:        email,
		PasswordHash: store.HashPassword(password),
		Name:         "Test Admin",
		IsActive:     true,
	}
	if err := f.store.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
}

// doJSON invokes a handler directly with an optional JSON body and chi URL
// params, returning the recorded response.
func doJSON(t *testing.T, h http.HandlerFunc, method, target string, body interface{}, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.createAdmin(t, "admin@example.com", "hunter2")

	rec := doJSON(t, f.system.Login, "POST", "/api/v1/system/session",
		loginRequest{Email: "admin@example.com", Password: "hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Error("expected session token in response")
	}
	if resp.Email != "admin@example.com" {
		t.Errorf("email: got %q", resp.Email)
	}

	rec = doJSON(t, f.system.Login, "POST", "/api/v1/system/session",
		loginRequest{Email: "admin@example.com", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password status: got %d, want 401", rec.Code)
	}
}

func TestCreateAPIKeyShowsTokenOnce(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.system.CreateAPIKey, "POST", "/api/v1/system/keys",
		createAPIKeyRequest{Name: "partner", Tier: "standard"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body)
	}

	var created createAPIKeyResponse
	decodeBody(t, rec, &created)
	if !strings.HasPrefix(created.Key, "kg_") {
		t.Errorf("raw token missing from create response: %q", created.Key)
	}
	if created.APIKey["tier"] != "standard" {
		t.Errorf("tier: got %v", created.APIKey["tier"])
	}

	// Listing must not reveal the raw token
	rec = doJSON(t, f.system.ListAPIKeys, "GET", "/api/v1/system/keys", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), created.Key) {
		t.Error("raw token leaked into list response")
	}
	if !strings.Contains(rec.Body.String(), created.Key[:11]) {
		t.Error("list response missing key prefix")
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.system.CreateAPIKey, "POST", "/api/v1/system/keys",
		createAPIKeyRequest{Tier: "free"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, f.system.CreateAPIKey, "POST", "/api/v1/system/keys",
		createAPIKeyRequest{Name: "x", Tier: "platinum"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad tier: got %d, want 400", rec.Code)
	}
}

func TestGetAPIKeyNotFound(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.system.GetAPIKey, "GET", "/api/v1/system/keys/999", nil,
		map[string]string{"id": "999"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}

	rec = doJSON(t, f.system.GetAPIKey, "GET", "/api/v1/system/keys/abc", nil,
		map[string]string{"id": "abc"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: got %d, want 400", rec.Code)
	}
}

func TestUpdateAPIKey(t *testing.T) {
	f := newFixture(t)

	key, err := f.keys.Create(context.Background(), service.CreateParams{Name: "before", Tier: model.TierFree})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTier := "premium"
	rec := doJSON(t, f.system.UpdateAPIKey, "PATCH", fmt.Sprintf("/api/v1/system/keys/%d", key.ID),
		updateAPIKeyRequest{Tier: &newTier}, map[string]string{"id": fmt.Sprint(key.ID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["tier"] != "premium" {
		t.Errorf("tier after update: got %v", body["tier"])
	}
}

func TestDeactivateAPIKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.keys.Create(ctx, service.CreateParams{Name: "victim", Tier: model.TierFree})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doJSON(t, f.system.DeactivateAPIKey, "DELETE", fmt.Sprintf("/api/v1/system/keys/%d", key.ID),
		nil, map[string]string{"id": fmt.Sprint(key.ID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}

	if ok, _ := f.keys.Validate(ctx, key.Key); ok {
		t.Error("key validates after deactivation")
	}
}

func TestListTiers(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.system.ListTiers, "GET", "/api/v1/system/tiers", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var resp struct {
		Resource []map[string]interface{} `json:"resource"`
	}
	decodeBody(t, rec, &resp)
	// Three key tiers plus the anonymous row
	if len(resp.Resource) != 4 {
		t.Errorf("tier rows: got %d, want 4", len(resp.Resource))
	}
}

func TestCreateAndListAdmins(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.system.CreateAdmin, "POST", "/api/v1/system/admins",
		createAdminRequest{Email: "ops@example.com", Password: "pw", Name: "Ops"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), store.HashPassword("pw")) {
		t.Error("password hash leaked into create response")
	}

	rec = doJSON(t, f.system.ListAdmins, "GET", "/api/v1/system/admins", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ops@example.com") {
		t.Error("list response missing created admin")
	}
}

func TestStatusKeyedCaller(t *testing.T) {
	f := newFixture(t)

	key, err := f.keys.Create(context.Background(), service.CreateParams{Name: "status", Tier: model.TierStandard})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/ratelimit/status", nil)
	req.Header.Set("X-API-Key", key.Key)
	rec := httptest.NewRecorder()
	f.status.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var v model.RateLimitVerdict
	decodeBody(t, rec, &v)
	if v.Tier != model.TierStandard {
		t.Errorf("tier: got %s, want %s", v.Tier, model.TierStandard)
	}
	if v.IsExceeded {
		t.Error("fresh key should not be exceeded")
	}
	if v.RemainingRequests != 1000 {
		t.Errorf("remaining: got %d, want 1000", v.RemainingRequests)
	}
}

func TestStatusUnknownKeyDenied(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/ratelimit/status", nil)
	req.Header.Set("X-API-Key", "kg_bogus")
	rec := httptest.NewRecorder()
	f.status.Status(rec, req)

	var v model.RateLimitVerdict
	decodeBody(t, rec, &v)
	if !v.IsExceeded {
		t.Error("unknown key should report exceeded")
	}
}

func TestStatusAnonymousCaller(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/ratelimit/status", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	rec := httptest.NewRecorder()
	f.status.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var v model.RateLimitVerdict
	decodeBody(t, rec, &v)
	if v.Tier != model.TierAnonymous {
		t.Errorf("tier: got %s, want %s", v.Tier, model.TierAnonymous)
	}
	if v.RemainingRequests != 50 {
		t.Errorf("remaining: got %d, want 50", v.RemainingRequests)
	}
}
