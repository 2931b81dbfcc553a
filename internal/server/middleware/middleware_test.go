package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/policy"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// QuotaGate middleware tests
// ---------------------------------------------------------------------------

type gateFixture struct {
	gate http.Handler
	keys *service.KeyService
	st   *store.Store
}

func newGateFixture(t *testing.T, inner http.Handler) *gateFixture {
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
	quota := service.NewQuotaTracker(keys, policies, nil, nil)
	anon := service.NewAnonymousTracker(c, policies, time.Hour, nil, nil)

	if inner == nil {
		inner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	return &gateFixture{
		gate: QuotaGate(keys, quota, anon, policies)(inner),
		keys: keys,
		st:   st,
	}
}

func TestQuotaGateAllowsValidKey(t *testing.T) {
	f := newGateFixture(t, nil)

	key, err := f.keys.Create(context.Background(), service.CreateParams{Name: "caller", Tier: model.TierStandard})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/ping", nil)
	req.Header.Set("X-API-Key", key.Key)
	rr := httptest.NewRecorder()
	f.gate.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", rr.Code, rr.Body)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "1000" {
		t.Errorf("X-RateLimit-Limit: got %q, want 1000", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "1000" {
		t.Errorf("X-RateLimit-Remaining: got %q, want 1000", got)
	}
	if rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("missing X-RateLimit-Reset header")
	}

	// Admission consumed one request
	rec, err := f.st.GetAPIKeyByID(context.Background(), key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID: %v", err)
	}
	if rec.DailyRequests != 1 {
		t.Errorf("daily counter after request: got %d, want 1", rec.DailyRequests)
	}
}

func TestQuotaGateRejectsBadKeys(t *testing.T) {
	f := newGateFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not run for rejected keys")
	}))
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	expired, err := f.keys.Create(ctx, service.CreateParams{Name: "expired", Tier: model.TierFree, ExpiresAt: &past})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	revoked, err := f.keys.Create(ctx, service.CreateParams{Name: "revoked", Tier: model.TierFree})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.keys.Deactivate(ctx, revoked.Key); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	for _, tt := range []struct {
		name   string
		rawKey string
	}{
		{"unknown key", "kg_no-such-token"},
		{"expired key", expired.Key},
		{"revoked key", revoked.Key},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/ping", nil)
			req.Header.Set("X-API-Key", tt.rawKey)
			rr := httptest.NewRecorder()
			f.gate.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status: got %d, want 401", rr.Code)
			}
		})
	}
}

func TestQuotaGateExhaustedKeyGets429(t *testing.T) {
	f := newGateFixture(t, nil)
	ctx := context.Background()

	key, err := f.keys.Create(ctx, service.CreateParams{Name: "exhausted", Tier: model.TierFree})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := f.st.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID: %v", err)
	}
	rec.DailyRequests = 100
	if err := f.st.UpdateAPIKey(ctx, rec); err != nil {
		t.Fatalf("UpdateAPIKey: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/ping", nil)
	req.Header.Set("X-API-Key", key.Key)
	rr := httptest.NewRecorder()
	f.gate.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining: got %q, want 0", got)
	}
}

func TestQuotaGateAnonymousCallers(t *testing.T) {
	f := newGateFixture(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/ping", nil)
	req.RemoteAddr = "198.51.100.9:4321"
	rr := httptest.NewRecorder()
	f.gate.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "50" {
		t.Errorf("X-RateLimit-Limit: got %q, want 50", got)
	}

	// Second request sees the first one counted
	rr = httptest.NewRecorder()
	f.gate.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "49" {
		t.Errorf("X-RateLimit-Remaining on second request: got %q, want 49", got)
	}
}

// ---------------------------------------------------------------------------
// AdminAuth middleware tests
// ---------------------------------------------------------------------------

func newAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return service.NewAuthService(st, "test-jwt-secret")
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	auth := newAuthService(t)

	token, err := auth.IssueJWT(context.Background(), 7, "admin@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	handler := AdminAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/system/keys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestAdminAuthRejectsMissingOrBadToken(t *testing.T) {
	auth := newAuthService(t)

	handler := AdminAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not run without valid auth")
	}))

	req := httptest.NewRequest("GET", "/api/v1/system/keys", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rr.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/system/keys", nil)
	req.Header.Set("Authorization", "Bearer garbage.token.here")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d, want 401", rr.Code)
	}
}
