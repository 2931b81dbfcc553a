package openapi

import (
	"encoding/json"
	"testing"
)

func TestGenerateSpec(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080", "1.0.0")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version: got %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Title != "Keygate API" {
		t.Errorf("title: got %q", doc.Info.Title)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("servers: got %+v", doc.Servers)
	}
}

func TestGenerateSpecSecuritySchemes(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080", "1.0.0")

	apiKey, ok := doc.Components.SecuritySchemes["apiKey"]
	if !ok {
		t.Fatal("missing apiKey security scheme")
	}
	if apiKey.Value.Name != "X-API-Key" || apiKey.Value.In != "header" {
		t.Errorf("apiKey scheme: got %+v", apiKey.Value)
	}

	bearer, ok := doc.Components.SecuritySchemes["bearerAuth"]
	if !ok {
		t.Fatal("missing bearerAuth security scheme")
	}
	if bearer.Value.Scheme != "bearer" || bearer.Value.BearerFormat != "JWT" {
		t.Errorf("bearerAuth scheme: got %+v", bearer.Value)
	}
}

func TestGenerateSpecPaths(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080", "1.0.0")

	wantPaths := []string{
		"/api/v1/ping",
		"/api/v1/ratelimit/status",
		"/api/v1/system/session",
		"/api/v1/system/keys",
		"/api/v1/system/keys/{id}",
		"/api/v1/system/tiers",
		"/api/v1/system/admins",
	}
	for _, p := range wantPaths {
		if doc.Paths.Value(p) == nil {
			t.Errorf("missing path %s", p)
		}
	}

	keys := doc.Paths.Value("/api/v1/system/keys")
	if keys.Get == nil || keys.Post == nil {
		t.Error("/api/v1/system/keys should document GET and POST")
	}

	byID := doc.Paths.Value("/api/v1/system/keys/{id}")
	if byID.Get == nil || byID.Patch == nil || byID.Delete == nil {
		t.Error("/api/v1/system/keys/{id} should document GET, PATCH, and DELETE")
	}
}

func TestGenerateSpecSchemas(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080", "1.0.0")

	for _, name := range []string{"ErrorResponse", "RateLimitVerdict", "APIKey", "APIKeyCreate", "Admin"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("missing component schema %s", name)
		}
	}

	verdict := doc.Components.Schemas["RateLimitVerdict"].Value
	for _, prop := range []string{"remaining_requests", "total_requests", "reset_time", "tier", "is_exceeded"} {
		if _, ok := verdict.Properties[prop]; !ok {
			t.Errorf("RateLimitVerdict missing property %s", prop)
		}
	}
}

func TestGenerateSpecSerializes(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080", "1.0.0")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty spec document")
	}
}
