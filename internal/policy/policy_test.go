package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keygate/keygate/internal/model"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 200
  standard: 2000
  premium: 20000
anonymous:
  requests_per_day: 75
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := p.RequestsPerDay(model.TierStandard); got != 2000 {
		t.Errorf("standard allowance: got %d, want 2000", got)
	}
	if got := p.RequestsPerDay(model.TierAnonymous); got != 75 {
		t.Errorf("anonymous allowance: got %d, want 75", got)
	}
}

func TestLoadRejectsMissingTier(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 100
  standard: 1000
anonymous:
  requests_per_day: 50
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for policy missing the premium tier")
	}
	if !strings.Contains(err.Error(), "premium") {
		t.Errorf("error should name the missing tier, got: %v", err)
	}
}

func TestLoadRejectsUnknownTier(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 100
  standard: 1000
  premium: 10000
  platinum: 99999
anonymous:
  requests_per_day: 50
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown tier name")
	}
}

func TestLoadRejectsNonPositiveAllowance(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 0
  standard: 1000
  premium: 10000
anonymous:
  requests_per_day: 50
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero allowance")
	}
}

func TestProviderReload(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 100
  standard: 1000
  premium: 10000
anonymous:
  requests_per_day: 50
`)

	pr, err := NewFileProvider(path, nil)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	if got := pr.Current().RequestsPerDay(model.TierFree); got != 100 {
		t.Fatalf("initial free allowance: got %d, want 100", got)
	}

	if err := os.WriteFile(path, []byte(`
tiers:
  free: 500
  standard: 1000
  premium: 10000
anonymous:
  requests_per_day: 50
`), 0644); err != nil {
		t.Fatalf("rewrite policy file: %v", err)
	}

	if err := pr.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := pr.Current().RequestsPerDay(model.TierFree); got != 500 {
		t.Errorf("reloaded free allowance: got %d, want 500", got)
	}
}

func TestProviderReloadKeepsLastGoodPolicy(t *testing.T) {
	path := writePolicyFile(t, `
tiers:
  free: 100
  standard: 1000
  premium: 10000
anonymous:
  requests_per_day: 50
`)

	pr, err := NewFileProvider(path, nil)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	if err := os.WriteFile(path, []byte("tiers: {free: -1}"), 0644); err != nil {
		t.Fatalf("rewrite policy file: %v", err)
	}

	if err := pr.Reload(); err == nil {
		t.Fatal("expected reload error for invalid policy")
	}
	if got := pr.Current().RequestsPerDay(model.TierFree); got != 100 {
		t.Errorf("previous policy should survive failed reload: got %d, want 100", got)
	}
}
