package model

import (
	"testing"
	"time"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"free", TierFree, false},
		{"standard", TierStandard, false},
		{"premium", TierPremium, false},
		{"anonymous", "", true}, // not assignable to keys
		{"gold", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTier(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIKeyIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"expires in the future", &future, false},
		{"already expired", &past, true},
	}

	for _, tt := range tests {
		k := &APIKey{ExpiresAt: tt.expiresAt}
		if got := k.IsExpired(now); got != tt.want {
			t.Errorf("%s: IsExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAPIKeyPrefix(t *testing.T) {
	k := &APIKey{Key: "kg_abcdefgh_rest_of_the_token"}
	if got := k.Prefix(); got != "kg_abcdefgh" {
		t.Errorf("Prefix: got %q, want %q", got, "kg_abcdefgh")
	}

	short := &APIKey{Key: "kg_ab"}
	if got := short.Prefix(); got != "kg_ab" {
		t.Errorf("Prefix of short key: got %q, want %q", got, "kg_ab")
	}
}
