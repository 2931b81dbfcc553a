package model

import "fmt"

// Tier is a named service level determining the daily request quota.
// The set of tiers assignable to API keys is closed; TierAnonymous is a
// synthetic tier used only in verdicts for unauthenticated callers and can
// never be assigned to a key.
type Tier string

const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"

	// TierAnonymous identifies callers tracked by IP address.
	TierAnonymous Tier = "anonymous"
)

// Tiers returns the closed set of tiers assignable to API keys.
func Tiers() []Tier {
	return []Tier{TierFree, TierStandard, TierPremium}
}

// Valid reports whether t is assignable to an API key.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStandard, TierPremium:
		return true
	}
	return false
}

// ParseTier converts a string into a key-assignable Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q (valid: free, standard, premium)", s)
	}
	return t, nil
}
