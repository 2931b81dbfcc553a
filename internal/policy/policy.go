// Package policy owns the tier policy table: the static mapping from account
// tier to daily request quota, plus the distinct fixed policy for anonymous
// callers. The table is validated at startup so a key can never reference a
// tier without a quota entry.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/keygate/keygate/internal/model"
)

// Policy is the effective quota table. Tiers maps every key-assignable tier
// to its requests-per-day allowance; Anonymous is the allowance for callers
// identified only by IP.
type Policy struct {
	Tiers     map[model.Tier]int
	Anonymous int
}

// Default returns the built-in policy used when no policy file is configured.
func Default() Policy {
	return Policy{
		Tiers: map[model.Tier]int{
			model.TierFree:     100,
			model.TierStandard: 1000,
			model.TierPremium:  10000,
		},
		Anonymous: 50,
	}
}

// RequestsPerDay returns the daily allowance for a tier. TierAnonymous maps
// to the anonymous allowance; an unknown tier gets the free allowance, which
// cannot happen for validated policies but keeps the lookup total.
func (p Policy) RequestsPerDay(t model.Tier) int {
	if t == model.TierAnonymous {
		return p.Anonymous
	}
	if n, ok := p.Tiers[t]; ok {
		return n
	}
	return p.Tiers[model.TierFree]
}

// Validate checks that every key-assignable tier has a positive allowance and
// that the anonymous allowance is positive.
func (p Policy) Validate() error {
	for _, t := range model.Tiers() {
		n, ok := p.Tiers[t]
		if !ok {
			return fmt.Errorf("tier policy: missing entry for tier %q", t)
		}
		if n <= 0 {
			return fmt.Errorf("tier policy: tier %q must allow at least 1 request per day, got %d", t, n)
		}
	}
	if p.Anonymous <= 0 {
		return fmt.Errorf("tier policy: anonymous allowance must be positive, got %d", p.Anonymous)
	}
	return nil
}

// policyFile is the on-disk YAML schema:
//
//	tiers:
//	  free: 100
//	  standard: 1000
//	  premium: 10000
//	anonymous:
//	  requests_per_day: 50
type policyFile struct {
	Tiers     map[string]int `yaml:"tiers"`
	Anonymous struct {
		RequestsPerDay int `yaml:"requests_per_day"`
	} `yaml:"anonymous"`
}

// Load reads and validates a policy file.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	p := Policy{
		Tiers:     make(map[model.Tier]int, len(pf.Tiers)),
		Anonymous: pf.Anonymous.RequestsPerDay,
	}
	for name, n := range pf.Tiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
		}
		p.Tiers[tier] = n
	}

	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return p, nil
}

// Provider serves the current policy to the trackers and supports atomic
// replacement on reload. Trackers call Current on every check, so a reload
// takes effect on the next request.
type Provider struct {
	mu      sync.RWMutex
	current Policy
	path    string
	logger  *slog.Logger
}

// NewProvider wraps a fixed policy. Used when no policy file is configured
// and by tests.
func NewProvider(p Policy) *Provider {
	return &Provider{current: p, logger: slog.Default()}
}

// NewFileProvider loads the policy from path and remembers the path for
// reloads. The initial load must succeed; later reload failures keep the
// last good policy.
func NewFileProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Provider{current: p, path: path, logger: logger}, nil
}

// Current returns the effective policy.
func (pr *Provider) Current() Policy {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.current
}

// Reload re-reads the policy file. On failure the previous policy stays in
// effect and the error is returned for logging.
func (pr *Provider) Reload() error {
	if pr.path == "" {
		return nil
	}
	p, err := Load(pr.path)
	if err != nil {
		return err
	}
	pr.mu.Lock()
	pr.current = p
	pr.mu.Unlock()
	pr.logger.Info("tier policy reloaded", "path", pr.path)
	return nil
}
