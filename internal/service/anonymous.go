package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
)

const anonCachePrefix = "anon:"

// DefaultAnonymousTTL is the cache lifetime of an anonymous counter. One
// day matches the quota window; an entry that expires mid-day simply
// restarts the count, which errs in the caller's favor.
const DefaultAnonymousTTL = 24 * time.Hour

// AnonymousTracker tracks per-IP quotas for callers without a key. Counters
// live only in the cache; there is no durable record to protect, so unlike
// the keyed tracker every infrastructure fault resolves in the caller's
// favor with a full remaining quota.
type AnonymousTracker struct {
	cache    cache.Cache
	policies TierPolicies
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewAnonymousTracker creates the anonymous tracker. ttl <= 0 uses
// DefaultAnonymousTTL.
func NewAnonymousTracker(c cache.Cache, policies TierPolicies, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *AnonymousTracker {
	if ttl <= 0 {
		ttl = DefaultAnonymousTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnonymousTracker{cache: c, policies: policies, ttl: ttl, logger: logger, metrics: m}
}

// Check returns the verdict for an IP address. A first-seen IP gets a fresh
// zeroed counter written back with the one-day TTL. Counters whose last
// reset falls on an earlier UTC day are rolled over in place.
func (t *AnonymousTracker) Check(ctx context.Context, ip string) model.RateLimitVerdict {
	now := time.Now().UTC()
	allowance := t.policies.Current().Anonymous

	q, ok := t.load(ip)
	if !ok {
		q = model.AnonymousQuota{
			IPAddress:       ip,
			LastDailyReset:  now,
			LastRequestTime: now,
		}
		t.save(q)
	} else if dayStart(q.LastDailyReset).Before(dayStart(now)) {
		q.DailyRequests = 0
		q.LastDailyReset = now
		t.save(q)
	}

	v := evaluate(model.TierAnonymous, q.DailyRequests, allowance, now)
	t.metrics.RecordDecision("anonymous", !v.IsExceeded)
	return v
}

// Increment records one consumed request for an IP. The counter is created
// on demand; failures are logged and swallowed.
func (t *AnonymousTracker) Increment(ctx context.Context, ip string) {
	now := time.Now().UTC()

	q, ok := t.load(ip)
	if !ok {
		q = model.AnonymousQuota{IPAddress: ip, LastDailyReset: now}
	}
	q.DailyRequests++
	q.LastRequestTime = now
	t.save(q)
}

// load fetches the counter for an IP. Cache faults report a miss so the
// caller proceeds with a fresh counter.
func (t *AnonymousTracker) load(ip string) (model.AnonymousQuota, bool) {
	v, ok, err := t.cache.Get(anonCachePrefix + ip)
	if err != nil {
		t.logger.Warn("anonymous quota cache read failed, allowing request", "error", err, "ip", ip)
		return model.AnonymousQuota{}, false
	}
	if !ok {
		t.metrics.RecordCacheLookup("anonymous", false)
		return model.AnonymousQuota{}, false
	}
	q, isQuota := v.(model.AnonymousQuota)
	if !isQuota {
		return model.AnonymousQuota{}, false
	}
	t.metrics.RecordCacheLookup("anonymous", true)
	return q, true
}

func (t *AnonymousTracker) save(q model.AnonymousQuota) {
	if err := t.cache.Set(anonCachePrefix+q.IPAddress, q, t.ttl); err != nil {
		t.logger.Warn("anonymous quota cache write failed", "error", err, "ip", q.IPAddress)
	}
}
