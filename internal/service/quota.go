package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/policy"
	"github.com/keygate/keygate/internal/store"
)

// TierPolicies serves the effective quota table. *policy.Provider satisfies
// it; Current is called on every check so reloads take effect immediately.
type TierPolicies interface {
	Current() policy.Policy
}

// QuotaTracker computes rate-limit verdicts for keyed callers and records
// their consumption. Checks never consume quota; the caller reports
// consumption separately via Increment after serving the request.
//
// Failure policy: any condition that prevents verifying a key (unknown
// token, expired, deactivated, store fault) yields a denying verdict. A
// caller presenting a key has claimed an identity, and an unverifiable
// claim is treated as an exceeded Free-tier key rather than falling back
// to anonymous access.
type QuotaTracker struct {
	keys     *KeyService
	policies TierPolicies
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewQuotaTracker creates the keyed-caller tracker.
func NewQuotaTracker(keys *KeyService, policies TierPolicies, logger *slog.Logger, m *metrics.Metrics) *QuotaTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaTracker{keys: keys, policies: policies, logger: logger, metrics: m}
}

// Check returns the verdict for a raw key token. The only write it may
// perform is the lazy daily rollover: when the record's last reset falls
// on an earlier UTC day than now, the daily counter is zeroed and
// persisted before evaluation. Otherwise checking is idempotent.
func (t *QuotaTracker) Check(ctx context.Context, rawKey string) model.RateLimitVerdict {
	now := time.Now().UTC()

	rec, err := t.keys.resolve(ctx, rawKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.logger.Error("key store lookup failed, denying request", "error", err)
			t.metrics.RecordStoreFailure("get")
		}
		return t.deny(model.TierFree, now)
	}

	if !rec.IsActive || rec.IsExpired(now) {
		return t.deny(rec.Tier, now)
	}

	if dayStart(rec.LastDailyReset).Before(dayStart(now)) {
		rec.DailyRequests = 0
		rec.LastDailyReset = now
		if err := t.keys.store.UpdateAPIKey(ctx, rec); err != nil {
			t.logger.Error("daily rollover persist failed, denying request", "error", err, "id", rec.ID)
			t.metrics.RecordStoreFailure("rollover")
			return t.deny(rec.Tier, now)
		}
		t.keys.invalidate(rawKey)
		t.metrics.RecordRollover()
		t.logger.Info("daily quota rolled over", "id", rec.ID, "name", rec.Name)
	}

	v := evaluate(rec.Tier, rec.DailyRequests, t.policies.Current().RequestsPerDay(rec.Tier), now)
	t.metrics.RecordDecision("key", !v.IsExceeded)
	return v
}

// Increment records one consumed request against a key: the daily and
// lifetime counters advance and the last-used timestamp is set. Failures
// are logged and swallowed; consumption reporting must never fail the
// request that already succeeded.
func (t *QuotaTracker) Increment(ctx context.Context, rawKey string) {
	now := time.Now().UTC()

	rec, err := t.keys.resolve(ctx, rawKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.logger.Error("key lookup failed during usage increment", "error", err)
			t.metrics.RecordStoreFailure("increment")
		}
		return
	}

	rec.TotalRequests++
	rec.DailyRequests++
	rec.LastUsedAt = &now

	if err := t.keys.store.UpdateAPIKey(ctx, rec); err != nil {
		t.logger.Error("usage increment persist failed", "error", err, "id", rec.ID)
		t.metrics.RecordStoreFailure("increment")
		return
	}
	t.keys.invalidate(rawKey)
}

// deny builds the verdict for an unverifiable or blocked caller: zero
// remaining, exceeded, resetting at the next UTC day boundary.
func (t *QuotaTracker) deny(tier model.Tier, now time.Time) model.RateLimitVerdict {
	t.metrics.RecordDecision("key", false)
	return model.RateLimitVerdict{
		RemainingRequests: 0,
		TotalRequests:     0,
		ResetTime:         nextDayStart(now),
		Tier:              tier,
		IsExceeded:        true,
	}
}

// evaluate derives a verdict from a daily counter and its allowance. Pure.
func evaluate(tier model.Tier, daily, perDay int, now time.Time) model.RateLimitVerdict {
	remaining := perDay - daily
	if remaining < 0 {
		remaining = 0
	}
	return model.RateLimitVerdict{
		RemainingRequests: remaining,
		TotalRequests:     daily,
		ResetTime:         nextDayStart(now),
		Tier:              tier,
		IsExceeded:        remaining <= 0,
	}
}

// dayStart truncates a time to the start of its UTC calendar day.
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// nextDayStart returns the start of the UTC day after t, which is when all
// daily counters reset.
func nextDayStart(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1)
}
