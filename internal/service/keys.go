// Package service implements the rate-limit core: key lifecycle management,
// the cached key lookup path, and the quota trackers for keyed and anonymous
// callers.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/cache"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

var (
	// ErrUnknownKey means no record exists for the presented token.
	ErrUnknownKey = errors.New("unknown api key")
	// ErrKeyExpired means the record exists but its expiry has passed.
	ErrKeyExpired = errors.New("api key expired")
	// ErrKeyRevoked means the record exists but has been deactivated.
	ErrKeyRevoked = errors.New("api key deactivated")
)

// KeyStore is the durable record store consumed by the key service.
// *store.Store satisfies it; tests substitute failing fakes.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error)
	GetAPIKeyByID(ctx context.Context, id int64) (*model.APIKey, error)
	UpdateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
}

const (
	keyCachePrefix = "key:"
	tokenPrefix    = "kg_"
	tokenBytes     = 32
)

// DefaultKeyTTL is how long a key record may be served from cache before the
// store is consulted again. Deactivations invalidate explicitly, so the TTL
// only bounds staleness for records modified out of band.
const DefaultKeyTTL = 5 * time.Minute

// KeyService owns API key lifecycle and the read-through cached lookup used
// by the quota tracker on every request.
type KeyService struct {
	store   KeyStore
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewKeyService creates the key service. ttl <= 0 uses DefaultKeyTTL.
func NewKeyService(st KeyStore, c cache.Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *KeyService {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{store: st, cache: c, ttl: ttl, logger: logger, metrics: m}
}

// CreateParams are the caller-supplied attributes of a new key.
type CreateParams struct {
	Name             string
	Description      string
	Tier             model.Tier
	CreatedBy        string
	ExpiresAt        *time.Time
	AllowedOrigins   string
	AllowedEndpoints string
}

// Create generates a fresh token and persists the record. The returned
// record's Key field holds the raw token; this is the only time it is
// available, so callers must surface it to the user immediately.
func (s *KeyService) Create(ctx context.Context, p CreateParams) (*model.APIKey, error) {
	if !p.Tier.Valid() {
		return nil, fmt.Errorf("invalid tier %q", p.Tier)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		Key:              token,
		Name:             p.Name,
		Description:      p.Description,
		Tier:             p.Tier,
		IsActive:         true,
		CreatedBy:        p.CreatedBy,
		ExpiresAt:        p.ExpiresAt,
		LastDailyReset:   time.Now().UTC(),
		AllowedOrigins:   p.AllowedOrigins,
		AllowedEndpoints: p.AllowedEndpoints,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("api key created",
		"id", key.ID, "name", key.Name, "tier", key.Tier, "prefix", key.Prefix())
	return key, nil
}

// generateToken returns a new raw key token: a recognizable prefix plus
// 256 bits from crypto/rand, base64url encoded without padding.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key token: %w", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// resolve returns the record for a raw token, serving from cache when
// possible. On a miss the store copy is cached for the configured TTL.
// Cache faults are logged and fall through to the store; only store faults
// surface to the caller. The cached value is a copy, so callers may mutate
// the returned record freely.
func (s *KeyService) resolve(ctx context.Context, rawKey string) (*model.APIKey, error) {
	cacheKey := keyCachePrefix + rawKey

	v, ok, err := s.cache.Get(cacheKey)
	if err != nil {
		s.logger.Warn("key cache read failed, falling through to store", "error", err)
	} else if ok {
		if rec, isKey := v.(model.APIKey); isKey {
			s.metrics.RecordCacheLookup("key", true)
			return &rec, nil
		}
	}
	s.metrics.RecordCacheLookup("key", false)

	rec, err := s.store.GetAPIKey(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(cacheKey, *rec, s.ttl); err != nil {
		s.logger.Warn("key cache write failed", "error", err)
	}
	return rec, nil
}

// invalidate drops the cached copy for a raw token so the next lookup sees
// the store's current state.
func (s *KeyService) invalidate(rawKey string) {
	if err := s.cache.Remove(keyCachePrefix + rawKey); err != nil {
		s.logger.Warn("key cache invalidation failed", "error", err)
	}
}

// Validate reports whether a raw token identifies a usable key: known,
// active, and not expired. It is independent of quota state; an exhausted
// key still validates. The error explains a false result.
func (s *KeyService) Validate(ctx context.Context, rawKey string) (bool, error) {
	rec, err := s.resolve(ctx, rawKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUnknownKey
		}
		return false, err
	}
	if !rec.IsActive {
		return false, ErrKeyRevoked
	}
	if rec.IsExpired(time.Now().UTC()) {
		return false, ErrKeyExpired
	}
	return true, nil
}

// Deactivate marks a key inactive and invalidates its cache entry. Returns
// false when the key is unknown or already inactive.
func (s *KeyService) Deactivate(ctx context.Context, rawKey string) (bool, error) {
	rec, err := s.store.GetAPIKey(ctx, rawKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !rec.IsActive {
		return false, nil
	}

	rec.IsActive = false
	if err := s.store.UpdateAPIKey(ctx, rec); err != nil {
		return false, err
	}
	s.invalidate(rawKey)

	s.logger.Info("api key deactivated", "id", rec.ID, "name", rec.Name, "prefix", rec.Prefix())
	return true, nil
}

// UpdateParams are the administratively mutable attributes of a key. Nil
// pointer fields are left unchanged. The token, counters, and creation
// metadata cannot be edited.
type UpdateParams struct {
	Name             *string
	Description      *string
	Tier             *model.Tier
	IsActive         *bool
	ExpiresAt        *time.Time
	ClearExpiry      bool
	AllowedOrigins   *string
	AllowedEndpoints *string
}

// Update applies edits to the record identified by id and invalidates its
// cache entry. Returns false when no such record exists.
func (s *KeyService) Update(ctx context.Context, id int64, p UpdateParams) (*model.APIKey, error) {
	rec, err := s.store.GetAPIKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Description != nil {
		rec.Description = *p.Description
	}
	if p.Tier != nil {
		if !p.Tier.Valid() {
			return nil, fmt.Errorf("invalid tier %q", *p.Tier)
		}
		rec.Tier = *p.Tier
	}
	if p.IsActive != nil {
		rec.IsActive = *p.IsActive
	}
	if p.ClearExpiry {
		rec.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		rec.ExpiresAt = p.ExpiresAt
	}
	if p.AllowedOrigins != nil {
		rec.AllowedOrigins = *p.AllowedOrigins
	}
	if p.AllowedEndpoints != nil {
		rec.AllowedEndpoints = *p.AllowedEndpoints
	}

	if err := s.store.UpdateAPIKey(ctx, rec); err != nil {
		return nil, err
	}
	s.invalidate(rec.Key)

	s.logger.Info("api key updated", "id", rec.ID, "name", rec.Name)
	return rec, nil
}

// List returns all key records, newest first.
func (s *KeyService) List(ctx context.Context) ([]model.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// GetByID returns a single record by store ID.
func (s *KeyService) GetByID(ctx context.Context, id int64) (*model.APIKey, error) {
	return s.store.GetAPIKeyByID(ctx, id)
}
