package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/keygate/keygate/internal/model"
)

// Store is the durable key store. It persists API key records and admin
// accounts. The default backend is SQLite; multi-instance deployments should
// point all processes at a shared Postgres database instead, or per-instance
// quota enforcement will undercount.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the key store. driver is "sqlite" or "postgres"; for
// SQLite the dsn is a file path (empty for in-memory).
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite":
		return openSQLite(dsn)
	case "postgres":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q (expected sqlite or postgres)", driver)
	}
}

// OpenDir opens a SQLite store inside dataDir, creating the directory if
// needed. Pass empty string for in-memory (used by tests).
func OpenDir(dataDir string) (*Store, error) {
	if dataDir == "" {
		return openSQLite("")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return openSQLite(filepath.Join(dataDir, "keygate.db"))
}

func openSQLite(path string) (*Store, error) {
	dsn := ":memory:?_journal_mode=WAL"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db, driver: "sqlite"}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

func openPostgres(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, driver: "postgres"}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// API key records
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. The Key field must already hold
// the generated raw token. ID and CreatedAt are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	now := time.Now().UTC()
	key.CreatedAt = now
	if key.LastDailyReset.IsZero() {
		key.LastDailyReset = now
	}

	q := s.db.Rebind(`INSERT INTO api_keys
		(api_key, name, description, tier, is_active, created_by, expires_at,
		 total_requests, daily_requests, last_daily_reset, last_used_at,
		 allowed_origins, allowed_endpoints, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := s.db.GetContext(ctx, &key.ID, q,
		key.Key, key.Name, key.Description, key.Tier, key.IsActive, key.CreatedBy,
		key.ExpiresAt, key.TotalRequests, key.DailyRequests, key.LastDailyReset,
		key.LastUsedAt, key.AllowedOrigins, key.AllowedEndpoints, key.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey looks up a record by its raw key token.
func (s *Store) GetAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE api_key = ?")
	if err := s.db.GetContext(ctx, &key, q, rawKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetAPIKeyByID looks up a record by its store-assigned ID.
func (s *Store) GetAPIKeyByID(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by id: %w", err)
	}
	return &key, nil
}

// UpdateAPIKey writes back all mutable fields of a record keyed by ID. This
// includes the usage counters, so quota increments and rollovers flow through
// here as well as administrative edits.
func (s *Store) UpdateAPIKey(ctx context.Context, key *model.APIKey) error {
	const q = `UPDATE api_keys SET
		name = :name, description = :description, tier = :tier,
		is_active = :is_active, expires_at = :expires_at,
		total_requests = :total_requests, daily_requests = :daily_requests,
		last_daily_reset = :last_daily_reset, last_used_at = :last_used_at,
		allowed_origins = :allowed_origins, allowed_endpoints = :allowed_endpoints
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAPIKeys returns all key records, newest first. Records are never hard
// deleted, so this includes deactivated and expired keys.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Admin accounts
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account. ID, CreatedAt, and UpdatedAt are
// populated after a successful insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	q := s.db.Rebind(`INSERT INTO admins
		(email, password_hash, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := s.db.GetContext(ctx, &admin.ID, q,
		admin.Email, admin.PasswordHash, admin.Name, admin.IsActive,
		admin.CreatedAt, admin.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// GetAdminByEmail returns an admin by email address.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	q := s.db.Rebind("SELECT * FROM admins WHERE email = ?")
	if err := s.db.GetContext(ctx, &admin, q, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.SelectContext(ctx, &admins, "SELECT * FROM admins ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists. Used for
// first-run detection at server startup.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UpdateAdminLastLogin sets the last_login_at timestamp for an admin.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	q := s.db.Rebind("UPDATE admins SET last_login_at = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update admin last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashPassword returns the hex-encoded SHA-256 hash of an admin password.
func HashPassword(password string) string {
	h := sha256.Sum256([]byte(password))
	return hex.EncodeToString(h[:])
}
