package store

import "fmt"

var migrationsSQLite = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'free',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		expires_at DATETIME,
		total_requests INTEGER NOT NULL DEFAULT 0,
		daily_requests INTEGER NOT NULL DEFAULT 0,
		last_daily_reset DATETIME NOT NULL,
		last_used_at DATETIME,
		allowed_origins TEXT NOT NULL DEFAULT '',
		allowed_endpoints TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(api_key)`,
}

var migrationsPostgres = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		api_key TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'free',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ,
		total_requests BIGINT NOT NULL DEFAULT 0,
		daily_requests INTEGER NOT NULL DEFAULT 0,
		last_daily_reset TIMESTAMPTZ NOT NULL,
		last_used_at TIMESTAMPTZ,
		allowed_origins TEXT NOT NULL DEFAULT '',
		allowed_endpoints TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS admins (
		id BIGSERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(api_key)`,
}

func (s *Store) migrate() error {
	migrations := migrationsSQLite
	if s.driver == "postgres" {
		migrations = migrationsPostgres
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
