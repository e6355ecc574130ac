// Package sqlstore is the SQLite-backed outbound adapter selected when
// registry.backend or revocation.backend is "sqlite" instead of "memory".
// It stores the same shapes the in-memory adapters hold, marshaled as JSON
// per row ("marshal the whole value, store it whole"), one row per key so
// concurrent services/revocations don't serialize through one file lock.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// Open opens (creating if absent) a SQLite database at path and applies
// this package's schema. The returned *sql.DB is safe for concurrent use
// for reads and writes once opened; the schema migration itself is
// guarded by a cross-process flock on path+".lock" (the same split
// Sentinel-Gate's bootstrap state store uses) so two processes racing to
// create the database file for the first time don't both run
// CREATE TABLE concurrently. After migration, SQLite's own locking (plus
// WAL mode) serializes writers without further help from this package.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := withBootstrapLock(path, func() error {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return fmt.Errorf("sqlstore: open %s: %w", path, err)
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("sqlstore: set journal_mode: %w", err)
		}
		return migrate(ctx, db)
	}); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: reopen %s: %w", path, err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL with this
	// driver; reads and writes both go through it since neither
	// repository is read-heavy enough to need a separate read pool.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: set foreign_keys: %w", err)
	}
	return db, nil
}

// withBootstrapLock runs fn while holding an exclusive flock on
// path+".lock", serializing concurrent first-open migrations across
// processes.
func withBootstrapLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("sqlstore: open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("sqlstore: acquire bootstrap lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	return fn()
}

const schema = `
CREATE TABLE IF NOT EXISTS services (
	service_id TEXT PRIMARY KEY,
	data       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_jtis (
	jti        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_users (
	user_id       TEXT PRIMARY KEY,
	issued_before INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
`

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlstore: migrate schema: %w", err)
	}
	return nil
}
