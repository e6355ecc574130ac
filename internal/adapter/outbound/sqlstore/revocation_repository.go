package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// RevocationRepository implements outbound.TokenRevocationRepository over
// two SQLite tables (jti-level and user-level revocations), the
// authoritative store for C11's tier 4 when revocation.backend is
// "sqlite". It does not implement outbound.RevocationEventPublisher: SQL
// polling is not a pub/sub transport, so cross-instance fan-out still
// goes through the in-memory publisher even when the authoritative store
// is SQLite (see internal/config's RevocationConfig.SQLitePath doc
// comment).
type RevocationRepository struct {
	db *sql.DB
}

// NewRevocationRepository wraps db, which must already have this
// package's schema applied (see Open).
func NewRevocationRepository(db *sql.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_jtis (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT(jti) DO UPDATE SET expires_at = excluded.expires_at`,
		jti, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlstore: revoke jti: %w", err)
	}
	return nil
}

// IsRevoked implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var expiresAt int64
	err := r.db.QueryRowContext(ctx, "SELECT expires_at FROM revoked_jtis WHERE jti = ?", jti).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: is revoked jti: %w", err)
	}
	return time.Unix(expiresAt, 0).After(time.Now()), nil
}

// RevokeAllForUser implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) RevokeAllForUser(ctx context.Context, userID string, issuedBefore, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_users (user_id, issued_before, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET issued_before = excluded.issued_before, expires_at = excluded.expires_at`,
		userID, issuedBefore.Unix(), expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlstore: revoke all for user: %w", err)
	}
	return nil
}

// IsUserRevoked implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	var issuedBefore, expiresAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT issued_before, expires_at FROM revoked_users WHERE user_id = ?", userID,
	).Scan(&issuedBefore, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: is user revoked: %w", err)
	}
	if time.Unix(expiresAt, 0).Before(time.Now()) {
		return false, nil
	}
	return issuedAt.Before(time.Unix(issuedBefore, 0)), nil
}

// StreamAllRevokedJtis implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) StreamAllRevokedJtis(ctx context.Context) (<-chan string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT jti FROM revoked_jtis WHERE expires_at > ?", time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: stream revoked jtis: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var jti string
			if err := rows.Scan(&jti); err != nil {
				return
			}
			select {
			case out <- jti:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StreamAllRevokedUsers implements outbound.TokenRevocationRepository.
func (r *RevocationRepository) StreamAllRevokedUsers(ctx context.Context) (<-chan outbound.RevokedUser, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, issued_before FROM revoked_users WHERE expires_at > ?", time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: stream revoked users: %w", err)
	}

	out := make(chan outbound.RevokedUser)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var userID string
			var issuedBefore int64
			if err := rows.Scan(&userID, &issuedBefore); err != nil {
				return
			}
			entry := outbound.RevokedUser{UserID: userID, IssuedBefore: time.Unix(issuedBefore, 0)}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ outbound.TokenRevocationRepository = (*RevocationRepository)(nil)
