package outbound

import (
	"context"
	"time"
)

// RevokedUser is one entry of the per-user revocation stream: every token
// issued to userID before IssuedBefore is revoked.
type RevokedUser struct {
	UserID       string
	IssuedBefore time.Time
}

// TokenRevocationRepository is the outbound port for the authoritative,
// remote revocation store (spec component C11's tier 4). TTL on revocation
// entries is implementation-side (native TTL or a scan job); the core only
// ever asks "is this revoked" or streams the full set for a filter rebuild.
type TokenRevocationRepository interface {
	// Revoke marks jti as revoked until expiresAt.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether jti has been revoked and not yet expired.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeAllForUser marks every token issued to userID before
	// issuedBefore as revoked, until expiresAt.
	RevokeAllForUser(ctx context.Context, userID string, issuedBefore, expiresAt time.Time) error

	// IsUserRevoked reports whether userID has a user-wide revocation whose
	// issuedBefore cutoff is after issuedAt (i.e. the token in hand predates
	// the cutoff and is therefore revoked).
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)

	// StreamAllRevokedJtis streams every currently-revoked jti, for the
	// periodic bloom filter rebuild.
	StreamAllRevokedJtis(ctx context.Context) (<-chan string, error)

	// StreamAllRevokedUsers streams every currently-revoked user entry, for
	// the periodic bloom filter rebuild.
	StreamAllRevokedUsers(ctx context.Context) (<-chan RevokedUser, error)
}
