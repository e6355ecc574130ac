package outbound

import (
	"context"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
)

// RateLimiter is the outbound port for the rate-limit enforcement engine
// (spec component C10's algorithm half). Implementations backed by a
// shared remote store MUST make CheckAndConsume atomic (a single
// server-side script); an in-memory implementation is acceptable for
// single-instance deployments.
type RateLimiter interface {
	// CheckAndConsume atomically checks and, if allowed, consumes one unit
	// of capacity for key under limit.
	CheckAndConsume(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error)

	// GetStatus reports the current decision for key without consuming
	// capacity.
	GetStatus(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error)

	// Reset clears any accounting state for key.
	Reset(ctx context.Context, key ratelimit.RateLimitKey) error

	// RemoveKeysMatching deletes all buckets whose key string has the
	// given prefix, used to drop per-connection WebSocket buckets on
	// disconnect.
	RemoveKeysMatching(ctx context.Context, prefix string) error

	// IsEnabled reports whether this backend is currently enforcing
	// limits (false means every check is allowed unconditionally).
	IsEnabled() bool
}
