// Package ratelimit implements the hierarchical rate-limit resolver (spec
// component C10's resolver half); the enforcement engine itself is an
// outbound port (internal/port/outbound.RateLimiter) with algorithm
// implementations living in internal/adapter/outbound/memory.
package ratelimit

import "fmt"

// KeyType identifies which accounting bucket a RateLimitKey addresses.
type KeyType string

const (
	// KeyTypeHTTP keys a per-request HTTP rate limit bucket.
	KeyTypeHTTP KeyType = "HTTP"
	// KeyTypeWSConnection keys a per-connection WebSocket rate limit bucket.
	KeyTypeWSConnection KeyType = "WS_CONNECTION"
	// KeyTypeWSMessage keys a per-message WebSocket rate limit bucket.
	KeyTypeWSMessage KeyType = "WS_MESSAGE"
)

// RateLimitKey identifies the accounting bucket for a rate limit check.
type RateLimitKey struct {
	KeyType    KeyType
	ClientID   string
	ServiceID  string
	EndpointID string
}

// String formats the key into the flat string form the RateLimiter port
// and its backends key buckets by.
func (k RateLimitKey) String() string {
	if k.EndpointID == "" {
		return fmt.Sprintf("ratelimit:%s:%s:%s", k.KeyType, k.ServiceID, k.ClientID)
	}
	return fmt.Sprintf("ratelimit:%s:%s:%s:%s", k.KeyType, k.ServiceID, k.EndpointID, k.ClientID)
}

// EffectiveRateLimit is the fully-resolved, clamped rate limit that
// actually governs a request.
type EffectiveRateLimit struct {
	RequestsPerWindow int
	WindowSeconds     int
	BurstCapacity     int
}

// Algorithm selects the enforcement strategy a RateLimiter backend uses.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed           bool
	Remaining         int
	CurrentUsage      int
	Limit             int
	ResetAfterSeconds int
	// RetryAfterSeconds is meaningful only when Allowed is false.
	RetryAfterSeconds int
}
