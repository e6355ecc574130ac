// Package revocation implements the token revocation pipeline (spec
// component C11): a tiered check (TTL shortcut, bloom filter, local LRU,
// remote store) in front of the authoritative revocation repository, with
// pub/sub cross-instance invalidation and a periodic bloom filter rebuild.
package revocation

import "time"

// Config tunes the pipeline's tiers and failure policy.
type Config struct {
	// CheckThreshold: if a token's remaining lifetime (exp - now) is below
	// this, the revocation check is skipped entirely (tier 1).
	CheckThreshold time.Duration

	// UserRevocationEnabled gates whether IsRevoked also consults the
	// per-user revocation tier (bloom + store).
	UserRevocationEnabled bool

	// FailOpen, when true (the default per spec.md §9), treats a remote
	// store failure as "not revoked" rather than failing the
	// authentication path closed.
	FailOpen bool

	// LocalCacheSize bounds the local LRU's entry count.
	LocalCacheSize int
	// LocalCacheTTL is how long a cached store answer is trusted before
	// the next lookup re-queries the store.
	LocalCacheTTL time.Duration

	// BloomExpectedItems and BloomFalsePositiveRate size a freshly built
	// filter.
	BloomExpectedItems     uint
	BloomFalsePositiveRate float64

	// RebuildInterval is how often the filter is rebuilt from the store
	// from scratch. Zero disables periodic rebuild (callers may still
	// invoke Rebuild manually).
	RebuildInterval time.Duration
}

// RevokedEntry is either a single-token or a whole-user revocation record,
// per spec.md §3. Only one of the two shapes is populated per entry.
type RevokedEntry struct {
	// JTI form.
	JTI string

	// User form.
	UserID       string
	IssuedBefore time.Time

	ExpiresAt time.Time
}

// IsUserEntry reports whether e is a whole-user revocation rather than a
// single-jti one.
func (e RevokedEntry) IsUserEntry() bool {
	return e.UserID != ""
}

func withDefaults(cfg Config) Config {
	if cfg.CheckThreshold <= 0 {
		cfg.CheckThreshold = 30 * time.Second
	}
	if cfg.LocalCacheSize <= 0 {
		cfg.LocalCacheSize = 10_000
	}
	if cfg.LocalCacheTTL <= 0 {
		cfg.LocalCacheTTL = 5 * time.Minute
	}
	if cfg.BloomExpectedItems == 0 {
		cfg.BloomExpectedItems = 100_000
	}
	if cfg.BloomFalsePositiveRate <= 0 {
		cfg.BloomFalsePositiveRate = 0.01
	}
	return cfg
}
