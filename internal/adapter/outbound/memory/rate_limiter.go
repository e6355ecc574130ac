// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// Compile-time interface verification.
var _ outbound.RateLimiter = (*MemoryRateLimiter)(nil)

// bucket holds the accounting state for one rate-limit key. Which fields
// are meaningful depends on the algorithm selected for that key's limit.
type bucket struct {
	algorithm ratelimit.Algorithm
	touched   time.Time

	// token bucket
	tokens     float64
	lastRefill time.Time

	// fixed window
	windowStart time.Time
	windowCount int

	// sliding window: current fixed window plus the count carried over
	// from the immediately preceding one, combined by elapsed fraction
	slidingInit     bool
	curWindowIndex  int64
	curWindowCount  int
	prevWindowCount int
}

// MemoryRateLimiter implements outbound.RateLimiter with pluggable
// per-request algorithms, entirely in process memory. Thread-safe for
// concurrent access. Includes a background cleanup goroutine to bound
// memory growth; intended for single-instance deployments or tests.
type MemoryRateLimiter struct {
	algorithm ratelimit.Algorithm
	enabled   bool

	buckets map[string]*bucket
	mu      sync.Mutex

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxIdle         time.Duration
}

// Config configures a MemoryRateLimiter.
type Config struct {
	// Algorithm selects the enforcement strategy. Defaults to
	// AlgorithmTokenBucket if empty.
	Algorithm ratelimit.Algorithm
	// Enabled, when false, makes every check allow unconditionally.
	// Defaults to true.
	Enabled *bool
	// CleanupInterval is how often the background sweep runs. Defaults to
	// 5 minutes.
	CleanupInterval time.Duration
	// MaxIdle is how long an untouched bucket survives before the sweep
	// removes it. Defaults to 1 hour.
	MaxIdle time.Duration
}

// NewRateLimiter creates a MemoryRateLimiter from cfg, applying defaults
// for zero-valued fields.
func NewRateLimiter(cfg Config) *MemoryRateLimiter {
	algo := cfg.Algorithm
	if algo == "" {
		algo = ratelimit.AlgorithmTokenBucket
	}
	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}

	return &MemoryRateLimiter{
		algorithm:       algo,
		enabled:         enabled,
		buckets:         make(map[string]*bucket),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
	}
}

// IsEnabled reports whether this backend is currently enforcing limits.
func (r *MemoryRateLimiter) IsEnabled() bool {
	return r.enabled
}

// CheckAndConsume atomically checks and, if allowed, consumes one unit of
// capacity for key under limit.
func (r *MemoryRateLimiter) CheckAndConsume(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error) {
	if !r.enabled {
		return ratelimit.Decision{Allowed: true, Remaining: limit.BurstCapacity, Limit: limit.RequestsPerWindow}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key.String()
	b, ok := r.buckets[k]
	if !ok {
		b = &bucket{algorithm: r.algorithm}
		r.buckets[k] = b
	}

	now := time.Now()
	b.touched = now

	switch r.algorithm {
	case ratelimit.AlgorithmFixedWindow:
		return consumeFixedWindow(b, limit, now), nil
	case ratelimit.AlgorithmSlidingWindow:
		return consumeSlidingWindow(b, limit, now), nil
	default:
		return consumeTokenBucket(b, limit, now), nil
	}
}

// GetStatus reports the current decision for key without consuming
// capacity.
func (r *MemoryRateLimiter) GetStatus(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error) {
	if !r.enabled {
		return ratelimit.Decision{Allowed: true, Remaining: limit.BurstCapacity, Limit: limit.RequestsPerWindow}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key.String()]
	if !ok {
		return ratelimit.Decision{Allowed: true, Remaining: limit.BurstCapacity, Limit: limit.RequestsPerWindow, ResetAfterSeconds: limit.WindowSeconds}, nil
	}

	now := time.Now()
	switch r.algorithm {
	case ratelimit.AlgorithmFixedWindow:
		return peekFixedWindow(b, limit, now), nil
	case ratelimit.AlgorithmSlidingWindow:
		return peekSlidingWindow(b, limit, now), nil
	default:
		return peekTokenBucket(b, limit, now), nil
	}
}

// Reset clears any accounting state for key.
func (r *MemoryRateLimiter) Reset(ctx context.Context, key ratelimit.RateLimitKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key.String())
	return nil
}

// RemoveKeysMatching deletes all buckets whose key string has the given
// prefix.
func (r *MemoryRateLimiter) RemoveKeysMatching(ctx context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.buckets {
		if strings.HasPrefix(k, prefix) {
			delete(r.buckets, k)
		}
	}
	return nil
}

func consumeTokenBucket(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	refillBucket(b, limit, now)

	if b.tokens < 1 {
		retryAfter := secondsUntilOneToken(b, limit)
		return ratelimit.Decision{
			Allowed:           false,
			Remaining:         0,
			CurrentUsage:      limit.BurstCapacity,
			Limit:             limit.RequestsPerWindow,
			ResetAfterSeconds: retryAfter,
			RetryAfterSeconds: retryAfter,
		}
	}

	b.tokens--
	return ratelimit.Decision{
		Allowed:      true,
		Remaining:    int(b.tokens),
		CurrentUsage: limit.BurstCapacity - int(b.tokens),
		Limit:        limit.RequestsPerWindow,
	}
}

func peekTokenBucket(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	refillBucket(b, limit, now)
	allowed := b.tokens >= 1
	return ratelimit.Decision{
		Allowed:      allowed,
		Remaining:    int(b.tokens),
		CurrentUsage: limit.BurstCapacity - int(b.tokens),
		Limit:        limit.RequestsPerWindow,
	}
}

func refillBucket(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) {
	if b.lastRefill.IsZero() {
		b.tokens = float64(limit.BurstCapacity)
		b.lastRefill = now
		return
	}
	if limit.WindowSeconds <= 0 || limit.RequestsPerWindow <= 0 {
		b.tokens = float64(limit.BurstCapacity)
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	refillRate := float64(limit.RequestsPerWindow) / float64(limit.WindowSeconds)
	b.tokens += elapsed * refillRate
	if b.tokens > float64(limit.BurstCapacity) {
		b.tokens = float64(limit.BurstCapacity)
	}
	b.lastRefill = now
}

func secondsUntilOneToken(b *bucket, limit ratelimit.EffectiveRateLimit) int {
	if limit.RequestsPerWindow <= 0 || limit.WindowSeconds <= 0 {
		return limit.WindowSeconds
	}
	refillRate := float64(limit.RequestsPerWindow) / float64(limit.WindowSeconds)
	if refillRate <= 0 {
		return limit.WindowSeconds
	}
	deficit := 1 - b.tokens
	if deficit < 0 {
		deficit = 0
	}
	secs := int(deficit/refillRate) + 1
	return secs
}

func consumeFixedWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	advanceFixedWindow(b, limit, now)

	if b.windowCount >= limit.RequestsPerWindow {
		return ratelimit.Decision{
			Allowed:           false,
			Remaining:         0,
			CurrentUsage:      b.windowCount,
			Limit:             limit.RequestsPerWindow,
			ResetAfterSeconds: secondsUntilWindowReset(b, limit, now),
			RetryAfterSeconds: secondsUntilWindowReset(b, limit, now),
		}
	}

	b.windowCount++
	return ratelimit.Decision{
		Allowed:           true,
		Remaining:         limit.RequestsPerWindow - b.windowCount,
		CurrentUsage:      b.windowCount,
		Limit:             limit.RequestsPerWindow,
		ResetAfterSeconds: secondsUntilWindowReset(b, limit, now),
	}
}

func peekFixedWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	advanceFixedWindow(b, limit, now)
	remaining := limit.RequestsPerWindow - b.windowCount
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:           b.windowCount < limit.RequestsPerWindow,
		Remaining:         remaining,
		CurrentUsage:      b.windowCount,
		Limit:             limit.RequestsPerWindow,
		ResetAfterSeconds: secondsUntilWindowReset(b, limit, now),
	}
}

func advanceFixedWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) {
	if limit.WindowSeconds <= 0 {
		b.windowStart = now
		b.windowCount = 0
		return
	}
	ws := int64(limit.WindowSeconds)
	start := time.Unix(now.Unix()/ws*ws, 0)
	if !b.windowStart.Equal(start) {
		b.windowStart = start
		b.windowCount = 0
	}
}

func secondsUntilWindowReset(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) int {
	window := time.Duration(limit.WindowSeconds) * time.Second
	elapsed := now.Sub(b.windowStart)
	remaining := window - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining.Seconds())
}

// consumeSlidingWindow implements the sliding-window-counter approximation:
// the effective count is the current fixed window's count plus the
// previous window's count weighted by the fraction of the current window
// remaining, per spec.md's "weighted sum of the current and previous
// fixed windows by the fraction of the current window elapsed".
func consumeSlidingWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	weighted := advanceSlidingWindow(b, limit, now)

	if int(weighted) >= limit.RequestsPerWindow {
		return ratelimit.Decision{
			Allowed:           false,
			Remaining:         0,
			CurrentUsage:      int(weighted),
			Limit:             limit.RequestsPerWindow,
			ResetAfterSeconds: secondsUntilWindowRollover(b, limit, now),
			RetryAfterSeconds: secondsUntilWindowRollover(b, limit, now),
		}
	}

	b.curWindowCount++
	usage := int(weighted) + 1
	remaining := limit.RequestsPerWindow - usage
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:           true,
		Remaining:         remaining,
		CurrentUsage:      usage,
		Limit:             limit.RequestsPerWindow,
		ResetAfterSeconds: secondsUntilWindowRollover(b, limit, now),
	}
}

func peekSlidingWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) ratelimit.Decision {
	weighted := advanceSlidingWindow(b, limit, now)
	remaining := limit.RequestsPerWindow - int(weighted)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:           int(weighted) < limit.RequestsPerWindow,
		Remaining:         remaining,
		CurrentUsage:      int(weighted),
		Limit:             limit.RequestsPerWindow,
		ResetAfterSeconds: secondsUntilWindowRollover(b, limit, now),
	}
}

// advanceSlidingWindow rolls the window index forward if needed and
// returns the current weighted usage without consuming a unit.
func advanceSlidingWindow(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) float64 {
	if limit.WindowSeconds <= 0 {
		return float64(b.curWindowCount)
	}
	windowIndex := now.Unix() / int64(limit.WindowSeconds)

	switch {
	case !b.slidingInit:
		b.slidingInit = true
		b.curWindowIndex = windowIndex
	case windowIndex == b.curWindowIndex+1:
		b.prevWindowCount = b.curWindowCount
		b.curWindowCount = 0
		b.curWindowIndex = windowIndex
	case windowIndex > b.curWindowIndex+1:
		b.prevWindowCount = 0
		b.curWindowCount = 0
		b.curWindowIndex = windowIndex
	}

	windowStart := time.Unix(b.curWindowIndex*int64(limit.WindowSeconds), 0)
	elapsedFraction := now.Sub(windowStart).Seconds() / float64(limit.WindowSeconds)
	if elapsedFraction < 0 {
		elapsedFraction = 0
	}
	if elapsedFraction > 1 {
		elapsedFraction = 1
	}

	return float64(b.prevWindowCount)*(1-elapsedFraction) + float64(b.curWindowCount)
}

func secondsUntilWindowRollover(b *bucket, limit ratelimit.EffectiveRateLimit, now time.Time) int {
	windowStart := time.Unix(b.curWindowIndex*int64(limit.WindowSeconds), 0)
	windowEnd := windowStart.Add(time.Duration(limit.WindowSeconds) * time.Second)
	remaining := windowEnd.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining.Seconds())
}

// StartCleanup starts the background goroutine that periodically evicts
// buckets untouched for longer than maxIdle. It stops when ctx is
// cancelled or Stop is called.
func (r *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *MemoryRateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.maxIdle)
	cleaned := 0
	for key, b := range r.buckets {
		if b.touched.Before(cutoff) {
			delete(r.buckets, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.buckets))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (r *MemoryRateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the current number of tracked keys. Useful for testing and
// monitoring memory usage.
func (r *MemoryRateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
