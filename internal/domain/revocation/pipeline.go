package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// userEntry is the cached shape of a user-wide revocation, recorded by
// RevokeAllForUser, Rebuild and incoming user events. IsRevoked does not
// read it: the user tier is always answered by the store.
type userEntry struct {
	issuedBefore time.Time
}

// Pipeline implements C11: the tiered revocation check (TTL shortcut, bloom
// filter, local LRU, remote store) plus the mutation paths that keep all
// three caches and the remote store in sync, cross-instance pub/sub
// invalidation, and periodic filter rebuild. It satisfies
// internal/domain/authn.RevocationChecker structurally.
type Pipeline struct {
	cfg       Config
	store     outbound.TokenRevocationRepository
	publisher outbound.RevocationEventPublisher
	logger    *slog.Logger

	filter atomic.Pointer[BloomFilter]
	cache  *localCache

	usersMu sync.Mutex
	users   map[string]userEntry

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New creates a Pipeline with an empty bloom filter; callers should follow
// up with Rebuild (or StartRebuildLoop) to populate it from the store, per
// spec.md §4.10's "empty filter on first boot, async rebuild" trade-off.
func New(cfg Config, store outbound.TokenRevocationRepository, publisher outbound.RevocationEventPublisher, logger *slog.Logger) *Pipeline {
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		logger:    logger,
		cache:     newLocalCache(cfg.LocalCacheSize, cfg.LocalCacheTTL),
		users:     make(map[string]userEntry),
		stopChan:  make(chan struct{}),
	}
	p.filter.Store(NewBloomFilter(cfg.BloomExpectedItems, cfg.BloomFalsePositiveRate))
	return p
}

// IsRevoked implements authn.RevocationChecker, running the four-tier
// check in order: TTL shortcut, bloom filter, local LRU, remote store.
func (p *Pipeline) IsRevoked(ctx context.Context, jti, userID string, issuedAt, expiresAt time.Time) (bool, error) {
	if !expiresAt.IsZero() && time.Until(expiresAt) < p.cfg.CheckThreshold {
		return false, nil
	}

	filter := p.filter.Load()
	jtiMaybe := filter.Contains(jti)
	userMaybe := p.cfg.UserRevocationEnabled && userID != "" && filter.Contains(userKey(userID))
	if !jtiMaybe && !userMaybe {
		return false, nil
	}

	now := time.Now()
	if revoked, ok := p.cache.get(jti, now); ok {
		return revoked, nil
	}

	revoked, err := p.checkStore(ctx, jti, userID, issuedAt)
	if err != nil {
		if p.cfg.FailOpen {
			p.logger.Warn("revocation store check failed, failing open", "error", err, "jti", jti)
			return false, nil
		}
		return false, fmt.Errorf("revocation: store check: %w", err)
	}

	p.cache.set(jti, revoked, now)
	return revoked, nil
}

func (p *Pipeline) checkStore(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	revoked, err := p.store.IsRevoked(ctx, jti)
	if err != nil {
		return false, err
	}
	if revoked {
		return true, nil
	}
	if p.cfg.UserRevocationEnabled && userID != "" {
		userRevoked, uerr := p.store.IsUserRevoked(ctx, userID, issuedAt)
		if uerr != nil {
			return false, uerr
		}
		if userRevoked {
			return true, nil
		}
	}
	return false, nil
}

// Revoke marks jti as revoked until expiresAt: writes to the remote store,
// inserts into the local bloom filter, and publishes a cross-instance
// invalidation event.
func (p *Pipeline) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := p.store.Revoke(ctx, jti, expiresAt); err != nil {
		return fmt.Errorf("revocation: store revoke: %w", err)
	}
	p.filter.Load().Add(jti)
	p.cache.set(jti, true, time.Now())
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, outbound.RevocationEvent{
			Kind: outbound.RevocationEventJTI, JTI: jti, ExpiresAt: expiresAt,
		}); err != nil {
			p.logger.Warn("revocation event publish failed", "error", err, "jti", jti)
		}
	}
	return nil
}

// RevokeAllForUser marks every token issued to userID before issuedBefore
// as revoked, with the same store/filter/publish sequence as Revoke.
func (p *Pipeline) RevokeAllForUser(ctx context.Context, userID string, issuedBefore, expiresAt time.Time) error {
	if err := p.store.RevokeAllForUser(ctx, userID, issuedBefore, expiresAt); err != nil {
		return fmt.Errorf("revocation: store revoke-all-for-user: %w", err)
	}
	p.filter.Load().Add(userKey(userID))
	p.recordUser(userID, issuedBefore)
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, outbound.RevocationEvent{
			Kind: outbound.RevocationEventUser, UserID: userID, IssuedBefore: issuedBefore, ExpiresAt: expiresAt,
		}); err != nil {
			p.logger.Warn("revocation event publish failed", "error", err, "user_id", userID)
		}
	}
	return nil
}

func (p *Pipeline) recordUser(userID string, issuedBefore time.Time) {
	p.usersMu.Lock()
	defer p.usersMu.Unlock()
	p.users[userID] = userEntry{issuedBefore: issuedBefore}
}

// Rebuild streams every currently-revoked jti and user from the store into
// a freshly-sized filter and atomically swaps it in. On store failure the
// existing filter keeps serving, per spec.md §4.10.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	fresh := NewBloomFilter(p.cfg.BloomExpectedItems, p.cfg.BloomFalsePositiveRate)

	jtis, err := p.store.StreamAllRevokedJtis(ctx)
	if err != nil {
		return fmt.Errorf("revocation: stream jtis: %w", err)
	}
	for jti := range jtis {
		fresh.Add(jti)
	}

	if p.cfg.UserRevocationEnabled {
		users, uerr := p.store.StreamAllRevokedUsers(ctx)
		if uerr != nil {
			return fmt.Errorf("revocation: stream users: %w", uerr)
		}
		for u := range users {
			fresh.Add(userKey(u.UserID))
			p.recordUser(u.UserID, u.IssuedBefore)
		}
	}

	p.filter.Store(fresh)
	return nil
}

// StartRebuildLoop runs Rebuild every cfg.RebuildInterval until ctx is
// cancelled or Stop is called. A zero interval disables the loop.
func (p *Pipeline) StartRebuildLoop(ctx context.Context) {
	if p.cfg.RebuildInterval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.RebuildInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				if err := p.Rebuild(ctx); err != nil {
					p.logger.Warn("revocation filter rebuild failed, retaining previous filter", "error", err)
				}
			}
		}
	}()
}

// StartSubscriptionLoop consumes cross-instance revocation events and
// applies them to this instance's filter and cache: a positive event
// inserts into the bloom filter and invalidates any cached negative answer
// for that key, so the next IsRevoked call re-escalates to the store.
func (p *Pipeline) StartSubscriptionLoop(ctx context.Context) error {
	if p.publisher == nil {
		return nil
	}
	events, err := p.publisher.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("revocation: subscribe: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p.applyEvent(ev)
			}
		}
	}()
	return nil
}

func (p *Pipeline) applyEvent(ev outbound.RevocationEvent) {
	switch ev.Kind {
	case outbound.RevocationEventJTI:
		p.filter.Load().Add(ev.JTI)
		p.cache.invalidate(ev.JTI)
	case outbound.RevocationEventUser:
		p.filter.Load().Add(userKey(ev.UserID))
		p.recordUser(ev.UserID, ev.IssuedBefore)
	}
}

// Stop signals the rebuild and subscription loops to exit and waits for
// them. Safe to call multiple times.
func (p *Pipeline) Stop() {
	p.once.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

func userKey(userID string) string {
	return "user:" + userID
}
