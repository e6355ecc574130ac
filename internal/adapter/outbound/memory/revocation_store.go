package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// MemoryRevocationStore implements both outbound.TokenRevocationRepository
// and outbound.RevocationEventPublisher entirely in process memory, with
// the same background-sweep lifecycle as MemoryRateLimiter: intended for single-instance deployments or tests,
// where in-process pub/sub is equivalent to cross-instance pub/sub because
// there is only one instance.
type MemoryRevocationStore struct {
	mu    sync.Mutex
	jtis  map[string]time.Time // jti -> expiresAt
	users map[string]userRevocation

	subsMu sync.Mutex
	subs   []chan outbound.RevocationEvent

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
}

type userRevocation struct {
	issuedBefore time.Time
	expiresAt    time.Time
}

// NewRevocationStore creates a MemoryRevocationStore with a default
// cleanup interval of 5 minutes.
func NewRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		jtis:            make(map[string]time.Time),
		users:           make(map[string]userRevocation),
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
	}
}

// Revoke implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jtis[jti] = expiresAt
	return nil
}

// IsRevoked implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.jtis[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		return false, nil
	}
	return true, nil
}

// RevokeAllForUser implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) RevokeAllForUser(ctx context.Context, userID string, issuedBefore, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userRevocation{issuedBefore: issuedBefore, expiresAt: expiresAt}
	return nil
}

// IsUserRevoked implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.users[userID]
	if !ok || time.Now().After(rev.expiresAt) {
		return false, nil
	}
	return issuedAt.Before(rev.issuedBefore), nil
}

// StreamAllRevokedJtis implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) StreamAllRevokedJtis(ctx context.Context) (<-chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ch := make(chan string, len(s.jtis))
	for jti, exp := range s.jtis {
		if now.Before(exp) {
			ch <- jti
		}
	}
	close(ch)
	return ch, nil
}

// StreamAllRevokedUsers implements outbound.TokenRevocationRepository.
func (s *MemoryRevocationStore) StreamAllRevokedUsers(ctx context.Context) (<-chan outbound.RevokedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	ch := make(chan outbound.RevokedUser, len(s.users))
	for userID, rev := range s.users {
		if now.Before(rev.expiresAt) {
			ch <- outbound.RevokedUser{UserID: userID, IssuedBefore: rev.issuedBefore}
		}
	}
	close(ch)
	return ch, nil
}

// Publish implements outbound.RevocationEventPublisher, fanning the event
// out to every subscriber registered via Subscribe.
func (s *MemoryRevocationStore) Publish(ctx context.Context, event outbound.RevocationEvent) error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// A slow subscriber drops the event rather than blocking the
			// publisher; the periodic rebuild is the backstop.
		}
	}
	return nil
}

// Subscribe implements outbound.RevocationEventPublisher. The returned
// channel closes when ctx is cancelled.
func (s *MemoryRevocationStore) Subscribe(ctx context.Context) (<-chan outbound.RevocationEvent, error) {
	ch := make(chan outbound.RevocationEvent, 64)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// StartCleanup starts the background goroutine that periodically evicts
// expired jti and user entries.
func (s *MemoryRevocationStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *MemoryRevocationStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for jti, exp := range s.jtis {
		if now.After(exp) {
			delete(s.jtis, jti)
		}
	}
	for userID, rev := range s.users {
		if now.After(rev.expiresAt) {
			delete(s.users, userID)
		}
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *MemoryRevocationStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

var (
	_ outbound.TokenRevocationRepository = (*MemoryRevocationStore)(nil)
	_ outbound.RevocationEventPublisher  = (*MemoryRevocationStore)(nil)
)
