package revocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

type fakeStore struct {
	mu          sync.Mutex
	jtis        map[string]time.Time
	users       map[string]time.Time
	isRevokedErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jtis: map[string]time.Time{}, users: map[string]time.Time{}}
}

func (f *fakeStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jtis[jti] = expiresAt
	return nil
}

func (f *fakeStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isRevokedErr != nil {
		return false, f.isRevokedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.jtis[jti]
	return ok, nil
}

func (f *fakeStore) RevokeAllForUser(ctx context.Context, userID string, issuedBefore, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = issuedBefore
	return nil
}

func (f *fakeStore) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff, ok := f.users[userID]
	return ok && issuedAt.Before(cutoff), nil
}

func (f *fakeStore) StreamAllRevokedJtis(ctx context.Context) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan string, len(f.jtis))
	for jti := range f.jtis {
		ch <- jti
	}
	close(ch)
	return ch, nil
}

func (f *fakeStore) StreamAllRevokedUsers(ctx context.Context) (<-chan outbound.RevokedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan outbound.RevokedUser, len(f.users))
	for u, cutoff := range f.users {
		ch <- outbound.RevokedUser{UserID: u, IssuedBefore: cutoff}
	}
	close(ch)
	return ch, nil
}

var _ outbound.TokenRevocationRepository = (*fakeStore)(nil)

type fakePublisher struct {
	mu   sync.Mutex
	subs []chan outbound.RevocationEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event outbound.RevocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		ch <- event
	}
	return nil
}

func (p *fakePublisher) Subscribe(ctx context.Context) (<-chan outbound.RevocationEvent, error) {
	ch := make(chan outbound.RevocationEvent, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

var _ outbound.RevocationEventPublisher = (*fakePublisher)(nil)

func TestPipelineNotRevokedByDefault(t *testing.T) {
	store := newFakeStore()
	p := New(Config{}, store, nil, nil)

	revoked, err := p.IsRevoked(context.Background(), "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("expected not revoked")
	}
}

func TestPipelineRevokeThenHit(t *testing.T) {
	store := newFakeStore()
	p := New(Config{}, store, nil, nil)
	ctx := context.Background()

	if err := p.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	revoked, err := p.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked=true after Revoke")
	}
}

func TestPipelineTTLShortcutSkipsCheck(t *testing.T) {
	store := newFakeStore()
	p := New(Config{CheckThreshold: time.Minute}, store, nil, nil)
	ctx := context.Background()

	if err := p.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// expiresAt is within CheckThreshold of now, so the shortcut should
	// report not-revoked even though the token was, in fact, revoked.
	revoked, err := p.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(10*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("expected TTL shortcut to bypass the revocation check")
	}
}

func TestPipelineUserRevocation(t *testing.T) {
	store := newFakeStore()
	p := New(Config{UserRevocationEnabled: true}, store, nil, nil)
	ctx := context.Background()

	issuedAt := time.Now().Add(-time.Hour)
	cutoff := time.Now()
	if err := p.RevokeAllForUser(ctx, "user-1", cutoff, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke all for user: %v", err)
	}

	revoked, err := p.IsRevoked(ctx, "jti-unrelated", "user-1", issuedAt, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("expected a token issued before the user-wide cutoff to be revoked")
	}
}

func TestPipelineStoreFailureFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.jtis["jti-1"] = time.Now().Add(time.Hour)
	p := New(Config{FailOpen: true}, store, nil, nil)
	ctx := context.Background()

	// Seed the bloom filter so the check escalates to the (failing) store.
	p.filter.Load().Add("jti-1")
	store.isRevokedErr = errors.New("store unreachable")

	revoked, err := p.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("expected fail-open to swallow the store error, got %v", err)
	}
	if revoked {
		t.Fatal("expected fail-open to report not-revoked on store failure")
	}
}

func TestPipelineStoreFailureFailsClosedWhenConfigured(t *testing.T) {
	store := newFakeStore()
	p := New(Config{FailOpen: false}, store, nil, nil)
	ctx := context.Background()

	p.filter.Load().Add("jti-1")
	store.isRevokedErr = errors.New("store unreachable")

	_, err := p.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("expected fail-closed to surface the store error")
	}
}

func TestPipelineRebuild(t *testing.T) {
	store := newFakeStore()
	store.jtis["jti-1"] = time.Now().Add(time.Hour)
	p := New(Config{}, store, nil, nil)

	if err := p.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !p.filter.Load().Contains("jti-1") {
		t.Fatal("expected rebuilt filter to contain the store's revoked jti")
	}
}

func TestPipelinePubSubInvalidatesPeerCache(t *testing.T) {
	defer goleak.VerifyNone(t)

	storeA := newFakeStore()
	storeB := newFakeStore()
	pub := &fakePublisher{}
	pA := New(Config{}, storeA, pub, nil)
	pB := New(Config{}, storeB, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pB.StartSubscriptionLoop(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// B answers not-revoked for jti-1 (bloom filter miss) before A revokes it.
	revoked, err := pB.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err != nil || revoked {
		t.Fatalf("expected initial not-revoked, got revoked=%v err=%v", revoked, err)
	}

	if err := pA.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if pB.filter.Load().Contains("jti-1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for pub/sub propagation to B's filter")
		}
		time.Sleep(time.Millisecond)
	}

	storeB.mu.Lock()
	storeB.jtis["jti-1"] = time.Now().Add(time.Hour)
	storeB.mu.Unlock()

	revoked, err = pB.IsRevoked(ctx, "jti-1", "", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("expected B to observe the revocation after pub/sub delivery")
	}

	cancel()
	pA.Stop()
	pB.Stop()
}
