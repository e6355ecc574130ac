package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

func TestRevocationStoreRevokeThenIsRevoked(t *testing.T) {
	s := NewRevocationStore()
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("expected not revoked before Revoke")
	}

	if err := s.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	revoked, err = s.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked after Revoke")
	}
}

func TestRevocationStoreExpiredEntryNotRevoked(t *testing.T) {
	s := NewRevocationStore()
	ctx := context.Background()

	if err := s.Revoke(ctx, "jti-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("expected already-expired revocation to report not revoked")
	}
}

func TestRevocationStoreUserRevocation(t *testing.T) {
	s := NewRevocationStore()
	ctx := context.Background()
	cutoff := time.Now()

	if err := s.RevokeAllForUser(ctx, "user-1", cutoff, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke all for user: %v", err)
	}

	revoked, err := s.IsUserRevoked(ctx, "user-1", cutoff.Add(-time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Fatal("expected token issued before cutoff to be revoked")
	}

	revoked, err = s.IsUserRevoked(ctx, "user-1", cutoff.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if revoked {
		t.Fatal("expected token issued after cutoff to not be revoked")
	}
}

func TestRevocationStoreStreamAllRevokedJtis(t *testing.T) {
	s := NewRevocationStore()
	ctx := context.Background()
	if err := s.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.Revoke(ctx, "jti-expired", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	ch, err := s.StreamAllRevokedJtis(ctx)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var seen []string
	for jti := range ch {
		seen = append(seen, jti)
	}
	if len(seen) != 1 || seen[0] != "jti-1" {
		t.Fatalf("expected only the non-expired jti to stream, got %v", seen)
	}
}

func TestRevocationStorePublishSubscribe(t *testing.T) {
	s := NewRevocationStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := s.Publish(ctx, outbound.RevocationEvent{Kind: outbound.RevocationEventJTI, JTI: "jti-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.JTI != "jti-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestRevocationStoreCleanupEvictsExpired(t *testing.T) {
	s := NewRevocationStore()
	s.cleanupInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Revoke(context.Background(), "jti-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	s.StartCleanup(ctx)
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		_, stillPresent := s.jtis["jti-1"]
		s.mu.Unlock()
		if !stillPresent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for cleanup to evict expired entry")
		}
		time.Sleep(time.Millisecond)
	}
}
