package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

func TestIssueThenValidateRoundTrip(t *testing.T) {
	c := New(Config{SigningKey: []byte("test-secret-key-material")})

	issued, err := c.Issue(context.Background(), outbound.IssueRequest{
		Subject:  "user-1",
		Audience: "svc-a",
		TTL:      time.Minute,
		Claims:   map[string]string{"team": "payments"},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.JWS == "" {
		t.Fatal("expected a non-empty signed token")
	}

	claims, err := c.Validate(context.Background(), issued.JWS)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %q", claims.Subject)
	}
	if claims.JTI != issued.JTI {
		t.Errorf("expected jti %q, got %q", issued.JTI, claims.JTI)
	}
	if claims.Extra["team"] != "payments" {
		t.Errorf("expected extra claim carried through, got %v", claims.Extra)
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	c1 := New(Config{SigningKey: []byte("key-one-material-long-enough")})
	c2 := New(Config{SigningKey: []byte("key-two-material-long-enough")})

	issued, err := c1.Issue(context.Background(), outbound.IssueRequest{Subject: "u", Audience: "a"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c2.Validate(context.Background(), issued.JWS); err == nil {
		t.Fatal("expected validation to fail under a different signing key")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	c := New(Config{SigningKey: []byte("test-secret-key-material")})
	issued, err := c.Issue(context.Background(), outbound.IssueRequest{Subject: "u", Audience: "a", TTL: -time.Minute})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Validate(context.Background(), issued.JWS); err == nil {
		t.Fatal("expected validation to fail for an already-expired token")
	}
}
