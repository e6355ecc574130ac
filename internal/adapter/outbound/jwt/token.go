// Package jwt provides an HMAC-signed, github.com/golang-jwt/jwt/v5-backed
// implementation of the TokenValidator and TokenIssuer outbound ports.
// Identity-provider integration and key management proper are out of the
// core's scope; this adapter is the one concrete instance this module
// ships so those ports have something real to exercise.
package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// claims is the on-the-wire JWS claim set: standard registered claims plus
// the gateway's own permission and extra-claim carryover.
type claims struct {
	jwt.RegisteredClaims
	Permissions []string          `json:"permissions,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Config holds the shared HMAC signing key and default issuer name used
// for re-issued tokens.
type Config struct {
	// SigningKey is the HMAC-SHA256 secret. Must be non-empty.
	SigningKey []byte
	// Issuer is the "iss" claim stamped on every re-issued AussieToken.
	Issuer string
}

// Codec implements both outbound.TokenValidator and outbound.TokenIssuer
// over a single shared HMAC key.
type Codec struct {
	cfg Config
}

// New creates a Codec. Panics if cfg.SigningKey is empty, matching the
// teacher's convention of failing fast on unusable security configuration
// at construction time rather than on first use.
func New(cfg Config) *Codec {
	if len(cfg.SigningKey) == 0 {
		panic("jwt: signing key must not be empty")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "sentinelgate-core"
	}
	return &Codec{cfg: cfg}
}

// Validate implements outbound.TokenValidator.
func (c *Codec) Validate(ctx context.Context, rawToken string) (outbound.IncomingClaims, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(rawToken, &cl, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.cfg.SigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return outbound.IncomingClaims{}, fmt.Errorf("jwt: validate: %w", err)
	}

	var issuedAt, expiresAt time.Time
	if cl.IssuedAt != nil {
		issuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		expiresAt = cl.ExpiresAt.Time
	}
	audience := ""
	if len(cl.Audience) > 0 {
		audience = cl.Audience[0]
	}

	return outbound.IncomingClaims{
		Subject:     cl.Subject,
		JTI:         cl.ID,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Issuer:      cl.Issuer,
		Audience:    audience,
		Permissions: cl.Permissions,
		Extra:       cl.Extra,
	}, nil
}

// Issue implements outbound.TokenIssuer.
func (c *Codec) Issue(ctx context.Context, req outbound.IssueRequest) (outbound.IssuedToken, error) {
	now := time.Now()
	ttl := req.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	jti, err := newJTI()
	if err != nil {
		return outbound.IssuedToken{}, fmt.Errorf("jwt: generate jti: %w", err)
	}
	expiresAt := now.Add(ttl)

	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   req.Subject,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{req.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Extra: req.Claims,
	}
	if req.OriginalIss != "" {
		if cl.Extra == nil {
			cl.Extra = map[string]string{}
		}
		cl.Extra["original_iss"] = req.OriginalIss
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := token.SignedString(c.cfg.SigningKey)
	if err != nil {
		return outbound.IssuedToken{}, fmt.Errorf("jwt: sign: %w", err)
	}

	return outbound.IssuedToken{JWS: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

func newJTI() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Compile-time interface checks.
var (
	_ outbound.TokenValidator = (*Codec)(nil)
	_ outbound.TokenIssuer    = (*Codec)(nil)
)
