package authn

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// RouteAuthInput is the subset of a matched route Authenticate needs: the
// resolved auth requirement and the audience/service id to mint the
// re-issued token for. Callers build this from the registry's
// EndpointConfig/ServiceRegistration rather than authn importing registry
// directly.
type RouteAuthInput struct {
	AuthRequired bool
	Audience     string
	ServiceID    string
}

// RevocationChecker is the revocation-pipeline collaborator (C11),
// consulted after token validation and before re-issuance. Defined here,
// at the point of use, so authn has no compile-time dependency on the
// revocation package.
type RevocationChecker interface {
	// IsRevoked reports whether jti (or userId, if user-wide revocation
	// applies) is revoked as of the token's issuedAt time. expiresAt lets
	// the checker apply its own TTL shortcut (spec.md §4.10 tier 1):
	// tokens close enough to expiry skip the check entirely.
	IsRevoked(ctx context.Context, jti, userID string, issuedAt, expiresAt time.Time) (bool, error)
}

// Config tunes the re-issued token's lifetime.
type Config struct {
	// TokenTTL is how long a re-issued AussieToken is valid for.
	TokenTTL time.Duration
}

// Service implements C8: authenticate(request, route) -> Result.
type Service struct {
	cfg        Config
	validator  outbound.TokenValidator
	issuer     outbound.TokenIssuer
	revocation RevocationChecker
}

// New creates a Service. revocation may be nil, in which case the
// revocation check is skipped entirely (useful for tests and for
// deployments that run C11 out of process).
func New(cfg Config, validator outbound.TokenValidator, issuer outbound.TokenIssuer, revocation RevocationChecker) *Service {
	return &Service{cfg: cfg, validator: validator, issuer: issuer, revocation: revocation}
}

// ExtractBearerToken pulls the bearer token out of an Authorization
// header, or "" if absent or malformed.
func ExtractBearerToken(headers http.Header) string {
	auth := headers.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// Authenticate decides whether the request may proceed, per C8's
// contract. If route.AuthRequired is false, it returns NotRequired
// without inspecting the request at all.
func (s *Service) Authenticate(ctx context.Context, headers http.Header, route RouteAuthInput) Result {
	if !route.AuthRequired {
		return NotRequired()
	}

	raw := ExtractBearerToken(headers)
	if raw == "" {
		return Unauthorized("missing bearer token")
	}

	claims, err := s.validator.Validate(ctx, raw)
	if err != nil {
		return Unauthorized("invalid token: " + err.Error())
	}

	if s.revocation != nil {
		revoked, rerr := s.revocation.IsRevoked(ctx, claims.JTI, claims.Subject, claims.IssuedAt, claims.ExpiresAt)
		if rerr != nil {
			// Revocation-layer failures are its own fail-open/closed
			// policy (C11); a hard error here means the check itself
			// could not run, which we treat as a validation failure.
			return Unauthorized("revocation check failed: " + rerr.Error())
		}
		if revoked {
			return Unauthorized("revoked")
		}
	}

	audience := route.Audience
	if audience == "" {
		audience = route.ServiceID
	}

	issued, err := s.issuer.Issue(ctx, outbound.IssueRequest{
		Subject:     claims.Subject,
		OriginalIss: claims.Issuer,
		Audience:    audience,
		TTL:         s.ttl(),
		Claims:      claims.Extra,
	})
	if err != nil {
		return Unauthorized("token re-issuance failed: " + err.Error())
	}

	return Authenticated(AussieToken{
		JWS:       issued.JWS,
		Subject:   claims.Subject,
		ExpiresAt: issued.ExpiresAt,
		Claims:    claims.Extra,
	}, claims.Permissions)
}

func (s *Service) ttl() time.Duration {
	if s.cfg.TokenTTL > 0 {
		return s.cfg.TokenTTL
	}
	return 5 * time.Minute
}
