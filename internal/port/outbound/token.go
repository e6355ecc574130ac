package outbound

import (
	"context"
	"time"
)

// IncomingClaims is what a TokenValidator recovers from a caller-presented
// bearer token: enough to drive revocation lookup and re-issuance.
type IncomingClaims struct {
	Subject   string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
	Audience  string
	// Permissions is the caller's permission set, used by C9.
	Permissions []string
	// Extra carries any additional claims the issuer wants forwarded
	// verbatim into a re-issued AussieToken.
	Extra map[string]string
}

// TokenValidator is the outbound port for validating a caller-presented
// bearer token (signature, issuer, audience, exp, nbf). Concrete identity
// provider integration lives entirely behind this port.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (IncomingClaims, error)
}

// IssueRequest carries what TokenIssuer needs to mint a short-lived
// AussieToken for forwarding to a backend.
type IssueRequest struct {
	Subject     string
	OriginalIss string
	Audience    string
	TTL         time.Duration
	Claims      map[string]string
}

// IssuedToken is the signed artifact an issuer produces.
type IssuedToken struct {
	JWS       string
	JTI       string
	ExpiresAt time.Time
}

// TokenIssuer is the outbound port for minting the short-lived signed
// identity (AussieToken) the core forwards to backends.
type TokenIssuer interface {
	Issue(ctx context.Context, req IssueRequest) (IssuedToken, error)
}
