// Package authn implements the route authentication service (spec
// component C8): deciding whether an incoming request's bearer token is
// required, valid, and not revoked, and re-issuing a short-lived signed
// identity (an AussieToken) to forward to the backend.
package authn

import "time"

// AussieToken is the short-lived signed identity the core re-issues and
// forwards to backends in place of the caller's original token.
type AussieToken struct {
	JWS       string
	Subject   string
	ExpiresAt time.Time
	Claims    map[string]string
}

// ResultKind discriminates the four possible outcomes of Authenticate.
type ResultKind string

const (
	// KindNotRequired means the endpoint does not require authentication.
	KindNotRequired ResultKind = "not_required"
	// KindAuthenticated means the token validated and was re-issued.
	KindAuthenticated ResultKind = "authenticated"
	// KindUnauthorized means the token was missing, invalid, expired, or revoked.
	KindUnauthorized ResultKind = "unauthorized"
	// KindForbidden means the token was valid but access is denied.
	KindForbidden ResultKind = "forbidden"
)

// Result is the outcome of Authenticate.
type Result struct {
	Kind ResultKind

	// Token is populated only for KindAuthenticated.
	Token AussieToken

	// Reason is populated for KindUnauthorized and KindForbidden.
	Reason string

	// Permissions is the caller's permission set, carried through for C9
	// even when Kind is KindNotRequired (empty in that case) or
	// KindAuthenticated.
	Permissions []string
}

// NotRequired builds a KindNotRequired result.
func NotRequired() Result { return Result{Kind: KindNotRequired} }

// Authenticated builds a KindAuthenticated result.
func Authenticated(token AussieToken, permissions []string) Result {
	return Result{Kind: KindAuthenticated, Token: token, Permissions: permissions}
}

// Unauthorized builds a KindUnauthorized result.
func Unauthorized(reason string) Result {
	return Result{Kind: KindUnauthorized, Reason: reason}
}

// Forbidden builds a KindForbidden result.
func Forbidden(reason string) Result {
	return Result{Kind: KindForbidden, Reason: reason}
}
