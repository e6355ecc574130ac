// Package gateway defines the terminal outcome taxonomy produced by the
// request pipeline (C14) and consumed by protocol adapters to render a
// status code and body.
package gateway

import "net/http"

// Kind discriminates which GatewayResult variant is populated.
type Kind string

const (
	// KindSuccess is a completed upstream forward.
	KindSuccess Kind = "success"
	// KindRouteNotFound means no registered endpoint matched the path/method.
	KindRouteNotFound Kind = "route_not_found"
	// KindServiceNotFound means a pass-through request named an unknown service id.
	KindServiceNotFound Kind = "service_not_found"
	// KindReservedPath means a pass-through request targeted a reserved id.
	KindReservedPath Kind = "reserved_path"
	// KindAccessDenied means the access-control evaluator (C4) rejected the source.
	KindAccessDenied Kind = "access_denied"
	// KindInvalid means a structural request defect (C5, registration validation).
	KindInvalid Kind = "invalid"
	// KindUnauthorized means authentication (C8) failed or was absent.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden means authorization (C8/C9) rejected an authenticated identity.
	KindForbidden Kind = "forbidden"
	// KindRateLimited means C10 rejected the request.
	KindRateLimited Kind = "rate_limited"
	// KindError means the upstream forward (C13) failed.
	KindError Kind = "error"
	// KindGatewayTimeout means the upstream forward (C13) timed out.
	KindGatewayTimeout Kind = "gateway_timeout"
)

// RateLimitDecision carries the outcome of a rate-limit check (C10), enough
// for the adapter to render Retry-After and X-RateLimit-* headers.
type RateLimitDecision struct {
	Allowed           bool
	Limit             int
	Remaining         int
	RetrySeconds      int
	ResetAfterSeconds int
}

// Result is the single terminal outcome of a pipeline run. Exactly the
// fields relevant to Kind are meaningful; it is a flat struct rather than an
// interface hierarchy so adapters can switch on Kind without type
// assertions.
type Result struct {
	Kind Kind

	// Success fields.
	Status  int
	Headers http.Header
	Body    []byte

	// RouteNotFound / ServiceNotFound / ReservedPath.
	Path      string
	ServiceID string

	// AccessDenied / Unauthorized / Forbidden.
	Reason string

	// Invalid.
	SuggestedStatus int

	// RateLimited.
	Decision RateLimitDecision

	// Error.
	Message string
}

// HTTPStatus returns the status code an adapter should render for r.
func (r Result) HTTPStatus() int {
	switch r.Kind {
	case KindSuccess:
		return r.Status
	case KindRouteNotFound, KindServiceNotFound, KindReservedPath:
		return http.StatusNotFound
	case KindAccessDenied, KindForbidden:
		return http.StatusForbidden
	case KindInvalid:
		if r.SuggestedStatus != 0 {
			return r.SuggestedStatus
		}
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindError:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Ok reports whether r represents a successful forward.
func (r Result) Ok() bool {
	return r.Kind == KindSuccess
}

// Success builds a KindSuccess result.
func Success(status int, headers http.Header, body []byte) Result {
	return Result{Kind: KindSuccess, Status: status, Headers: headers, Body: body}
}

// RouteNotFound builds a KindRouteNotFound result.
func RouteNotFound(path string) Result {
	return Result{Kind: KindRouteNotFound, Path: path}
}

// ServiceNotFound builds a KindServiceNotFound result.
func ServiceNotFound(serviceID string) Result {
	return Result{Kind: KindServiceNotFound, ServiceID: serviceID}
}

// ReservedPath builds a KindReservedPath result.
func ReservedPath(path string) Result {
	return Result{Kind: KindReservedPath, Path: path}
}

// AccessDenied builds a KindAccessDenied result.
func AccessDenied(reason string) Result {
	return Result{Kind: KindAccessDenied, Reason: reason}
}

// Invalid builds a KindInvalid result with a suggested status code.
func Invalid(reason string, suggestedStatus int) Result {
	return Result{Kind: KindInvalid, Reason: reason, SuggestedStatus: suggestedStatus}
}

// Unauthorized builds a KindUnauthorized result.
func Unauthorized(reason string) Result {
	return Result{Kind: KindUnauthorized, Reason: reason}
}

// Forbidden builds a KindForbidden result.
func Forbidden(reason string) Result {
	return Result{Kind: KindForbidden, Reason: reason}
}

// RateLimited builds a KindRateLimited result.
func RateLimited(decision RateLimitDecision) Result {
	return Result{Kind: KindRateLimited, Decision: decision}
}

// Error builds a KindError result for an upstream forwarding failure.
func Error(message string) Result {
	return Result{Kind: KindError, Message: message}
}

// GatewayTimeout builds a KindGatewayTimeout result.
func GatewayTimeout() Result {
	return Result{Kind: KindGatewayTimeout}
}
