package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/authn"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/authz"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/forward"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sizelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// Mode selects which of C14's two dispatch variants a Pipeline runs:
// endpoint-pattern matching across every registered service (gateway
// mode), or first-path-segment service addressing (pass-through mode).
type Mode string

const (
	ModeGateway     Mode = "gateway"
	ModePassThrough Mode = "pass_through"
)

// Request is the protocol-agnostic input to Handle, built by an inbound
// HTTP adapter from the wire request.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Headers  http.Header
	Body     []byte

	// PeerIP is the socket-level remote address (no forwarding headers
	// trusted yet).
	PeerIP string
	// RequestHost is the request's own Host, as resolved by the transport
	// (i.e. before any X-Forwarded-Host rewrite).
	RequestHost string
	// Scheme is "http" or "https" for the inbound connection.
	Scheme string
}

// Pipeline implements C14: one pass of the full security and forwarding
// chain per request, producing a single terminal Result.
type Pipeline struct {
	mode Mode

	trustedProxy  *network.TrustedProxyValidator
	access        *network.AccessController
	sizeValidator *sizelimit.Validator
	registry      *registry.Registry
	rateResolver  *ratelimit.Resolver
	rateLimiter   outbound.RateLimiter
	authn         *authn.Service
	authz         *authz.Service
	preparer      *forward.Preparer
	proxyClient   outbound.ProxyClient
	observer      Observer

	logger *slog.Logger
}

// Dependencies bundles every collaborator a Pipeline needs. Fields left
// nil degrade gracefully: a nil SizeValidator skips C5, a nil Authz skips
// C9, matching each component's own "optional collaborator" conventions.
type Dependencies struct {
	TrustedProxy  *network.TrustedProxyValidator
	Access        *network.AccessController
	SizeValidator *sizelimit.Validator
	Registry      *registry.Registry
	RateResolver  *ratelimit.Resolver
	RateLimiter   outbound.RateLimiter
	Authn         *authn.Service
	Authz         *authz.Service
	Preparer      *forward.Preparer
	ProxyClient   outbound.ProxyClient
	// Observer receives the "observable events" spec.md §1 hands off to an
	// external telemetry collaborator. A nil Observer runs silently.
	Observer Observer
	Logger   *slog.Logger
}

// NewPipeline creates a Pipeline for the given mode and dependency set.
func NewPipeline(mode Mode, deps Dependencies) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Pipeline{
		mode:          mode,
		trustedProxy:  deps.TrustedProxy,
		access:        deps.Access,
		sizeValidator: deps.SizeValidator,
		registry:      deps.Registry,
		rateResolver:  deps.RateResolver,
		rateLimiter:   deps.RateLimiter,
		authn:         deps.Authn,
		authz:         deps.Authz,
		preparer:      deps.Preparer,
		proxyClient:   deps.ProxyClient,
		observer:      observer,
		logger:        logger,
	}
}

// Handle runs the full C2-C13 chain for req and returns the terminal
// Result, per spec.md §4.14.
func (p *Pipeline) Handle(ctx context.Context, req Request) Result {
	trusted := true
	if p.trustedProxy != nil {
		trusted = p.trustedProxy.IsTrusted(peerHost(req.PeerIP))
	}
	source := network.ExtractSource(req.Headers, req.RequestHost, trusted)

	if p.sizeValidator != nil {
		if v := p.sizeValidator.Validate(int64(len(req.Body)), req.Headers); v != nil {
			return Invalid(v.Reason, v.SuggestedStatus)
		}
	}

	switch p.mode {
	case ModePassThrough:
		return p.handlePassThrough(ctx, req, source)
	default:
		return p.handleGateway(ctx, req, source)
	}
}

// handleGateway implements the endpoint-pattern dispatch variant: route
// lookup scans every registered service's endpoints directly.
func (p *Pipeline) handleGateway(ctx context.Context, req Request, source network.SourceIdentifier) Result {
	lookup, err := p.lookupRoute(ctx, req.Path, req.Method)
	if err != nil {
		return Error(err.Error())
	}

	switch lookup.Kind {
	case registry.LookupAbsent:
		return RouteNotFound(req.Path)
	case registry.LookupServiceOnly:
		// Gateway mode has no notion of a service-level fallback: an
		// unmatched endpoint under a known service is still unrouted.
		return RouteNotFound(req.Path)
	}

	return p.continueMatched(ctx, req, source, lookup)
}

// handlePassThrough implements the `/{serviceId}/...` dispatch variant:
// the first path segment names the service directly.
func (p *Pipeline) handlePassThrough(ctx context.Context, req Request, source network.SourceIdentifier) Result {
	serviceID, rest := splitFirstSegment(req.Path)
	if registry.IsReservedID(serviceID) {
		return ReservedPath(req.Path)
	}

	svc := p.registry.Get(serviceID)
	if svc == nil {
		return ServiceNotFound(serviceID)
	}

	lookup, err := p.lookupRoute(ctx, req.Path, req.Method)
	if err != nil {
		return Error(err.Error())
	}

	switch lookup.Kind {
	case registry.LookupAbsent, registry.LookupServiceOnly:
		// Known service, no endpoint match: fall through to the service
		// itself, forwarding the remainder of the path verbatim. The
		// service-level rate limit and auth defaults still apply.
		return p.continueServiceOnly(ctx, req, source, svc, rest)
	}

	return p.continueMatched(ctx, req, source, lookup)
}

func (p *Pipeline) lookupRoute(ctx context.Context, path, method string) (registry.RouteLookupResult, error) {
	if p.registry == nil {
		return registry.RouteLookupResult{Kind: registry.LookupAbsent}, nil
	}
	lookup, err := p.registry.FindRouteAsync(ctx, path, method)
	if err == nil {
		p.observer.ObserveRouteResolution(ctx, path, method, lookup.Kind)
	}
	return lookup, err
}

// continueMatched runs the visibility/auth/authz/rate-limit/forward tail
// of the pipeline for a fully matched route (service + endpoint).
func (p *Pipeline) continueMatched(ctx context.Context, req Request, source network.SourceIdentifier, lookup registry.RouteLookupResult) Result {
	visibility := registry.ResolveVisibility(lookup.Service, lookup.Endpoint, req.Path, req.Method)
	if !p.isAllowed(source, visibility, lookup.Service) {
		return AccessDenied("source not permitted for this endpoint's visibility")
	}

	authRequired := lookup.Endpoint.AuthRequired || lookup.Service.DefaultAuthRequired
	authResult, ok := p.authenticate(ctx, req, authRequired, lookup.Endpoint.Audience, lookup.Service.ServiceID)
	if !ok {
		return authResultToResult(authResult)
	}

	if lookup.Endpoint.RequiredOperation != "" {
		if res, ok := p.authorize(ctx, lookup.Service, lookup.Endpoint.RequiredOperation, authResult.Permissions); !ok {
			return res
		}
	}

	key := ratelimit.RateLimitKey{
		KeyType:    ratelimit.KeyTypeHTTP,
		ClientID:   clientKeyFor(source, authResult),
		ServiceID:  lookup.Service.ServiceID,
		EndpointID: lookup.Endpoint.PathPattern,
	}
	if res, ok := p.resolveAndCheckRateLimit(ctx, key, lookup.Service, lookup.Endpoint); !ok {
		return res
	}

	return p.forward(ctx, req, lookup.Service.ServiceID, lookup.Service.BaseURL, lookup.TargetPath, authResult)
}

// continueServiceOnly runs the same tail for a pass-through request whose
// endpoint did not match any registered pattern: service-level auth/rate
// policy governs, and the remainder of the path is forwarded unchanged.
func (p *Pipeline) continueServiceOnly(ctx context.Context, req Request, source network.SourceIdentifier, svc *registry.ServiceRegistration, targetPath string) Result {
	visibility := svc.DefaultVisibility
	if visibility == "" {
		visibility = network.VisibilityPrivate
	}
	if !p.isAllowed(source, visibility, svc) {
		return AccessDenied("source not permitted for this service's visibility")
	}

	authResult, ok := p.authenticate(ctx, req, svc.DefaultAuthRequired, "", svc.ServiceID)
	if !ok {
		return authResultToResult(authResult)
	}

	key := ratelimit.RateLimitKey{
		KeyType:   ratelimit.KeyTypeHTTP,
		ClientID:  clientKeyFor(source, authResult),
		ServiceID: svc.ServiceID,
	}
	if res, ok := p.resolveAndCheckRateLimit(ctx, key, svc, nil); !ok {
		return res
	}

	if targetPath == "" {
		targetPath = "/"
	}
	return p.forward(ctx, req, svc.ServiceID, svc.BaseURL, targetPath, authResult)
}

func (p *Pipeline) isAllowed(source network.SourceIdentifier, visibility network.Visibility, svc *registry.ServiceRegistration) bool {
	if p.access == nil {
		return true
	}
	var accessCfg *network.AccessConfig
	if svc != nil {
		accessCfg = svc.AccessConfig
	}
	return p.access.IsAllowed(source, visibility, accessCfg)
}

func (p *Pipeline) authenticate(ctx context.Context, req Request, authRequired bool, audience, serviceID string) (authn.Result, bool) {
	if p.authn == nil {
		return authn.NotRequired(), true
	}
	result := p.authn.Authenticate(ctx, req.Headers, authn.RouteAuthInput{
		AuthRequired: authRequired,
		Audience:     audience,
		ServiceID:    serviceID,
	})
	p.observer.ObserveAuthDecision(ctx, serviceID, result.Kind)
	switch result.Kind {
	case authn.KindUnauthorized, authn.KindForbidden:
		return result, false
	default:
		return result, true
	}
}

func authResultToResult(r authn.Result) Result {
	if r.Kind == authn.KindForbidden {
		return Forbidden(r.Reason)
	}
	return Unauthorized(r.Reason)
}

func (p *Pipeline) authorize(ctx context.Context, svc *registry.ServiceRegistration, operation string, permissions []string) (Result, bool) {
	if p.authz == nil {
		return Result{}, true
	}
	allowed := p.authz.IsAuthorizedForService(svc, operation, permissions)
	serviceID := ""
	if svc != nil {
		serviceID = svc.ServiceID
	}
	p.observer.ObserveAuthzDecision(ctx, serviceID, operation, allowed)
	if allowed {
		return Result{}, true
	}
	return Forbidden("insufficient permissions for operation " + operation), false
}

func (p *Pipeline) resolveAndCheckRateLimit(ctx context.Context, key ratelimit.RateLimitKey, svc *registry.ServiceRegistration, ep *registry.EndpointConfig) (Result, bool) {
	if p.rateResolver == nil {
		return Result{}, true
	}
	limit := p.rateResolver.ResolveHTTP(svc, ep)
	return p.checkRateLimit(ctx, key, limit)
}

func (p *Pipeline) checkRateLimit(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (Result, bool) {
	if p.rateLimiter == nil || !p.rateLimiter.IsEnabled() {
		return Result{}, true
	}
	decision, err := p.rateLimiter.CheckAndConsume(ctx, key, limit)
	if err != nil {
		p.logger.Warn("rate limit check failed, allowing request", "error", err, "key", key.String())
		return Result{}, true
	}
	p.observer.ObserveRateLimitDecision(ctx, key, decision.Allowed)
	if !decision.Allowed {
		return RateLimited(RateLimitDecision{
			Allowed:           decision.Allowed,
			Limit:             decision.Limit,
			Remaining:         decision.Remaining,
			RetrySeconds:      decision.RetryAfterSeconds,
			ResetAfterSeconds: decision.ResetAfterSeconds,
		}), false
	}
	return Result{}, true
}

func (p *Pipeline) forward(ctx context.Context, req Request, serviceID, baseURL, targetPath string, authResult authn.Result) Result {
	bearer := ""
	if authResult.Kind == authn.KindAuthenticated {
		bearer = authResult.Token.JWS
	}

	prepared, err := p.preparer.Prepare(forward.Input{
		Method:      req.Method,
		BaseURL:     baseURL,
		TargetPath:  targetPath,
		RawQuery:    req.RawQuery,
		Headers:     req.Headers,
		Body:        req.Body,
		ClientAddr:  peerHost(req.PeerIP),
		Scheme:      req.Scheme,
		RequestHost: req.RequestHost,
		BearerToken: bearer,
	})
	if err != nil {
		return Error(err.Error())
	}

	resp, err := p.proxyClient.Forward(ctx, prepared)
	result := ClassifyForward(resp, err)
	p.observer.ObserveForwardOutcome(ctx, serviceID, result.Kind)
	return result
}

// splitFirstSegment splits a pass-through path into its leading service-id
// segment and the remainder (re-prefixed with "/"), e.g. "/svc/a/b" →
// ("svc", "/a/b").
func splitFirstSegment(path string) (id, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "/"
	}
	return trimmed[:idx], trimmed[idx:]
}

// peerHost strips the port from a "host:port" socket address. Addresses
// without a parseable port (already a bare IP, or malformed) are returned
// unchanged.
func peerHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func clientKeyFor(source network.SourceIdentifier, authResult authn.Result) string {
	if authResult.Kind == authn.KindAuthenticated && authResult.Token.Subject != "" {
		return "user:" + authResult.Token.Subject
	}
	if source.IP != "" {
		return "ip:" + source.IP
	}
	return "unknown"
}
