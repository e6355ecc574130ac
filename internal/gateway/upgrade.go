package gateway

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/authn"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

// UpgradeKind discriminates which UpgradeResult variant is populated,
// mirroring Kind's role for the HTTP Result but for the distinct terminal
// shape an upgrade decision produces (spec.md §4.15).
type UpgradeKind string

const (
	// UpgradeAuthorized means the upgrade may proceed; BackendURI and
	// (optionally) Token are populated.
	UpgradeAuthorized      UpgradeKind = "authorized"
	UpgradeNotWebSocket    UpgradeKind = "not_websocket"
	UpgradeRouteNotFound   UpgradeKind = "route_not_found"
	UpgradeServiceNotFound UpgradeKind = "service_not_found"
	UpgradeReservedPath    UpgradeKind = "reserved_path"
	UpgradeAccessDenied    UpgradeKind = "access_denied"
	UpgradeUnauthorized    UpgradeKind = "unauthorized"
	UpgradeForbidden       UpgradeKind = "forbidden"
	UpgradeRateLimited     UpgradeKind = "rate_limited"
	UpgradeInvalid         UpgradeKind = "invalid"
)

// UpgradeResult is the single terminal outcome of an upgrade decision.
type UpgradeResult struct {
	Kind UpgradeKind

	// Authorized fields.
	BackendURI string
	// Token, if non-empty, is the short-lived AussieToken JWS the caller
	// should present on the backend WebSocket connection (e.g. as a
	// Sec-WebSocket-Protocol subprotocol or query parameter); left to the
	// inbound adapter to carry, since the wire-format upgrade handshake
	// itself is out of scope here.
	Token string

	Path       string
	ServiceID  string
	EndpointID string
	Reason     string
	Decision   RateLimitDecision
}

func Authorized(backendURI, token, serviceID, endpointID string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeAuthorized, BackendURI: backendURI, Token: token, ServiceID: serviceID, EndpointID: endpointID}
}

func NotWebSocket(path string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeNotWebSocket, Path: path}
}

func UpgradeRouteAbsent(path string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeRouteNotFound, Path: path}
}

func UpgradeServiceAbsent(serviceID string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeServiceNotFound, ServiceID: serviceID}
}

func UpgradeReserved(path string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeReservedPath, Path: path}
}

func UpgradeDenied(reason string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeAccessDenied, Reason: reason}
}

func UpgradeUnauthenticated(reason string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeUnauthorized, Reason: reason}
}

func UpgradeRefused(reason string) UpgradeResult {
	return UpgradeResult{Kind: UpgradeForbidden, Reason: reason}
}

func UpgradeThrottled(decision RateLimitDecision) UpgradeResult {
	return UpgradeResult{Kind: UpgradeRateLimited, Decision: decision}
}

// Upgrade runs C15: the same source/access/route-lookup/auth prefix as
// Handle, but requires the matched endpoint to be of type WEBSOCKET and
// terminates in an upgrade authorization rather than a forwarded response.
func (p *Pipeline) Upgrade(ctx context.Context, req Request) UpgradeResult {
	trusted := true
	if p.trustedProxy != nil {
		trusted = p.trustedProxy.IsTrusted(peerHost(req.PeerIP))
	}
	source := network.ExtractSource(req.Headers, req.RequestHost, trusted)

	switch p.mode {
	case ModePassThrough:
		return p.upgradePassThrough(ctx, req, source)
	default:
		return p.upgradeGateway(ctx, req, source)
	}
}

func (p *Pipeline) upgradeGateway(ctx context.Context, req Request, source network.SourceIdentifier) UpgradeResult {
	lookup, err := p.lookupRoute(ctx, req.Path, req.Method)
	if err != nil {
		return UpgradeResult{Kind: UpgradeInvalid, Reason: err.Error()}
	}
	switch lookup.Kind {
	case registry.LookupAbsent, registry.LookupServiceOnly:
		return UpgradeRouteAbsent(req.Path)
	}
	return p.continueUpgrade(ctx, req, source, lookup)
}

func (p *Pipeline) upgradePassThrough(ctx context.Context, req Request, source network.SourceIdentifier) UpgradeResult {
	serviceID, _ := splitFirstSegment(req.Path)
	if registry.IsReservedID(serviceID) {
		return UpgradeReserved(req.Path)
	}
	if p.registry.Get(serviceID) == nil {
		return UpgradeServiceAbsent(serviceID)
	}

	lookup, err := p.lookupRoute(ctx, req.Path, req.Method)
	if err != nil {
		return UpgradeResult{Kind: UpgradeInvalid, Reason: err.Error()}
	}
	switch lookup.Kind {
	case registry.LookupAbsent, registry.LookupServiceOnly:
		// A WebSocket endpoint always has to be individually registered:
		// there is no service-level WebSocket fallback analogous to
		// continueServiceOnly, since a bare service base URL carries no
		// WebSocket-vs-HTTP distinction on its own.
		return UpgradeServiceAbsent(serviceID)
	}
	return p.continueUpgrade(ctx, req, source, lookup)
}

func (p *Pipeline) continueUpgrade(ctx context.Context, req Request, source network.SourceIdentifier, lookup registry.RouteLookupResult) UpgradeResult {
	if lookup.Endpoint.EndpointType != registry.EndpointWebSocket {
		return NotWebSocket(req.Path)
	}

	visibility := registry.ResolveVisibility(lookup.Service, lookup.Endpoint, req.Path, req.Method)
	if !p.isAllowed(source, visibility, lookup.Service) {
		return UpgradeDenied("source not permitted for this endpoint's visibility")
	}

	authRequired := lookup.Endpoint.AuthRequired || lookup.Service.DefaultAuthRequired
	authResult, ok := p.authenticate(ctx, req, authRequired, lookup.Endpoint.Audience, lookup.Service.ServiceID)
	if !ok {
		return authResultToUpgradeResult(authResult)
	}

	if lookup.Endpoint.RequiredOperation != "" {
		if res, ok := p.authorize(ctx, lookup.Service, lookup.Endpoint.RequiredOperation, authResult.Permissions); !ok {
			return UpgradeRefused(res.Reason)
		}
	}

	key := ratelimit.RateLimitKey{
		KeyType:    ratelimit.KeyTypeWSConnection,
		ClientID:   clientKeyFor(source, authResult),
		ServiceID:  lookup.Service.ServiceID,
		EndpointID: lookup.Endpoint.PathPattern,
	}
	if p.rateResolver != nil {
		limit := p.rateResolver.ResolveWebSocketConnection(lookup.Service)
		if res, ok := p.checkRateLimit(ctx, key, limit); !ok {
			return UpgradeThrottled(res.Decision)
		}
	}

	backendURI, err := backendWebSocketURI(lookup.Service.BaseURL, lookup.TargetPath)
	if err != nil {
		return UpgradeResult{Kind: UpgradeInvalid, Reason: err.Error()}
	}

	token := ""
	if authResult.Kind == authn.KindAuthenticated {
		token = authResult.Token.JWS
	}
	return Authorized(backendURI, token, lookup.Service.ServiceID, lookup.Endpoint.PathPattern)
}

func authResultToUpgradeResult(r authn.Result) UpgradeResult {
	if r.Kind == authn.KindForbidden {
		return UpgradeRefused(r.Reason)
	}
	return UpgradeUnauthenticated(r.Reason)
}

// backendWebSocketURI derives the backend WebSocket URI by swapping
// http/https for ws/wss on the service's base URL and appending the
// matched, possibly-rewritten target path, per spec.md §4.15.
func backendWebSocketURI(baseURL, targetPath string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("upgrade: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = joinPath(u.Path, targetPath)
	return u.String(), nil
}

func joinPath(base, target string) string {
	switch {
	case base == "" || base == "/":
		return target
	case target == "" || target == "/":
		return base
	default:
		trimmedBase := base
		if len(trimmedBase) > 0 && trimmedBase[len(trimmedBase)-1] == '/' {
			trimmedBase = trimmedBase[:len(trimmedBase)-1]
		}
		if len(target) > 0 && target[0] != '/' {
			target = "/" + target
		}
		return trimmedBase + target
	}
}
