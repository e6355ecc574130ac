package gatewayhttp

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/wsconn"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/wsrelay"
	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// Upgrader completes a client-facing WebSocket handshake and relays it to a
// backend connection once Pipeline.Upgrade has authorized the request
// (C15). It owns the per-message rate limit independently of the
// connection-level check Pipeline.Upgrade already performed, since that
// check lives inside the relay's lifetime rather than the upgrade decision.
type Upgrader struct {
	upgrader websocket.Upgrader
	dialer   *wsconn.Dialer

	registry     *registry.Registry
	rateResolver *ratelimit.Resolver
	rateLimiter  outbound.RateLimiter

	sessionCfg wsrelay.Config
	logger     *slog.Logger
}

// UpgraderConfig tunes the WebSocket session timers, per spec.md §4.15/§6.
type UpgraderConfig struct {
	Session wsrelay.Config
}

// NewUpgrader creates an Upgrader backed by reg (for message-rate-limit
// service lookup), resolver and limiter (for the per-message bucket), and
// the handshake/session timers in cfg.
func NewUpgrader(reg *registry.Registry, resolver *ratelimit.Resolver, limiter outbound.RateLimiter, cfg UpgraderConfig, logger *slog.Logger) *Upgrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upgrader{
		upgrader:     websocket.Upgrader{},
		dialer:       wsconn.NewDialer(),
		registry:     reg,
		rateResolver: resolver,
		rateLimiter:  limiter,
		sessionCfg:   cfg.Session,
		logger:       logger,
	}
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	req, err := toGatewayRequest(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result := t.pipeline.Upgrade(r.Context(), req)
	if result.Kind != gateway.UpgradeAuthorized {
		writeUpgradeError(w, result)
		return
	}

	t.upgrader.complete(w, r, result)
}

// complete performs the client handshake, dials the backend, and relays
// messages until the session ends.
func (u *Upgrader) complete(w http.ResponseWriter, r *http.Request, result gateway.UpgradeResult) {
	clientConn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.logger.Warn("websocket client handshake failed", "error", err)
		return
	}

	headers := http.Header{}
	if result.Token != "" {
		headers.Set("Authorization", "Bearer "+result.Token)
	}

	backendConn, resp, err := u.dialer.Dial(r.Context(), result.BackendURI, headers)
	if err != nil {
		u.logger.Warn("websocket backend dial failed", "error", err, "backend_uri", result.BackendURI)
		_ = clientConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(wsrelay.CloseUnexpected, "backend unavailable"), time.Now().Add(time.Second))
		_ = clientConn.Close()
		return
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	limiter, msgKey, msgLimit := u.messageRateLimit(r, result)

	session := wsrelay.NewSession(clientConn, backendConn, u.sessionCfg, limiter, msgKey, msgLimit, u.logger)
	session.Run(r.Context())
}

// messageRateLimit resolves the per-message rate limit bucket for an
// authorized upgrade. It re-resolves the service by id (cheap, in-memory)
// rather than threading the matched ServiceRegistration through
// UpgradeResult, keeping that type focused on what an adapter needs to
// complete the handshake.
func (u *Upgrader) messageRateLimit(r *http.Request, result gateway.UpgradeResult) (outbound.RateLimiter, ratelimit.RateLimitKey, ratelimit.EffectiveRateLimit) {
	key := ratelimit.RateLimitKey{
		KeyType:    ratelimit.KeyTypeWSMessage,
		ClientID:   clientKeyForUpgrade(r),
		ServiceID:  result.ServiceID,
		EndpointID: result.EndpointID,
	}

	if u.rateResolver == nil || u.registry == nil {
		return nil, key, ratelimit.EffectiveRateLimit{}
	}
	svc := u.registry.Get(result.ServiceID)
	if svc == nil {
		return nil, key, ratelimit.EffectiveRateLimit{}
	}
	return u.rateLimiter, key, u.rateResolver.ResolveWebSocketMessage(svc)
}

func clientKeyForUpgrade(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

func writeUpgradeError(w http.ResponseWriter, result gateway.UpgradeResult) {
	status := upgradeHTTPStatus(result.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(upgradeErrorBody(result))
}

func upgradeHTTPStatus(kind gateway.UpgradeKind) int {
	switch kind {
	case gateway.UpgradeNotWebSocket:
		return http.StatusBadRequest
	case gateway.UpgradeRouteNotFound, gateway.UpgradeServiceNotFound, gateway.UpgradeReservedPath:
		return http.StatusNotFound
	case gateway.UpgradeAccessDenied, gateway.UpgradeForbidden:
		return http.StatusForbidden
	case gateway.UpgradeUnauthorized:
		return http.StatusUnauthorized
	case gateway.UpgradeRateLimited:
		return http.StatusTooManyRequests
	case gateway.UpgradeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func upgradeErrorBody(result gateway.UpgradeResult) []byte {
	reason := result.Reason
	if reason == "" {
		reason = string(result.Kind)
	}
	return []byte(`{"error":"` + jsonEscape(reason) + `","kind":"` + string(result.Kind) + `"}`)
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
