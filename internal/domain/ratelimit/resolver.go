package ratelimit

import "github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"

// PlatformDefaults is the platform-wide rate limit floor and ceiling.
// RequestsPerWindow/WindowSeconds/BurstCapacity are the default values
// applied when no more specific level overrides them; Max* clamp the
// final resolved value regardless of service/endpoint configuration.
type PlatformDefaults struct {
	RequestsPerWindow    int
	WindowSeconds        int
	BurstCapacity        int
	MaxRequestsPerWindow int
}

// WebSocketDefaults holds the separate platform defaults for WebSocket
// connection-level and message-level rate limits.
type WebSocketDefaults struct {
	Connection PlatformDefaults
	Message    PlatformDefaults
}

// Resolver computes the EffectiveRateLimit for a route by layering
// platform, service, and endpoint configuration.
type Resolver struct {
	platform  PlatformDefaults
	websocket WebSocketDefaults
}

// NewResolver creates a Resolver.
func NewResolver(platform PlatformDefaults, websocket WebSocketDefaults) *Resolver {
	return &Resolver{platform: platform, websocket: websocket}
}

// ResolveHTTP computes the EffectiveRateLimit for an HTTP route: platform
// default, overridden by the service's RateLimitConfig, overridden by the
// endpoint's RateLimitOverride, each field independently, then clamped to
// the platform ceiling.
func (r *Resolver) ResolveHTTP(svc *registry.ServiceRegistration, ep *registry.EndpointConfig) EffectiveRateLimit {
	eff := EffectiveRateLimit{
		RequestsPerWindow: r.platform.RequestsPerWindow,
		WindowSeconds:     r.platform.WindowSeconds,
		BurstCapacity:     r.platform.BurstCapacity,
	}

	if svc != nil && svc.RateLimitConfig != nil {
		applyServiceOverride(&eff, svc.RateLimitConfig)
	}
	if ep != nil && ep.RateLimitOverride != nil {
		applyEndpointOverride(&eff, ep.RateLimitOverride)
	}

	return clamp(eff, r.platform.MaxRequestsPerWindow)
}

// ResolveWebSocketConnection computes the connection-level EffectiveRateLimit.
func (r *Resolver) ResolveWebSocketConnection(svc *registry.ServiceRegistration) EffectiveRateLimit {
	eff := EffectiveRateLimit{
		RequestsPerWindow: r.websocket.Connection.RequestsPerWindow,
		WindowSeconds:     r.websocket.Connection.WindowSeconds,
		BurstCapacity:     r.websocket.Connection.BurstCapacity,
	}
	if svc != nil && svc.RateLimitConfig != nil {
		applyServiceOverride(&eff, svc.RateLimitConfig)
	}
	return clamp(eff, r.websocket.Connection.MaxRequestsPerWindow)
}

// ResolveWebSocketMessage computes the message-level EffectiveRateLimit.
func (r *Resolver) ResolveWebSocketMessage(svc *registry.ServiceRegistration) EffectiveRateLimit {
	eff := EffectiveRateLimit{
		RequestsPerWindow: r.websocket.Message.RequestsPerWindow,
		WindowSeconds:     r.websocket.Message.WindowSeconds,
		BurstCapacity:     r.websocket.Message.BurstCapacity,
	}
	if svc != nil && svc.RateLimitConfig != nil {
		applyServiceOverride(&eff, svc.RateLimitConfig)
	}
	return clamp(eff, r.websocket.Message.MaxRequestsPerWindow)
}

func applyServiceOverride(eff *EffectiveRateLimit, cfg *registry.ServiceRateLimitConfig) {
	if cfg.RequestsPerWindow != nil {
		eff.RequestsPerWindow = *cfg.RequestsPerWindow
	}
	if cfg.WindowSeconds != nil {
		eff.WindowSeconds = *cfg.WindowSeconds
	}
	if cfg.BurstCapacity != nil {
		eff.BurstCapacity = *cfg.BurstCapacity
	}
}

func applyEndpointOverride(eff *EffectiveRateLimit, cfg *registry.EndpointRateLimitConfig) {
	if cfg.RequestsPerWindow != nil {
		eff.RequestsPerWindow = *cfg.RequestsPerWindow
	}
	if cfg.WindowSeconds != nil {
		eff.WindowSeconds = *cfg.WindowSeconds
	}
	if cfg.BurstCapacity != nil {
		eff.BurstCapacity = *cfg.BurstCapacity
	}
}

// clamp enforces burstCapacity >= requestsPerWindow >= 0 and caps both to
// platformMax, per the data model invariant.
func clamp(eff EffectiveRateLimit, platformMax int) EffectiveRateLimit {
	if eff.RequestsPerWindow < 0 {
		eff.RequestsPerWindow = 0
	}
	if eff.BurstCapacity < eff.RequestsPerWindow {
		eff.BurstCapacity = eff.RequestsPerWindow
	}
	if platformMax > 0 {
		if eff.RequestsPerWindow > platformMax {
			eff.RequestsPerWindow = platformMax
		}
		if eff.BurstCapacity > platformMax {
			eff.BurstCapacity = platformMax
		}
	}
	return eff
}
