package ratelimit

import (
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

func intPtr(i int) *int { return &i }

func platformDefaults() PlatformDefaults {
	return PlatformDefaults{RequestsPerWindow: 100, WindowSeconds: 60, BurstCapacity: 100, MaxRequestsPerWindow: 1000}
}

func TestResolveHTTP_PlatformDefaultWhenNoOverrides(t *testing.T) {
	r := NewResolver(platformDefaults(), WebSocketDefaults{})
	eff := r.ResolveHTTP(&registry.ServiceRegistration{}, &registry.EndpointConfig{})

	if eff.RequestsPerWindow != 100 || eff.WindowSeconds != 60 {
		t.Errorf("expected platform defaults, got %+v", eff)
	}
}

func TestResolveHTTP_ServiceOverride(t *testing.T) {
	r := NewResolver(platformDefaults(), WebSocketDefaults{})
	svc := &registry.ServiceRegistration{
		RateLimitConfig: &registry.ServiceRateLimitConfig{RequestsPerWindow: intPtr(50)},
	}
	eff := r.ResolveHTTP(svc, &registry.EndpointConfig{})

	if eff.RequestsPerWindow != 50 {
		t.Errorf("expected service override 50, got %d", eff.RequestsPerWindow)
	}
	if eff.WindowSeconds != 60 {
		t.Errorf("expected unmodified platform window, got %d", eff.WindowSeconds)
	}
}

func TestResolveHTTP_EndpointOverrideWinsOverService(t *testing.T) {
	r := NewResolver(platformDefaults(), WebSocketDefaults{})
	svc := &registry.ServiceRegistration{
		RateLimitConfig: &registry.ServiceRateLimitConfig{RequestsPerWindow: intPtr(50)},
	}
	ep := &registry.EndpointConfig{
		RateLimitOverride: &registry.EndpointRateLimitConfig{RequestsPerWindow: intPtr(5), BurstCapacity: intPtr(5)},
	}
	eff := r.ResolveHTTP(svc, ep)

	if eff.RequestsPerWindow != 5 {
		t.Errorf("expected endpoint override 5, got %d", eff.RequestsPerWindow)
	}
}

func TestResolveHTTP_ClampsToPlatformMax(t *testing.T) {
	platform := platformDefaults()
	platform.MaxRequestsPerWindow = 10
	r := NewResolver(platform, WebSocketDefaults{})
	svc := &registry.ServiceRegistration{
		RateLimitConfig: &registry.ServiceRateLimitConfig{RequestsPerWindow: intPtr(500), BurstCapacity: intPtr(500)},
	}
	eff := r.ResolveHTTP(svc, &registry.EndpointConfig{})

	if eff.RequestsPerWindow != 10 {
		t.Errorf("expected clamp to platform max 10, got %d", eff.RequestsPerWindow)
	}
	if eff.BurstCapacity != 10 {
		t.Errorf("expected burst clamped to 10, got %d", eff.BurstCapacity)
	}
}

func TestResolveHTTP_BurstNeverBelowRequestsPerWindow(t *testing.T) {
	r := NewResolver(platformDefaults(), WebSocketDefaults{})
	svc := &registry.ServiceRegistration{
		RateLimitConfig: &registry.ServiceRateLimitConfig{RequestsPerWindow: intPtr(200), BurstCapacity: intPtr(1)},
	}
	eff := r.ResolveHTTP(svc, &registry.EndpointConfig{})

	if eff.BurstCapacity < eff.RequestsPerWindow {
		t.Errorf("expected burst >= requests per window, got burst=%d requests=%d", eff.BurstCapacity, eff.RequestsPerWindow)
	}
}

func TestResolveWebSocketConnectionAndMessageAreIndependent(t *testing.T) {
	ws := WebSocketDefaults{
		Connection: PlatformDefaults{RequestsPerWindow: 10, WindowSeconds: 60, BurstCapacity: 10, MaxRequestsPerWindow: 100},
		Message:    PlatformDefaults{RequestsPerWindow: 1000, WindowSeconds: 60, BurstCapacity: 1000, MaxRequestsPerWindow: 5000},
	}
	r := NewResolver(platformDefaults(), ws)

	conn := r.ResolveWebSocketConnection(&registry.ServiceRegistration{})
	msg := r.ResolveWebSocketMessage(&registry.ServiceRegistration{})

	if conn.RequestsPerWindow != 10 {
		t.Errorf("expected connection default 10, got %d", conn.RequestsPerWindow)
	}
	if msg.RequestsPerWindow != 1000 {
		t.Errorf("expected message default 1000, got %d", msg.RequestsPerWindow)
	}
}
