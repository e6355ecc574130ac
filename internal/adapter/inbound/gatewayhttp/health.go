package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// HealthResponse is the JSON body served at /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies the gateway's backing components are reachable.
type HealthChecker struct {
	registry    *registry.Registry
	rateLimiter outbound.RateLimiter
	version     string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't configured.
func NewHealthChecker(reg *registry.Registry, rateLimiter outbound.RateLimiter, version string) *HealthChecker {
	return &HealthChecker{registry: reg, rateLimiter: rateLimiter, version: version}
}

// Check performs health checks on every configured component.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)

	if h.registry != nil {
		checks["registry"] = "ok"
	} else {
		checks["registry"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["rate_limiter"] = "ok"
	} else {
		checks["rate_limiter"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	return HealthResponse{Status: "healthy", Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the /health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	})
}
