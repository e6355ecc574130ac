// Package registry owns the live set of backend service registrations: the
// authoritative record of what a service's endpoints look like, a
// TTL-cached local snapshot for fast synchronous lookup, and the route
// matcher that resolves an incoming path/method to an endpoint (spec
// components C6 and C7).
package registry

import (
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/match"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
)

// ReservedIDs are pass-through path segments reserved for non-gateway
// surfaces; no service may register under one of these ids
// (case-insensitive compare).
var ReservedIDs = []string{"admin", "gateway", "q"}

// IsReservedID reports whether id is a reserved pass-through id, compared
// case-insensitively.
func IsReservedID(id string) bool {
	for _, r := range ReservedIDs {
		if strings.EqualFold(r, id) {
			return true
		}
	}
	return false
}

// EndpointType distinguishes a plain HTTP endpoint from one that must be
// reached via a WebSocket upgrade.
type EndpointType string

const (
	EndpointHTTP      EndpointType = "HTTP"
	EndpointWebSocket EndpointType = "WEBSOCKET"
)

// EndpointRateLimitConfig overrides the service- or platform-level rate
// limit for a single endpoint. Any nil field inherits the next level up.
type EndpointRateLimitConfig struct {
	RequestsPerWindow *int
	WindowSeconds     *int
	BurstCapacity     *int
}

// EndpointConfig describes one routable operation on a service.
type EndpointConfig struct {
	// PathPattern is matched with the glob/template matcher (C1).
	PathPattern string
	// Methods is the set of verbs this endpoint accepts; "*" matches any.
	Methods []string
	// Visibility overrides the service default for this endpoint, subject
	// to further override by VisibilityRule entries.
	Visibility network.Visibility
	// PathRewriteTemplate, if set, is applied to captured path variables to
	// produce the upstream target path; otherwise the matched path is used
	// verbatim.
	PathRewriteTemplate string
	// AuthRequired overrides the service default for this endpoint.
	AuthRequired bool
	// EndpointType selects the HTTP or WebSocket pipeline.
	EndpointType EndpointType
	// RateLimitOverride, if non-nil, takes precedence over the service and
	// platform rate limit configuration.
	RateLimitOverride *EndpointRateLimitConfig
	// Audience, if set, becomes the AussieToken's aud claim for requests
	// through this endpoint; otherwise the service id is used.
	Audience string
	// RequiredOperation, if set, names the service-authorization operation
	// (C9) this endpoint is gated by; the authenticated caller's
	// permissions must authorize it or the request is Forbidden. Most
	// gateway-routed endpoints leave this empty and skip C9 entirely,
	// per spec.md §4.14.
	RequiredOperation string
}

// VisibilityRule overrides an endpoint's resolved visibility when its
// pattern and method match, applied after endpoint-level resolution.
type VisibilityRule struct {
	PathPattern string
	Methods     []string
	Visibility  network.Visibility
}

// OperationPermission lists the permissions of which at least one must be
// held to perform an operation.
type OperationPermission struct {
	AnyOfPermissions []string
}

// ServicePermissionPolicy maps an operation name to the permissions that
// authorize it. An empty (but non-nil) map is treated the same as an
// absent policy: callers fall back to the platform default.
type ServicePermissionPolicy map[string]OperationPermission

// ServiceRateLimitConfig overrides the platform default rate limit for all
// of a service's endpoints (subject to further per-endpoint override).
type ServiceRateLimitConfig struct {
	RequestsPerWindow *int
	WindowSeconds     *int
	BurstCapacity     *int
}

// SamplingConfig is opaque to the core; it is passed through to the
// telemetry collaborator unexamined.
type SamplingConfig map[string]string

// ServiceRegistration is the authoritative description of one backend.
type ServiceRegistration struct {
	ServiceID           string
	BaseURL             string
	Version             int
	Endpoints           []EndpointConfig
	DefaultVisibility   network.Visibility
	DefaultAuthRequired bool
	VisibilityRules     []VisibilityRule
	PermissionPolicy    ServicePermissionPolicy
	RateLimitConfig     *ServiceRateLimitConfig
	SamplingConfig      SamplingConfig
	AccessConfig        *network.AccessConfig
}

// HasPermissionPolicy reports whether reg carries a non-empty permission
// policy of its own, per the data model's "empty map is indistinguishable
// from absent" rule.
func (reg *ServiceRegistration) HasPermissionPolicy() bool {
	return len(reg.PermissionPolicy) > 0
}

// Validate checks the static shape invariants of a registration:
// reserved-id exclusion, non-blank visibility-rule patterns, and
// rewrite-template variable consistency for every endpoint.
func (reg *ServiceRegistration) Validate() error {
	if reg.ServiceID == "" {
		return fmt.Errorf("%w: serviceId is required", ErrInvalidRegistration)
	}
	if IsReservedID(reg.ServiceID) {
		return fmt.Errorf("%w: serviceId %q is reserved", ErrInvalidRegistration, reg.ServiceID)
	}
	if !strings.HasPrefix(reg.BaseURL, "http://") && !strings.HasPrefix(reg.BaseURL, "https://") {
		return fmt.Errorf("%w: baseUrl must be an absolute http(s) URL", ErrInvalidRegistration)
	}
	for i, ep := range reg.Endpoints {
		if ep.PathRewriteTemplate == "" {
			continue
		}
		if err := match.ValidateRewriteTemplate(ep.PathPattern, ep.PathRewriteTemplate); err != nil {
			return fmt.Errorf("%w: endpoint %d: %w", ErrInvalidRegistration, i, err)
		}
	}
	for i, rule := range reg.VisibilityRules {
		if strings.TrimSpace(rule.PathPattern) == "" {
			return fmt.Errorf("%w: visibility rule %d: pathPattern must not be blank", ErrInvalidRegistration, i)
		}
	}
	return nil
}
