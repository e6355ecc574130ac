package network

import (
	"net"
	"strings"
)

// Visibility controls whether an endpoint is reachable by any source
// (PUBLIC) or only by sources matching an access-control allow list
// (PRIVATE).
type Visibility string

const (
	// VisibilityPublic endpoints are always allowed.
	VisibilityPublic Visibility = "PUBLIC"
	// VisibilityPrivate endpoints require an access-control allow-list match.
	VisibilityPrivate Visibility = "PRIVATE"
)

// AccessConfig lists the allow-list patterns for PRIVATE endpoints. Each
// category (IPs, domains, subdomains) is independent: per-service config
// replaces the matching global category only if that category's list is
// non-empty, per spec.md §4.4.
type AccessConfig struct {
	// AllowedIPs are exact IPs or CIDRs (IPv4 or IPv6).
	AllowedIPs []string
	// AllowedDomains are exact, case-insensitive host matches.
	AllowedDomains []string
	// AllowedSubdomains are "*.base.example" patterns matching strict
	// subdomains of base.example (case-insensitive), never the base itself.
	AllowedSubdomains []string
}

// merge resolves per-service overrides against a global default: for each
// category, the service's list wins if non-empty, else the global list
// applies.
func merge(global, svc *AccessConfig) AccessConfig {
	var out AccessConfig
	if global != nil {
		out = *global
	}
	if svc == nil {
		return out
	}
	if len(svc.AllowedIPs) > 0 {
		out.AllowedIPs = svc.AllowedIPs
	}
	if len(svc.AllowedDomains) > 0 {
		out.AllowedDomains = svc.AllowedDomains
	}
	if len(svc.AllowedSubdomains) > 0 {
		out.AllowedSubdomains = svc.AllowedSubdomains
	}
	return out
}

// AccessController decides whether a SourceIdentifier may reach a PRIVATE
// endpoint.
type AccessController struct {
	global *AccessConfig
}

// NewAccessController creates an AccessController with the platform-wide
// default allow lists. A nil global config means PRIVATE endpoints are
// denied to everyone unless a per-service config grants access.
func NewAccessController(global *AccessConfig) *AccessController {
	return &AccessController{global: global}
}

// IsAllowed reports whether source may reach an endpoint with the given
// visibility. svc, if non-nil, overrides the global allow lists per
// category.
func (c *AccessController) IsAllowed(source SourceIdentifier, visibility Visibility, svc *AccessConfig) bool {
	if visibility == VisibilityPublic {
		return true
	}
	cfg := merge(c.global, svc)
	return matchesIP(cfg.AllowedIPs, source.IP) ||
		matchesDomain(cfg.AllowedDomains, source.Host) ||
		matchesSubdomain(cfg.AllowedSubdomains, source.Host)
}

func matchesIP(patterns []string, ipStr string) bool {
	if ipStr == "" || len(patterns) == 0 {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, p := range patterns {
		if _, ipNet, err := net.ParseCIDR(p); err == nil {
			// Cross-family comparisons never match: net.IPNet.Contains
			// already returns false when families differ, but be explicit
			// since a v4-in-v6 representation could otherwise surprise.
			if sameFamily(ipNet.IP, ip) && ipNet.Contains(ip) {
				return true
			}
			continue
		}
		if known := net.ParseIP(p); known != nil {
			if sameFamily(known, ip) && known.Equal(ip) {
				return true
			}
		}
		// Malformed pattern: ignored, does not disqualify the rest.
	}
	return false
}

func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}

func matchesDomain(patterns []string, host string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if strings.EqualFold(p, host) {
			return true
		}
	}
	return false
}

func matchesSubdomain(patterns []string, host string) bool {
	if host == "" {
		return false
	}
	lowerHost := strings.ToLower(host)
	for _, p := range patterns {
		if !strings.HasPrefix(p, "*.") {
			continue
		}
		base := strings.ToLower(p[2:])
		if base == "" {
			continue
		}
		if lowerHost == base {
			continue // subdomain pattern never matches the base itself
		}
		if strings.HasSuffix(lowerHost, "."+base) {
			return true
		}
	}
	return false
}
