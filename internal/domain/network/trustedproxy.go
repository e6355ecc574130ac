// Package network implements the trusted-proxy decision, client-source
// extraction, and private/public access control gates that sit in front of
// the route matcher (spec components C2-C4).
package network

import (
	"log/slog"
	"net"
)

// TrustedProxyConfig configures which hops are trusted to supply forwarding
// headers (X-Forwarded-For, Forwarded, X-Forwarded-Host). An empty or
// disabled config trusts all peers, matching a gateway deployed directly
// behind a single known load balancer with no further configuration.
type TrustedProxyConfig struct {
	// Enabled gates whether the trusted-proxy list is enforced at all.
	// When false, every peer is trusted (forwarding headers are honored
	// unconditionally).
	Enabled bool
	// Patterns are exact IPs or CIDRs (IPv4 or IPv6). Hostnames are not
	// resolved and never match.
	Patterns []string
}

// TrustedProxyValidator decides whether a given socket peer IP may be
// trusted to supply forwarding headers.
type TrustedProxyValidator struct {
	nets []*net.IPNet
	ips  []net.IP
	cfg  TrustedProxyConfig
}

// NewTrustedProxyValidator parses cfg.Patterns, logging and skipping any
// entry that is neither a valid IP literal nor a valid CIDR.
func NewTrustedProxyValidator(cfg TrustedProxyConfig, logger *slog.Logger) *TrustedProxyValidator {
	v := &TrustedProxyValidator{cfg: cfg}
	for _, p := range cfg.Patterns {
		if _, ipNet, err := net.ParseCIDR(p); err == nil {
			v.nets = append(v.nets, ipNet)
			continue
		}
		if ip := net.ParseIP(p); ip != nil {
			v.ips = append(v.ips, ip)
			continue
		}
		if logger != nil {
			logger.Warn("ignoring invalid trusted-proxy pattern", "pattern", p)
		}
	}
	return v
}

// IsTrusted reports whether peerIP may be trusted to supply forwarding
// headers for this hop.
func (v *TrustedProxyValidator) IsTrusted(peerIP string) bool {
	if !v.cfg.Enabled {
		return true
	}
	ip := net.ParseIP(peerIP)
	if ip == nil {
		return false
	}
	for _, known := range v.ips {
		if known.Equal(ip) {
			return true
		}
	}
	for _, n := range v.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
