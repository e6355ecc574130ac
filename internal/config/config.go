// Package config provides the configuration schema for the gateway core.
//
// The schema follows the same "single YAML file + env override" model as
// the teacher's OSS configuration: a root GatewayConfig struct with
// yaml/mapstructure tags, SetDefaults(), and struct-tag validation. It
// intentionally excludes anything the core's own Non-goals exclude:
//
//   - NO wire-format HTTP/WS server/TLS termination settings (handled by
//     whatever binds the listener; the core only needs the address).
//   - NO admin CLI/HTTP mutation surface configuration.
//   - NO persistent storage *engine* tuning beyond selecting an adapter.
//   - NO pluggable telemetry *policy* configuration (only emission is in
//     scope; an operator's collector config lives outside this module).
package config

import (
	"github.com/spf13/viper"
)

// GatewayConfig is the top-level configuration for the gateway core.
type GatewayConfig struct {
	// Server configures the HTTP/WebSocket listener address and the
	// upstream request timeout (C13's forward deadline).
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Registry configures the local service-registration cache (C6/C7)
	// and which repository backend it reads from.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Access configures the platform-wide allow lists for PRIVATE
	// endpoints (C4).
	Access AccessConfig `yaml:"access" mapstructure:"access"`

	// RateLimit configures the platform-wide rate limit defaults (C10).
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Auth configures identity-token issuance and validation (C8).
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Revocation configures the tiered revocation check (C11).
	Revocation RevocationConfig `yaml:"revocation" mapstructure:"revocation"`

	// TrustedProxy lists the CIDRs a forwarding header is trusted from
	// (C2).
	TrustedProxy TrustedProxyConfig `yaml:"trusted_proxy" mapstructure:"trusted_proxy"`

	// SizeLimit configures the structural request-size gate (C5).
	SizeLimit SizeLimitConfig `yaml:"size_limit" mapstructure:"size_limit"`

	// Forwarding selects the forwarding-header injection style (C12).
	Forwarding ForwardingConfig `yaml:"forwarding" mapstructure:"forwarding"`

	// WebSocket configures the per-connection concurrency contract
	// (C15).
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`

	// DevMode relaxes SSRF dial protection and lowers the log level, for
	// local development against loopback backends.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the gateway's listener and upstream timeout.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g. "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", or
	// "error". Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// RequestTimeout bounds a single upstream forward (C13), ISO-8601
	// duration format (e.g. "PT30S"). Defaults to "PT30S".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,iso8601duration"`
}

// RegistryConfig configures the service registry's local TTL cache.
type RegistryConfig struct {
	// Backend selects the ServiceRegistrationRepository implementation:
	// "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// SQLitePath is the database file path when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// ServiceRoutesTTL is how long a local snapshot is considered fresh
	// before a refresh is triggered, ISO-8601 duration. Defaults to
	// "PT5S".
	ServiceRoutesTTL string `yaml:"service_routes_ttl" mapstructure:"service_routes_ttl" validate:"omitempty,iso8601duration"`

	// JitterFactor adds a random fraction of ServiceRoutesTTL to each
	// instance's freshness deadline. Defaults to 0.1.
	JitterFactor float64 `yaml:"jitter_factor" mapstructure:"jitter_factor" validate:"omitempty,min=0,max=1"`
}

// AccessConfig is the platform-wide allow list for PRIVATE endpoints,
// merged per-service per spec.md §4.4.
type AccessConfig struct {
	AllowedIPs        []string `yaml:"allowed_ips" mapstructure:"allowed_ips"`
	AllowedDomains    []string `yaml:"allowed_domains" mapstructure:"allowed_domains"`
	AllowedSubdomains []string `yaml:"allowed_subdomains" mapstructure:"allowed_subdomains"`
}

// RateLimitConfig configures the platform-wide HTTP and WebSocket rate
// limit defaults and ceilings (C10).
type RateLimitConfig struct {
	Enabled              bool              `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerWindow    int               `yaml:"requests_per_window" mapstructure:"requests_per_window" validate:"omitempty,min=1"`
	WindowSeconds        int               `yaml:"window_seconds" mapstructure:"window_seconds" validate:"omitempty,min=1"`
	BurstCapacity        int               `yaml:"burst_capacity" mapstructure:"burst_capacity" validate:"omitempty,min=0"`
	MaxRequestsPerWindow int               `yaml:"max_requests_per_window" mapstructure:"max_requests_per_window" validate:"omitempty,min=0"`
	WebSocket            WebSocketRLConfig `yaml:"websocket" mapstructure:"websocket"`
	// CleanupInterval, ISO-8601 duration, how often the in-memory
	// backend sweeps expired buckets. Defaults to "PT5M".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,iso8601duration"`
}

// WebSocketRLConfig holds the separate connection-level and
// message-level platform defaults for WebSocket rate limiting.
type WebSocketRLConfig struct {
	ConnectionRequestsPerWindow int `yaml:"connection_requests_per_window" mapstructure:"connection_requests_per_window" validate:"omitempty,min=1"`
	ConnectionWindowSeconds     int `yaml:"connection_window_seconds" mapstructure:"connection_window_seconds" validate:"omitempty,min=1"`
	MessageRequestsPerWindow    int `yaml:"message_requests_per_window" mapstructure:"message_requests_per_window" validate:"omitempty,min=1"`
	MessageWindowSeconds        int `yaml:"message_window_seconds" mapstructure:"message_window_seconds" validate:"omitempty,min=1"`
}

// AuthConfig configures identity-token issuance and validation (C8).
type AuthConfig struct {
	// SigningKeyEnv names the environment variable holding the HMAC
	// signing key for issued AussieTokens. Never stored in the config
	// file itself.
	SigningKeyEnv string `yaml:"signing_key_env" mapstructure:"signing_key_env" validate:"omitempty"`

	// TokenTTL is how long a re-issued AussieToken is valid for, ISO-8601
	// duration. Defaults to "PT5M".
	TokenTTL string `yaml:"token_ttl" mapstructure:"token_ttl" validate:"omitempty,iso8601duration"`

	// DefaultPolicy selects the C9 authorization mode. "deny" enforces each
	// service's own permission policy and, on a service without one,
	// admits only callers holding AdminClaim. "allow" disables the C9
	// check entirely, including for services with their own policy.
	// Defaults to "deny".
	DefaultPolicy string `yaml:"default_policy" mapstructure:"default_policy" validate:"omitempty,oneof=allow deny"`

	// AdminClaim names the permission that authorizes operations on
	// services without a permission policy of their own, and that grants
	// registry create/update/permission-write authority. Defaults to
	// "admin".
	AdminClaim string `yaml:"admin_claim" mapstructure:"admin_claim"`
}

// RevocationConfig configures the tiered revocation check (C11).
type RevocationConfig struct {
	// Backend selects the TokenRevocationRepository implementation:
	// "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// SQLitePath is the database file path when Backend is "sqlite". The
	// cross-instance pub/sub leg (C11's RevocationEventPublisher) has no
	// SQL-backed implementation, so even with Backend "sqlite" the local
	// in-memory publisher still handles same-process fan-out; only the
	// authoritative revoked-set storage moves to SQLite. When empty, the
	// registry's registry.sqlite_path file is used.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// BloomRebuildInterval, ISO-8601 duration, how often the bloom
	// filter is rebuilt from the revocation store. Defaults to "PT1M".
	BloomRebuildInterval string `yaml:"bloom_rebuild_interval" mapstructure:"bloom_rebuild_interval" validate:"omitempty,iso8601duration"`

	// BloomFalsePositiveRate tunes the filter's size for a target false
	// positive rate. Defaults to 0.01.
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate" mapstructure:"bloom_false_positive_rate" validate:"omitempty,min=0,max=1"`

	// LocalCacheSize bounds the local LRU of recently checked jtis.
	// Defaults to 10000.
	LocalCacheSize int `yaml:"local_cache_size" mapstructure:"local_cache_size" validate:"omitempty,min=1"`

	// FailOpen controls whether a remote revocation-store error allows
	// (true) or denies (false) the request. Defaults to true
	// (fail-open), per the Open Question decision recorded in
	// DESIGN.md.
	FailOpen bool `yaml:"fail_open" mapstructure:"fail_open"`
}

// TrustedProxyConfig lists the CIDRs a forwarding header is trusted
// from (C2); forwarding headers from any other peer are ignored.
type TrustedProxyConfig struct {
	CIDRs []string `yaml:"cidrs" mapstructure:"cidrs"`
}

// SizeLimitConfig configures the structural request-size gate (C5).
type SizeLimitConfig struct {
	MaxBodySize         int64 `yaml:"max_body_size" mapstructure:"max_body_size" validate:"omitempty,min=1"`
	MaxHeaderSize       int64 `yaml:"max_header_size" mapstructure:"max_header_size" validate:"omitempty,min=1"`
	MaxTotalHeadersSize int64 `yaml:"max_total_headers_size" mapstructure:"max_total_headers_size" validate:"omitempty,min=1"`
}

// ForwardingConfig selects the forwarding-header injection style (C12).
type ForwardingConfig struct {
	// HeaderStyle is "rfc7239" or "legacy". Defaults to "rfc7239".
	HeaderStyle string `yaml:"header_style" mapstructure:"header_style" validate:"omitempty,oneof=rfc7239 legacy"`
}

// WebSocketConfig configures the per-connection concurrency contract
// (C15). All durations are ISO-8601; a zero/empty PingInterval disables
// ping/pong entirely.
type WebSocketConfig struct {
	IdleTimeout    string `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"omitempty,iso8601duration"`
	MaxLifetime    string `yaml:"max_lifetime" mapstructure:"max_lifetime" validate:"omitempty,iso8601duration"`
	PingInterval   string `yaml:"ping_interval" mapstructure:"ping_interval" validate:"omitempty,iso8601duration"`
	PingTimeout    string `yaml:"ping_timeout" mapstructure:"ping_timeout" validate:"omitempty,iso8601duration"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections" validate:"omitempty,min=1"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "PT30S"
	}

	if c.Registry.Backend == "" {
		c.Registry.Backend = "memory"
	}
	if c.Registry.ServiceRoutesTTL == "" {
		c.Registry.ServiceRoutesTTL = "PT5S"
	}
	if c.Registry.JitterFactor == 0 {
		c.Registry.JitterFactor = 0.1
	}

	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.RequestsPerWindow == 0 {
		c.RateLimit.RequestsPerWindow = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.BurstCapacity == 0 {
		c.RateLimit.BurstCapacity = c.RateLimit.RequestsPerWindow
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "PT5M"
	}
	if c.RateLimit.WebSocket.ConnectionRequestsPerWindow == 0 {
		c.RateLimit.WebSocket.ConnectionRequestsPerWindow = 10
	}
	if c.RateLimit.WebSocket.ConnectionWindowSeconds == 0 {
		c.RateLimit.WebSocket.ConnectionWindowSeconds = 60
	}
	if c.RateLimit.WebSocket.MessageRequestsPerWindow == 0 {
		c.RateLimit.WebSocket.MessageRequestsPerWindow = 100
	}
	if c.RateLimit.WebSocket.MessageWindowSeconds == 0 {
		c.RateLimit.WebSocket.MessageWindowSeconds = 10
	}

	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "PT5M"
	}
	if c.Auth.DefaultPolicy == "" {
		c.Auth.DefaultPolicy = "deny"
	}

	if c.Revocation.Backend == "" {
		c.Revocation.Backend = "memory"
	}
	if c.Revocation.BloomRebuildInterval == "" {
		c.Revocation.BloomRebuildInterval = "PT1M"
	}
	if c.Revocation.BloomFalsePositiveRate == 0 {
		c.Revocation.BloomFalsePositiveRate = 0.01
	}
	if c.Revocation.LocalCacheSize == 0 {
		c.Revocation.LocalCacheSize = 10000
	}
	if !viper.IsSet("revocation.fail_open") {
		c.Revocation.FailOpen = true
	}

	if c.SizeLimit.MaxBodySize == 0 {
		c.SizeLimit.MaxBodySize = 10 << 20 // 10MB
	}
	if c.SizeLimit.MaxHeaderSize == 0 {
		c.SizeLimit.MaxHeaderSize = 16 << 10 // 16KB
	}
	if c.SizeLimit.MaxTotalHeadersSize == 0 {
		c.SizeLimit.MaxTotalHeadersSize = 64 << 10 // 64KB
	}

	if c.Forwarding.HeaderStyle == "" {
		c.Forwarding.HeaderStyle = "rfc7239"
	}

	if c.WebSocket.IdleTimeout == "" {
		c.WebSocket.IdleTimeout = "PT5M"
	}
	if c.WebSocket.MaxLifetime == "" {
		c.WebSocket.MaxLifetime = "PT1H"
	}
	if c.WebSocket.PingInterval == "" {
		c.WebSocket.PingInterval = "PT30S"
	}
	if c.WebSocket.PingTimeout == "" {
		c.WebSocket.PingTimeout = "PT10S"
	}
	if c.WebSocket.MaxConnections == 0 {
		c.WebSocket.MaxConnections = 10000
	}
}

// SetDevDefaults applies permissive defaults for development mode,
// applied before validation so a minimal config (or none at all) is
// sufficient to run against a loopback backend.
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
}
