// Package config provides configuration loading for the gateway core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for gatewayctl.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("gatewayctl")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GATEWAY_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a gatewayctl config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "gatewayctl" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gatewayctl"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\gatewayctl (typically C:\ProgramData\gatewayctl)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "gatewayctl"))
		}
	} else {
		paths = append(paths, "/etc/gatewayctl")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for gatewayctl.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gatewayctl"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all gateway config keys for environment variable support.
// This enables overriding nested config values via environment variables.
// Example: GATEWAY_SERVER_HTTP_ADDR overrides server.http_addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.request_timeout")

	_ = viper.BindEnv("registry.backend")
	_ = viper.BindEnv("registry.sqlite_path")
	_ = viper.BindEnv("registry.service_routes_ttl")
	_ = viper.BindEnv("registry.jitter_factor")

	// Note: access.allowed_ips/domains/subdomains are arrays, complex to
	// override via env. Users should use the config file for these.

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.requests_per_window")
	_ = viper.BindEnv("rate_limit.window_seconds")
	_ = viper.BindEnv("rate_limit.burst_capacity")
	_ = viper.BindEnv("rate_limit.max_requests_per_window")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.websocket.connection_requests_per_window")
	_ = viper.BindEnv("rate_limit.websocket.connection_window_seconds")
	_ = viper.BindEnv("rate_limit.websocket.message_requests_per_window")
	_ = viper.BindEnv("rate_limit.websocket.message_window_seconds")

	_ = viper.BindEnv("auth.signing_key_env")
	_ = viper.BindEnv("auth.token_ttl")
	_ = viper.BindEnv("auth.default_policy")
	_ = viper.BindEnv("auth.admin_claim")

	_ = viper.BindEnv("revocation.backend")
	_ = viper.BindEnv("revocation.bloom_rebuild_interval")
	_ = viper.BindEnv("revocation.bloom_false_positive_rate")
	_ = viper.BindEnv("revocation.local_cache_size")
	_ = viper.BindEnv("revocation.fail_open")

	// Note: trusted_proxy.cidrs is an array, complex to override via env.
	_ = viper.BindEnv("size_limit.max_body_size")
	_ = viper.BindEnv("size_limit.max_header_size")
	_ = viper.BindEnv("size_limit.max_total_headers_size")

	_ = viper.BindEnv("forwarding.header_style")

	_ = viper.BindEnv("websocket.idle_timeout")
	_ = viper.BindEnv("websocket.max_lifetime")
	_ = viper.BindEnv("websocket.ping_interval")
	_ = viper.BindEnv("websocket.ping_timeout")
	_ = viper.BindEnv("websocket.max_connections")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the GatewayConfig.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
		// This allows running with pure environment variable configuration
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply default values for optional fields
	cfg.SetDefaults()

	// In dev mode, apply permissive defaults before validation
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
