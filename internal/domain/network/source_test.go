package network

import (
	"net/http"
	"testing"
)

func TestExtractSourcePrecedenceTrusted(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.Set("X-Real-IP", "198.51.100.1")
	h.Set("X-Forwarded-Host", "api.example.com")
	h.Set("Host", "internal.example.com:8080")

	src := ExtractSource(h, "", true)
	if src.IP != "203.0.113.7" {
		t.Errorf("expected X-Forwarded-For to win, got %q", src.IP)
	}
	if src.Host != "api.example.com" {
		t.Errorf("expected X-Forwarded-Host to win, got %q", src.Host)
	}
	if src.FullChain != "203.0.113.7, 10.0.0.1" {
		t.Errorf("expected full chain preserved, got %q", src.FullChain)
	}
}

func TestExtractSourceUntrustedIgnoresForwardingHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.7")
	h.Set("Host", "internal.example.com:8080")

	src := ExtractSource(h, "", false)
	if src.IP != "unknown" {
		t.Errorf("expected forwarding headers to be ignored when untrusted, got %q", src.IP)
	}
	if src.Host != "internal.example.com" {
		t.Errorf("expected Host header (port stripped), got %q", src.Host)
	}
	if src.FullChain != "" {
		t.Errorf("expected no forwarding chain when untrusted")
	}
}

func TestExtractSourceForwardedHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Forwarded", `for="[2001:db8::1]:4711";proto=https;host=example.com`)

	src := ExtractSource(h, "", true)
	if src.IP != "2001:db8::1" {
		t.Errorf("expected Forwarded for= to be parsed, got %q", src.IP)
	}
	if src.Host != "example.com" {
		t.Errorf("expected Forwarded host= to be parsed, got %q", src.Host)
	}
}

func TestExtractSourceFallbackUnknown(t *testing.T) {
	src := ExtractSource(http.Header{}, "", false)
	if src.IP != "unknown" {
		t.Errorf("expected literal unknown, got %q", src.IP)
	}
}

func TestExtractSourceRequestURIHostFallback(t *testing.T) {
	src := ExtractSource(http.Header{}, "fallback.example.com:443", false)
	if src.IP != "fallback.example.com:443" {
		t.Errorf("expected request-uri host as IP fallback, got %q", src.IP)
	}
	if src.Host != "fallback.example.com" {
		t.Errorf("expected port stripped from request-uri host, got %q", src.Host)
	}
}
