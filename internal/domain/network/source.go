package network

import (
	"net/http"
	"strings"
)

// SourceIdentifier is the logical client identity resolved for a request.
type SourceIdentifier struct {
	// IP is the resolved client IP, or the literal "unknown" if nothing
	// usable could be derived.
	IP string
	// Host is the resolved client-facing host, if any.
	Host string
	// FullChain is the raw X-Forwarded-For header value, if present.
	FullChain string
}

// ExtractSource resolves the client's logical source identity from headers
// and the request-URI host, following the precedence in spec.md §4.3. When
// trusted is false, all forwarding-derived headers (X-Forwarded-For,
// Forwarded, X-Real-IP, X-Forwarded-Host) are ignored, per C2's gate.
func ExtractSource(headers http.Header, requestURIHost string, trusted bool) SourceIdentifier {
	var src SourceIdentifier

	if trusted {
		if xff := headers.Get("X-Forwarded-For"); xff != "" {
			src.FullChain = xff
		}
	}

	src.IP = resolveIP(headers, requestURIHost, trusted)
	src.Host = resolveHost(headers, requestURIHost, trusted)
	return src
}

func resolveIP(headers http.Header, requestURIHost string, trusted bool) string {
	if trusted {
		if xff := headers.Get("X-Forwarded-For"); xff != "" {
			if first := firstCommaEntry(xff); first != "" {
				return first
			}
		}
		if fwd := headers.Get("Forwarded"); fwd != "" {
			if ip := forwardedFor(fwd); ip != "" {
				return ip
			}
		}
		if xri := headers.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if requestURIHost != "" {
		return requestURIHost
	}
	return "unknown"
}

func resolveHost(headers http.Header, requestURIHost string, trusted bool) string {
	if trusted {
		if xfh := headers.Get("X-Forwarded-Host"); xfh != "" {
			return firstCommaEntry(xfh)
		}
		if fwd := headers.Get("Forwarded"); fwd != "" {
			if h := forwardedDirective(fwd, "host"); h != "" {
				return h
			}
		}
	}
	if h := headers.Get("Host"); h != "" {
		return stripPort(h)
	}
	if requestURIHost != "" {
		return stripPort(requestURIHost)
	}
	return ""
}

func firstCommaEntry(v string) string {
	parts := strings.SplitN(v, ",", 2)
	return strings.TrimSpace(parts[0])
}

// forwardedFor extracts the `for=` directive's IP from the first element of
// an RFC 7239 Forwarded header, stripping quotes and an optional
// "[ipv6]:port" / "ip:port" wrapper.
func forwardedFor(v string) string {
	raw := forwardedDirective(v, "for")
	if raw == "" {
		return ""
	}
	return stripBracketsAndPort(raw)
}

// forwardedDirective extracts the value of the named directive (e.g. "for",
// "host", "proto") from the first comma-separated element of a Forwarded
// header.
func forwardedDirective(v, name string) string {
	first := firstCommaEntry(v)
	for _, pair := range strings.Split(first, ";") {
		pair = strings.TrimSpace(pair)
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(kv[0]), name) {
			continue
		}
		val := strings.TrimSpace(kv[1])
		val = strings.Trim(val, `"`)
		return val
	}
	return ""
}

// stripBracketsAndPort handles "[::1]:1234", "[::1]", "1.2.3.4:1234", and
// bare "1.2.3.4"/"::1" forms, returning just the address.
func stripBracketsAndPort(v string) string {
	if strings.HasPrefix(v, "[") {
		if end := strings.Index(v, "]"); end != -1 {
			return v[1:end]
		}
		return v
	}
	// Bare IPv6 (contains more than one colon) has no port to strip.
	if strings.Count(v, ":") > 1 {
		return v
	}
	if idx := strings.LastIndex(v, ":"); idx != -1 {
		return v[:idx]
	}
	return v
}

func stripPort(hostport string) string {
	return stripBracketsAndPort(hostport)
}
