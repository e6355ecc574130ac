// Package forward implements C12, the proxy request preparer: turning a
// matched route plus the inbound request into the exact bytes to send
// upstream, and the symmetric response-header filter applied on the way
// back.
package forward

import "net/http"

// HopByHopHeaders are stripped from both the outbound request and the
// inbound response (RFC 7230 §6.1), since they describe a single
// transport-level hop rather than the end-to-end message.
var HopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Content-Length",
}

// websocketPreserved lists the subset of HopByHopHeaders that must survive
// on a WebSocket upgrade request, since the upgrade handshake itself relies
// on them.
var websocketPreserved = map[string]bool{
	"Upgrade":    true,
	"Connection": true,
}

// HeaderBuilder injects forwarding headers into an outbound request,
// describing the original client to the upstream service. Two concrete
// builders exist (RFC 7239 and legacy X-Forwarded-*); the selector is
// process-wide configuration, so this is a point-of-use interface rather
// than a port: nothing outside this package needs to depend on it.
type HeaderBuilder interface {
	// Build sets forwarding headers on headers in place, given the
	// client's address, the inbound request's scheme, and its Host header.
	Build(headers http.Header, clientAddr, scheme, host string)
}

// Input is everything the preparer needs to build a PreparedProxyRequest.
type Input struct {
	Method   string
	BaseURL  string
	// TargetPath is the upstream path, already rewritten by the route
	// matcher (C1/C6); RawQuery, if non-empty, is appended verbatim.
	TargetPath string
	RawQuery   string

	Headers http.Header
	Body    []byte

	// ClientAddr, Scheme, and RequestHost describe the inbound request for
	// forwarding-header injection.
	ClientAddr  string
	Scheme      string
	RequestHost string

	// IsWebSocketUpgrade preserves Upgrade/Connection instead of stripping
	// them as hop-by-hop.
	IsWebSocketUpgrade bool

	// BearerToken, if non-empty, is set as "Bearer <token>" in the
	// Authorization header, overwriting any client-supplied value.
	BearerToken string
}

// PreparedProxyRequest is the fully-resolved shape of the outbound request,
// ready for a forwarder (C13) to issue.
type PreparedProxyRequest struct {
	Method    string
	TargetURI string
	Headers   http.Header
	Body      []byte
}

func isHopByHop(name string, preserveWebSocket bool) bool {
	canonical := http.CanonicalHeaderKey(name)
	if preserveWebSocket && websocketPreserved[canonical] {
		return false
	}
	for _, h := range HopByHopHeaders {
		if http.CanonicalHeaderKey(h) == canonical {
			return true
		}
	}
	return false
}
