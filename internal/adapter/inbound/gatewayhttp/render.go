package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
)

// errorPayload is the JSON body rendered for every non-success Result.
type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func errorBody(result gateway.Result) []byte {
	payload := errorPayload{Kind: string(result.Kind), Error: reasonFor(result)}
	body, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"error":"internal error","kind":"error"}`)
	}
	return body
}

func reasonFor(result gateway.Result) string {
	switch result.Kind {
	case gateway.KindRouteNotFound, gateway.KindServiceNotFound, gateway.KindReservedPath:
		if result.ServiceID != "" {
			return fmt.Sprintf("no route for service %q", result.ServiceID)
		}
		return fmt.Sprintf("no route for path %q", result.Path)
	case gateway.KindAccessDenied, gateway.KindUnauthorized, gateway.KindForbidden:
		return result.Reason
	case gateway.KindInvalid:
		return result.Reason
	case gateway.KindRateLimited:
		return "rate limit exceeded"
	case gateway.KindError:
		return result.Message
	case gateway.KindGatewayTimeout:
		return "upstream request timed out"
	default:
		return "unknown error"
	}
}

// writeRateLimitHeaders renders the Retry-After and X-RateLimit-* headers
// for a KindRateLimited result, per spec.md §4.10.
func writeRateLimitHeaders(w http.ResponseWriter, decision gateway.RateLimitDecision) {
	h := w.Header()
	h.Set("Retry-After", fmt.Sprintf("%d", decision.RetrySeconds))
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAfterSeconds))
}

// isWebSocketUpgrade reports whether r carries the RFC 6455 handshake
// headers (Connection: Upgrade, Upgrade: websocket).
func isWebSocketUpgrade(r *http.Request) bool {
	if !headerContainsToken(r.Header, "Connection", "upgrade") {
		return false
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, field := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(field), token) {
				return true
			}
		}
	}
	return false
}
