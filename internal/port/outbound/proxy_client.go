package outbound

import (
	"context"
	"net/http"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/forward"
)

// ProxyResponse is the raw upstream response the forwarder (C13) hands to
// the outcome classifier.
type ProxyResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ProxyClient is the outbound port for C13's forwarder: issuing the
// prepared request against the upstream service. Implementations own
// transport-level concerns (dialing, TLS, redirect policy, SSRF
// protection); the classifier that turns (ProxyResponse, error) into a
// gateway.Result lives above this port, not inside an implementation.
type ProxyClient interface {
	// Forward issues req and returns the upstream response. A non-nil
	// error must be classifiable via errors.Is against context.DeadlineExceeded
	// (or a wrapped *url.Error with Timeout() true) for timeouts, and any
	// other error is treated as a transport failure.
	Forward(ctx context.Context, req forward.PreparedProxyRequest) (ProxyResponse, error)
}
