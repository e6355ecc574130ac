package gateway

import (
	"context"
	"errors"
	"net/url"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// ClassifyForward implements C13's outcome classifier: it turns the result
// of a ProxyClient.Forward call into the single terminal Result the
// pipeline driver (C14) returns. Classification is deterministic on the
// kind of error the collaborator surfaced, per spec.md §4.13.
func ClassifyForward(resp outbound.ProxyResponse, err error) Result {
	if err == nil {
		return Success(resp.Status, resp.Headers, resp.Body)
	}
	if isTimeout(err) {
		return GatewayTimeout()
	}
	return Error(err.Error())
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	return false
}
