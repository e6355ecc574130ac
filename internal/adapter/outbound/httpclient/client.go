// Package httpclient implements the outbound.ProxyClient port: an
// SSRF-safe HTTP client that issues a forward.PreparedProxyRequest against
// an upstream service and returns its raw response.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/forward"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// defaultMaxResponseBody caps the buffered upstream response body; larger
// bodies are truncated rather than risking unbounded memory growth from a
// misbehaving backend.
const defaultMaxResponseBody = 32 * 1024 * 1024 // 32MB

// Client implements outbound.ProxyClient over net/http, with an SSRF-safe
// dialer pinning each request to the IP address resolved at connection
// time and rejecting private/reserved ranges.
type Client struct {
	http           *http.Client
	maxRespBody    int64
	allowPrivateIP bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout (spec.md §5's
// "configurable upstream requestTimeout").
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxResponseBody overrides the buffered response body cap.
func WithMaxResponseBody(n int64) Option {
	return func(c *Client) { c.maxRespBody = n }
}

// WithAllowPrivateIP disables SSRF protection, for deployments where
// registered upstreams intentionally live on private networks (e.g.
// sidecar/service-mesh addresses). Off by default.
func WithAllowPrivateIP(allow bool) Option {
	return func(c *Client) { c.allowPrivateIP = allow }
}

// New creates a Client with a 30-second default timeout and SSRF-safe
// dialing enabled.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
			// Upstream redirects are relayed to the original client
			// verbatim rather than followed transparently.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRespBody: defaultMaxResponseBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.allowPrivateIP {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = safeDialContext()
		c.http.Transport = transport
	}
	return c
}

// Forward implements outbound.ProxyClient.
func (c *Client) Forward(ctx context.Context, req forward.PreparedProxyRequest) (outbound.ProxyResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method, req.TargetURI, body)
	if err != nil {
		return outbound.ProxyResponse{}, fmt.Errorf("httpclient: build request: %w", err)
	}
	outReq.Header = req.Headers.Clone()
	if host := req.Headers.Get("Host"); host != "" {
		outReq.Host = host
	}

	resp, err := c.http.Do(outReq)
	if err != nil {
		return outbound.ProxyResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxRespBody))
	if err != nil {
		return outbound.ProxyResponse{}, fmt.Errorf("httpclient: read response body: %w", err)
	}

	return outbound.ProxyResponse{
		Status:  resp.StatusCode,
		Headers: forward.FilterResponseHeaders(resp.Header),
		Body:    respBody,
	}, nil
}

var _ outbound.ProxyClient = (*Client)(nil)
