package forward

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Preparer implements C12. It holds no state beyond the configured
// HeaderBuilder, so a single instance is safe for concurrent use across
// requests.
type Preparer struct {
	headerBuilder HeaderBuilder
}

// NewPreparer creates a Preparer that injects forwarding headers via
// builder.
func NewPreparer(builder HeaderBuilder) *Preparer {
	return &Preparer{headerBuilder: builder}
}

// Prepare builds the outbound request from in, per spec.md §4.12: resolve
// the target URI, drop hop-by-hop headers (preserving Upgrade/Connection
// for WebSocket upgrades), rewrite Host, inject forwarding headers, and set
// Authorization when a bearer token was produced upstream.
func (p *Preparer) Prepare(in Input) (PreparedProxyRequest, error) {
	targetURI, err := buildTargetURI(in.BaseURL, in.TargetPath, in.RawQuery)
	if err != nil {
		return PreparedProxyRequest{}, err
	}

	headers := make(http.Header, len(in.Headers))
	for k, values := range in.Headers {
		if isHopByHop(k, in.IsWebSocketUpgrade) {
			continue
		}
		headers[k] = append([]string(nil), values...)
	}

	targetHost, err := targetHostHeader(in.BaseURL)
	if err != nil {
		return PreparedProxyRequest{}, err
	}
	headers.Set("Host", targetHost)

	if p.headerBuilder != nil {
		p.headerBuilder.Build(headers, in.ClientAddr, in.Scheme, in.RequestHost)
	}

	if in.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+in.BearerToken)
	}

	return PreparedProxyRequest{
		Method:    in.Method,
		TargetURI: targetURI,
		Headers:   headers,
		Body:      in.Body,
	}, nil
}

// FilterResponseHeaders applies the same hop-by-hop drop set to an upstream
// response, symmetric with Prepare, except that Content-Length is
// preserved so the client sees an accurate framing of the response body.
func FilterResponseHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, values := range h {
		canonical := http.CanonicalHeaderKey(k)
		if canonical == "Content-Length" {
			out[k] = append([]string(nil), values...)
			continue
		}
		if isHopByHop(k, false) {
			continue
		}
		out[k] = append([]string(nil), values...)
	}
	return out
}

func buildTargetURI(baseURL, targetPath, rawQuery string) (string, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return "", fmt.Errorf("forward: invalid base url %q: %w", baseURL, err)
	}
	path := targetPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	uri := strings.TrimRight(baseURL, "/") + path
	if rawQuery != "" {
		uri += "?" + rawQuery
	}
	return uri, nil
}

// targetHostHeader derives the Host header value for the upstream request:
// the base URL's host, with the port omitted when it is the scheme's
// default (80 for http, 443 for https) or unspecified.
func targetHostHeader(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("forward: invalid base url %q: %w", baseURL, err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		return host, nil
	}
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		return host, nil
	}
	return host + ":" + port, nil
}
