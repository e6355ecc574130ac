package gatewayhttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
)

func TestWriteResult_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResult(rec, gateway.Success(http.StatusCreated, http.Header{"X-Foo": {"bar"}}, []byte("hi")))

	if rec.Code != http.StatusCreated {
		t.Errorf("code = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Foo") != "bar" {
		t.Errorf("X-Foo header not propagated")
	}
	if rec.Body.String() != "hi" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWriteResult_RateLimitedSetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResult(rec, gateway.RateLimited(gateway.RateLimitDecision{
		Limit: 100, Remaining: 0, RetrySeconds: 30, ResetAfterSeconds: 60,
	}))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want 100", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestWriteResult_NotFoundBodyMentionsPath(t *testing.T) {
	rec := httptest.NewRecorder()
	writeResult(rec, gateway.RouteNotFound("/nope"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "/nope") {
		t.Errorf("body = %q, want to contain /nope", body)
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	cases := []struct {
		name       string
		connection string
		upgrade    string
		want       bool
	}{
		{"standard", "Upgrade", "websocket", true},
		{"case insensitive", "upgrade", "WebSocket", true},
		{"multi-value connection", "keep-alive, Upgrade", "websocket", true},
		{"missing upgrade header", "Upgrade", "", false},
		{"missing connection header", "", "websocket", false},
		{"wrong upgrade value", "Upgrade", "h2c", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.connection != "" {
				req.Header.Set("Connection", tc.connection)
			}
			if tc.upgrade != "" {
				req.Header.Set("Upgrade", tc.upgrade)
			}
			if got := isWebSocketUpgrade(req); got != tc.want {
				t.Errorf("isWebSocketUpgrade() = %v, want %v", got, tc.want)
			}
		})
	}
}
