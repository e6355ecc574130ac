package gatewayhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/forward"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

type fakeProxyClient struct {
	resp outbound.ProxyResponse
	err  error
}

func (f *fakeProxyClient) Forward(ctx context.Context, req forward.PreparedProxyRequest) (outbound.ProxyResponse, error) {
	return f.resp, f.err
}

func newTestPipeline(t *testing.T, svc registry.ServiceRegistration, proxy outbound.ProxyClient) *gateway.Pipeline {
	t.Helper()
	repo := memory.NewServiceRepository()
	if err := repo.Save(context.Background(), svc); err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	reg := registry.New(repo, registry.Config{ServiceRoutesTTL: time.Minute}, nil)
	if _, err := reg.FindRouteAsync(context.Background(), "/warm", "GET"); err != nil {
		t.Fatalf("warm snapshot: %v", err)
	}

	return gateway.NewPipeline(gateway.ModeGateway, gateway.Dependencies{
		Registry:    reg,
		Preparer:    forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient: proxy,
	})
}

func TestTransport_HandleRequest_Success(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "orders",
		BaseURL:           "http://orders.internal",
		DefaultVisibility: network.VisibilityPublic,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/orders/{id}", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	proxy := &fakeProxyClient{resp: outbound.ProxyResponse{Status: http.StatusOK, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"ok":true}`)}}
	pipeline := newTestPipeline(t, svc, proxy)

	transport := NewTransport(pipeline, nil)

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	rec := httptest.NewRecorder()
	transport.handleRequest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTransport_HandleRequest_RouteNotFound(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "orders",
		BaseURL:           "http://orders.internal",
		DefaultVisibility: network.VisibilityPublic,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/orders/{id}", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	pipeline := newTestPipeline(t, svc, &fakeProxyClient{})
	transport := NewTransport(pipeline, nil)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	transport.handleRequest(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestTransport_HandleRequest_AccessDenied(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "orders",
		BaseURL:           "http://orders.internal",
		DefaultVisibility: network.VisibilityPrivate,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/orders/{id}", Methods: []string{"GET"}, Visibility: network.VisibilityPrivate},
		},
	}
	pipeline := gateway.NewPipeline(gateway.ModeGateway, gateway.Dependencies{
		Registry: func() *registry.Registry {
			repo := memory.NewServiceRepository()
			_ = repo.Save(context.Background(), svc)
			r := registry.New(repo, registry.Config{ServiceRoutesTTL: time.Minute}, nil)
			_, _ = r.FindRouteAsync(context.Background(), "/warm", "GET")
			return r
		}(),
		Access:      network.NewAccessController(&network.AccessConfig{}),
		Preparer:    forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient: &fakeProxyClient{},
	})
	transport := NewTransport(pipeline, nil)

	req := httptest.NewRequest(http.MethodGet, "/orders/42", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	transport.handleRequest(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestDispatch_RoutesUpgradeRequestsSeparately(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")

	if !isWebSocketUpgrade(req) {
		t.Fatal("expected isWebSocketUpgrade to report true")
	}

	plain := httptest.NewRequest(http.MethodGet, "/chat", nil)
	if isWebSocketUpgrade(plain) {
		t.Fatal("expected isWebSocketUpgrade to report false for plain request")
	}
}
