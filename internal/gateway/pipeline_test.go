package gateway

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/forward"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

type fakeServiceRepository struct {
	mu       sync.Mutex
	services map[string]registry.ServiceRegistration
}

func newFakeServiceRepository(services ...registry.ServiceRegistration) *fakeServiceRepository {
	r := &fakeServiceRepository{services: map[string]registry.ServiceRegistration{}}
	for _, s := range services {
		r.services[s.ServiceID] = s
	}
	return r
}

func (f *fakeServiceRepository) FindAll(ctx context.Context) ([]registry.ServiceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]registry.ServiceRegistration, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeServiceRepository) FindByID(ctx context.Context, id string) (*registry.ServiceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeServiceRepository) Save(ctx context.Context, reg registry.ServiceRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[reg.ServiceID] = reg
	return nil
}

func (f *fakeServiceRepository) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.services[id]
	delete(f.services, id)
	return ok, nil
}

func (f *fakeServiceRepository) Exists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.services[id]
	return ok, nil
}

func (f *fakeServiceRepository) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.services), nil
}

var _ outbound.ServiceRepository = (*fakeServiceRepository)(nil)

type fakeProxyClient struct {
	resp outbound.ProxyResponse
	err  error
	last forward.PreparedProxyRequest
}

func (f *fakeProxyClient) Forward(ctx context.Context, req forward.PreparedProxyRequest) (outbound.ProxyResponse, error) {
	f.last = req
	return f.resp, f.err
}

var _ outbound.ProxyClient = (*fakeProxyClient)(nil)

func newTestRegistry(t *testing.T, services ...registry.ServiceRegistration) *registry.Registry {
	t.Helper()
	repo := newFakeServiceRepository(services...)
	reg := registry.New(repo, registry.Config{}, nil)
	// Prime the local snapshot synchronously so tests don't depend on the
	// async refresh coalescing path.
	if _, err := reg.FindRouteAsync(context.Background(), "/warm", http.MethodGet); err != nil {
		t.Fatalf("warm registry: %v", err)
	}
	return reg
}

func permissiveRateResolver() *ratelimit.Resolver {
	return ratelimit.NewResolver(
		ratelimit.PlatformDefaults{RequestsPerWindow: 1000, WindowSeconds: 60, BurstCapacity: 1000},
		ratelimit.WebSocketDefaults{},
	)
}

func TestPipelineGatewayModeForwardsMatchedRoute(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "widgets",
		BaseURL:           "http://widgets.internal",
		DefaultVisibility: network.VisibilityPublic,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/widgets/{id}", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	reg := newTestRegistry(t, svc)
	client := &fakeProxyClient{resp: outbound.ProxyResponse{Status: 200, Body: []byte("ok"), Headers: http.Header{}}}

	p := NewPipeline(ModeGateway, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  client,
	})

	result := p.Handle(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/widgets/42",
		Headers: http.Header{},
		PeerIP:  "203.0.113.4:5555",
	})

	if result.Kind != KindSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if client.last.TargetURI != "http://widgets.internal/widgets/42" {
		t.Fatalf("unexpected target uri: %s", client.last.TargetURI)
	}
}

func TestPipelineGatewayModeRouteNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPipeline(ModeGateway, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: "/nope", Headers: http.Header{}})
	if result.Kind != KindRouteNotFound {
		t.Fatalf("expected route not found, got %+v", result)
	}
}

func TestPipelineGatewayModeServiceOnlyIsRouteNotFound(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "widgets",
		BaseURL:           "http://widgets.internal",
		DefaultVisibility: network.VisibilityPublic,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/widgets/{id}", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	reg := newTestRegistry(t, svc)
	p := NewPipeline(ModeGateway, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodPost, Path: "/widgets/42", Headers: http.Header{}})
	if result.Kind != KindRouteNotFound {
		t.Fatalf("expected route not found for service-only match in gateway mode, got %+v", result)
	}
}

func TestPipelinePrivateEndpointDeniesUnlistedSource(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "widgets",
		BaseURL:           "http://widgets.internal",
		DefaultVisibility: network.VisibilityPrivate,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/widgets", Methods: []string{"GET"}, Visibility: network.VisibilityPrivate},
		},
	}
	reg := newTestRegistry(t, svc)
	p := NewPipeline(ModeGateway, Dependencies{
		Registry:     reg,
		Access:       network.NewAccessController(&network.AccessConfig{AllowedIPs: []string{"10.0.0.0/8"}}),
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/widgets",
		Headers: http.Header{},
		PeerIP:  "203.0.113.4:5555",
	})
	if result.Kind != KindAccessDenied {
		t.Fatalf("expected access denied, got %+v", result)
	}
}

func TestPipelinePassThroughReservedID(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPipeline(ModePassThrough, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: "/admin/anything", Headers: http.Header{}})
	if result.Kind != KindReservedPath {
		t.Fatalf("expected reserved path, got %+v", result)
	}
}

func TestPipelinePassThroughUnknownService(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewPipeline(ModePassThrough, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: "/unknownsvc/x", Headers: http.Header{}})
	if result.Kind != KindServiceNotFound {
		t.Fatalf("expected service not found, got %+v", result)
	}
}

func TestPipelinePassThroughServiceOnlyForwardsFallback(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:           "widgets",
		BaseURL:             "http://widgets.internal",
		DefaultVisibility:   network.VisibilityPublic,
		DefaultAuthRequired: false,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/widgets/list", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	reg := newTestRegistry(t, svc)
	client := &fakeProxyClient{resp: outbound.ProxyResponse{Status: 200, Headers: http.Header{}}}
	p := NewPipeline(ModePassThrough, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  client,
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: "/widgets/other", Headers: http.Header{}})
	if result.Kind != KindSuccess {
		t.Fatalf("expected service-only fallback to forward, got %+v", result)
	}
	if client.last.TargetURI != "http://widgets.internal/other" {
		t.Fatalf("unexpected fallback target uri: %s", client.last.TargetURI)
	}
}

func TestPipelineRateLimitedShortCircuits(t *testing.T) {
	svc := registry.ServiceRegistration{
		ServiceID:         "widgets",
		BaseURL:           "http://widgets.internal",
		DefaultVisibility: network.VisibilityPublic,
		Endpoints: []registry.EndpointConfig{
			{PathPattern: "/widgets", Methods: []string{"GET"}, Visibility: network.VisibilityPublic},
		},
	}
	reg := newTestRegistry(t, svc)
	p := NewPipeline(ModeGateway, Dependencies{
		Registry:     reg,
		RateResolver: permissiveRateResolver(),
		RateLimiter:  denyingRateLimiter{},
		Preparer:     forward.NewPreparer(forward.LegacyBuilder{}),
		ProxyClient:  &fakeProxyClient{},
	})

	result := p.Handle(context.Background(), Request{Method: http.MethodGet, Path: "/widgets", Headers: http.Header{}})
	if result.Kind != KindRateLimited {
		t.Fatalf("expected rate limited, got %+v", result)
	}
}

type denyingRateLimiter struct{}

func (denyingRateLimiter) CheckAndConsume(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfterSeconds: 30}, nil
}
func (denyingRateLimiter) GetStatus(ctx context.Context, key ratelimit.RateLimitKey, limit ratelimit.EffectiveRateLimit) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, nil
}
func (denyingRateLimiter) Reset(ctx context.Context, key ratelimit.RateLimitKey) error { return nil }
func (denyingRateLimiter) RemoveKeysMatching(ctx context.Context, prefix string) error { return nil }
func (denyingRateLimiter) IsEnabled() bool                                             { return true }

var _ outbound.RateLimiter = denyingRateLimiter{}
