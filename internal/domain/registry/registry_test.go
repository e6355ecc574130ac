package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
)

type fakeRepo struct {
	mu       sync.Mutex
	services map[string]ServiceRegistration
	failNext bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{services: make(map[string]ServiceRegistration)}
}

func (f *fakeRepo) FindAll(ctx context.Context) ([]ServiceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return nil, errors.New("boom")
	}
	out := make([]ServiceRegistration, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*ServiceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.services[id]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) Save(ctx context.Context, reg ServiceRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[reg.ServiceID] = reg
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.services[id]; !ok {
		return false, nil
	}
	delete(f.services, id)
	return true, nil
}

func (f *fakeRepo) Exists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.services[id]
	return ok, nil
}

func (f *fakeRepo) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.services), nil
}

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) CanCreateService([]string) bool                      { return true }
func (allowAllAuthorizer) CanUpdateService(*ServiceRegistration, []string) bool { return true }
func (allowAllAuthorizer) CanWritePermissions([]string) bool                    { return true }

func svcA() ServiceRegistration {
	return ServiceRegistration{
		ServiceID: "svc-a",
		BaseURL:   "http://b:9090",
		Version:   1,
		Endpoints: []EndpointConfig{
			{PathPattern: "/api/items", Methods: []string{"GET"}, EndpointType: EndpointHTTP},
		},
		DefaultVisibility: network.VisibilityPublic,
	}
}

func TestRegisterThenFindRouteSync(t *testing.T) {
	repo := newFakeRepo()
	r := New(repo, Config{ServiceRoutesTTL: time.Minute}, nil)

	if err := r.Register(context.Background(), svcA(), allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := r.FindRoute("/api/items", "GET")
	if !res.Matched() {
		t.Fatalf("expected a match, got kind %v", res.Kind)
	}
	if res.Service.ServiceID != "svc-a" {
		t.Errorf("expected svc-a, got %s", res.Service.ServiceID)
	}
}

func TestRegisterRejectsReservedID(t *testing.T) {
	repo := newFakeRepo()
	r := New(repo, Config{}, nil)
	reg := svcA()
	reg.ServiceID = "Admin"
	if err := r.Register(context.Background(), reg, allowAllAuthorizer{}, nil); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected ErrInvalidRegistration, got %v", err)
	}
}

func TestRegisterVersionConflict(t *testing.T) {
	repo := newFakeRepo()
	r := New(repo, Config{}, nil)
	ctx := context.Background()

	if err := r.Register(ctx, svcA(), allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("initial register: %v", err)
	}

	conflicting := svcA()
	conflicting.Version = 1 // should be 2
	if err := r.Register(ctx, conflicting, allowAllAuthorizer{}, nil); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	ok := svcA()
	ok.Version = 2
	if err := r.Register(ctx, ok, allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("expected version 2 to succeed, got %v", err)
	}
}

func TestUnregisterIdempotentObservable(t *testing.T) {
	repo := newFakeRepo()
	r := New(repo, Config{}, nil)
	ctx := context.Background()
	if err := r.Register(ctx, svcA(), allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Unregister(ctx, "svc-a", allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("first unregister: %v", err)
	}
	if err := r.Unregister(ctx, "svc-a", allowAllAuthorizer{}, nil); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound on second unregister, got %v", err)
	}
	if res := r.FindRoute("/api/items", "GET"); !res.Absent() {
		t.Errorf("expected route to be gone after unregister, got %v", res.Kind)
	}
}

func TestFindRouteMethodMismatchIsServiceOnly(t *testing.T) {
	repo := newFakeRepo()
	r := New(repo, Config{}, nil)
	if err := r.Register(context.Background(), svcA(), allowAllAuthorizer{}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := r.FindRoute("/api/items", "POST")
	if res.Kind != LookupServiceOnly {
		t.Fatalf("expected ServiceOnlyMatch, got %v", res.Kind)
	}
}

func TestFindRouteAsyncCoalescesRefresh(t *testing.T) {
	repo := newFakeRepo()
	if err := repo.Save(context.Background(), svcA()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := New(repo, Config{ServiceRoutesTTL: time.Minute}, nil)

	var wg sync.WaitGroup
	results := make([]RouteLookupResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.FindRouteAsync(context.Background(), "/api/items", "GET")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		if !res.Matched() {
			t.Errorf("expected every concurrent caller to observe a match, got %v", res.Kind)
		}
	}
}

func TestFindRouteAsyncRetainsSnapshotOnRefreshFailure(t *testing.T) {
	repo := newFakeRepo()
	if err := repo.Save(context.Background(), svcA()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := New(repo, Config{ServiceRoutesTTL: time.Minute}, nil)

	// First successful populate.
	if _, err := r.FindRouteAsync(context.Background(), "/api/items", "GET"); err != nil {
		t.Fatalf("initial populate: %v", err)
	}

	// Force staleness and a failing refresh.
	r.snap.Store(newSnapshot(r.snap.Load().services, time.Time{}))
	repo.failNext = true
	res, err := r.FindRouteAsync(context.Background(), "/api/items", "GET")
	if err != nil {
		t.Fatalf("expected no error surfaced on refresh failure, got %v", err)
	}
	if !res.Matched() {
		t.Errorf("expected previous snapshot to still serve the match, got %v", res.Kind)
	}
}
