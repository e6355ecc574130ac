package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/match"
)

// Repository is the part of outbound.ServiceRepository that Registry uses,
// declared here at the point of use because the port package imports this
// one for ServiceRegistration.
type Repository interface {
	FindAll(ctx context.Context) ([]ServiceRegistration, error)
	FindByID(ctx context.Context, serviceID string) (*ServiceRegistration, error)
	Save(ctx context.Context, reg ServiceRegistration) error
	Delete(ctx context.Context, serviceID string) (bool, error)
}

// Config tunes the registry's local TTL cache.
type Config struct {
	// ServiceRoutesTTL is how long a synchronous snapshot is considered
	// fresh before an async lookup triggers a coalesced refresh.
	ServiceRoutesTTL time.Duration
	// JitterFactor adds a per-instance random fraction of ServiceRoutesTTL
	// to the freshness deadline, so many instances do not refresh in
	// lockstep.
	JitterFactor float64
}

// snapshot is an immutable, copy-on-write view of the registered service
// set, indexed for both ordered matching and id lookup.
type snapshot struct {
	services   []ServiceRegistration
	byID       map[string]int
	freshUntil time.Time
}

func newSnapshot(services []ServiceRegistration, freshUntil time.Time) *snapshot {
	byID := make(map[string]int, len(services))
	for i, s := range services {
		byID[s.ServiceID] = i
	}
	return &snapshot{services: services, byID: byID, freshUntil: freshUntil}
}

func (s *snapshot) find(id string) *ServiceRegistration {
	if s == nil {
		return nil
	}
	if i, ok := s.byID[id]; ok {
		return &s.services[i]
	}
	return nil
}

// Registry owns a local, TTL-cached snapshot of the service set backed by
// a ServiceRepository of record. Reads against the local snapshot never
// block; staleness is bounded by Config.ServiceRoutesTTL and resolved by a
// single coalesced refresh shared across concurrent callers.
type Registry struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger

	snap  atomic.Pointer[snapshot]
	group singleflight.Group
	mu    sync.Mutex // serializes register/unregister read-modify-write
}

// New creates a Registry. The initial snapshot is empty and considered
// stale, so the first findRouteAsync call populates it from repo.
func New(repo Repository, cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{repo: repo, cfg: cfg, logger: logger}
	r.snap.Store(newSnapshot(nil, time.Time{}))
	return r
}

func (r *Registry) freshDeadline(now time.Time) time.Time {
	ttl := r.cfg.ServiceRoutesTTL
	if ttl <= 0 {
		return now
	}
	jitter := time.Duration(float64(ttl) * r.cfg.JitterFactor * rand.Float64())
	return now.Add(ttl + jitter)
}

// Register validates reg, checks authorization, and on success persists it
// and updates the local snapshot immediately. actorPermissions drives the
// authorization decision via the supplied authorizer.
func (r *Registry) Register(ctx context.Context, reg ServiceRegistration, authz Authorizer, actorPermissions []string) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.repo.FindByID(ctx, reg.ServiceID)
	if err != nil {
		return fmt.Errorf("registry: lookup existing service: %w", err)
	}

	if existing == nil {
		if authz != nil && !authz.CanCreateService(actorPermissions) {
			return fmt.Errorf("%w: create authority required for new service %q", ErrUnauthorized, reg.ServiceID)
		}
	} else {
		if reg.Version != existing.Version+1 {
			return fmt.Errorf("%w: expected version %d, got %d", ErrVersionConflict, existing.Version+1, reg.Version)
		}
		if authz != nil && !authz.CanUpdateService(existing, actorPermissions) {
			return fmt.Errorf("%w: update authority required for service %q", ErrUnauthorized, reg.ServiceID)
		}
		if policyChanged(existing.PermissionPolicy, reg.PermissionPolicy) {
			if authz != nil && !authz.CanWritePermissions(actorPermissions) {
				return fmt.Errorf("%w: permissions.write authority required to change service %q's permission policy", ErrUnauthorized, reg.ServiceID)
			}
		}
		if reg.Version == 0 {
			reg.Version = existing.Version + 1
		}
	}
	if existing == nil && reg.Version == 0 {
		reg.Version = 1
	}

	if err := r.repo.Save(ctx, reg); err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}

	r.replaceLocal(reg)
	return nil
}

// Unregister checks authorization against the existing service's policy
// then removes it from the store and the local snapshot.
func (r *Registry) Unregister(ctx context.Context, serviceID string, authz Authorizer, actorPermissions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.repo.FindByID(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("registry: lookup existing service: %w", err)
	}
	if existing == nil {
		return ErrServiceNotFound
	}
	if authz != nil && !authz.CanUpdateService(existing, actorPermissions) {
		return fmt.Errorf("%w: update authority required to unregister %q", ErrUnauthorized, serviceID)
	}

	ok, err := r.repo.Delete(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	if !ok {
		return ErrServiceNotFound
	}

	r.removeLocal(serviceID)
	return nil
}

// replaceLocal applies an upsert of reg to the current snapshot, keeping
// registration order stable (new services appended, existing ones updated
// in place).
func (r *Registry) replaceLocal(reg ServiceRegistration) {
	cur := r.snap.Load()
	next := make([]ServiceRegistration, 0, len(cur.services)+1)
	replaced := false
	for _, s := range cur.services {
		if s.ServiceID == reg.ServiceID {
			next = append(next, reg)
			replaced = true
			continue
		}
		next = append(next, s)
	}
	if !replaced {
		next = append(next, reg)
	}
	r.snap.Store(newSnapshot(next, cur.freshUntil))
}

func (r *Registry) removeLocal(serviceID string) {
	cur := r.snap.Load()
	next := make([]ServiceRegistration, 0, len(cur.services))
	for _, s := range cur.services {
		if s.ServiceID != serviceID {
			next = append(next, s)
		}
	}
	r.snap.Store(newSnapshot(next, cur.freshUntil))
}

// FindRoute performs a synchronous lookup against the current local
// snapshot, without consulting freshness or triggering a refresh.
func (r *Registry) FindRoute(path, method string) RouteLookupResult {
	return matchRoute(r.snap.Load(), path, method)
}

// FindRouteAsync refreshes the local snapshot from the repository if it has
// gone stale, coalescing concurrent refreshes into one repository read,
// then performs the synchronous lookup.
func (r *Registry) FindRouteAsync(ctx context.Context, path, method string) (RouteLookupResult, error) {
	cur := r.snap.Load()
	if time.Now().Before(cur.freshUntil) {
		return matchRoute(cur, path, method), nil
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		services, ferr := r.repo.FindAll(ctx)
		if ferr != nil {
			return nil, ferr
		}
		r.snap.Store(newSnapshot(services, r.freshDeadline(time.Now())))
		return nil, nil
	})
	if err != nil {
		// Keep serving the previous snapshot; the next call may retry.
		r.logger.Warn("registry refresh failed, retaining previous snapshot", "error", err)
		return matchRoute(r.snap.Load(), path, method), nil
	}

	return matchRoute(r.snap.Load(), path, method), nil
}

// Get returns the service with the given id from the local snapshot, or
// nil if absent.
func (r *Registry) Get(serviceID string) *ServiceRegistration {
	return r.snap.Load().find(serviceID)
}

// matchRoute implements the C6 matching algorithm: normalize the path,
// then scan services in registration order, and within each service scan
// endpoints in declared order for the first method+pattern match.
func matchRoute(snap *snapshot, path, method string) RouteLookupResult {
	path = match.NormalizePath(path)

	var serviceOnly *ServiceRegistration
	for i := range snap.services {
		svc := &snap.services[i]
		claimsPrefix := false
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			vars, ok := match.Match(ep.PathPattern, path)
			if !ok {
				if sharesPrefix(ep.PathPattern, path) {
					claimsPrefix = true
				}
				continue
			}
			claimsPrefix = true
			if !match.MethodMatches(ep.Methods, method) {
				continue
			}
			target := path
			if ep.PathRewriteTemplate != "" {
				if rewritten, rerr := match.Rewrite(ep.PathRewriteTemplate, vars); rerr == nil {
					target = rewritten
				}
			}
			return RouteLookupResult{
				Kind:          LookupMatch,
				Service:       svc,
				Endpoint:      ep,
				TargetPath:    target,
				PathVariables: vars,
			}
		}
		if claimsPrefix && serviceOnly == nil {
			serviceOnly = svc
		}
	}

	if serviceOnly != nil {
		return RouteLookupResult{Kind: LookupServiceOnly, Service: serviceOnly}
	}
	return RouteLookupResult{Kind: LookupAbsent}
}

// sharesPrefix reports whether pattern's longest literal (non-wildcard)
// leading segment run is a prefix of path, used to attribute a
// ServiceOnlyMatch to the service whose endpoints come closest to the
// request.
func sharesPrefix(pattern, path string) bool {
	pSegs := match.SplitPath(pattern)
	rSegs := match.SplitPath(path)
	count := 0
	for i := 0; i < len(pSegs) && i < len(rSegs); i++ {
		seg := pSegs[i]
		if seg == "*" || seg == "**" || (len(seg) > 1 && seg[0] == '{') {
			break
		}
		if seg != rSegs[i] {
			return false
		}
		count++
	}
	return count > 0
}

func policyChanged(old, next ServicePermissionPolicy) bool {
	if len(old) != len(next) {
		return true
	}
	for op, perm := range next {
		oldPerm, ok := old[op]
		if !ok || !equalStrings(oldPerm.AnyOfPermissions, perm.AnyOfPermissions) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
