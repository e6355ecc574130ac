package memory

import (
	"context"
	"sync"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// ServiceRepository implements outbound.ServiceRepository with an
// in-memory map, the authoritative backing store for the registry's
// TTL-cached snapshot (C6) when no SQL-backed repository is configured.
// Thread-safe for concurrent access via sync.RWMutex. Returns deep
// copies to prevent external mutation of stored data.
type ServiceRepository struct {
	mu       sync.RWMutex
	services map[string]registry.ServiceRegistration
}

// NewServiceRepository creates an empty in-memory ServiceRepository.
func NewServiceRepository() *ServiceRepository {
	return &ServiceRepository{
		services: make(map[string]registry.ServiceRegistration),
	}
}

// FindAll implements outbound.ServiceRepository.
func (r *ServiceRepository) FindAll(ctx context.Context) ([]registry.ServiceRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]registry.ServiceRegistration, 0, len(r.services))
	for _, reg := range r.services {
		out = append(out, copyRegistration(reg))
	}
	return out, nil
}

// FindByID implements outbound.ServiceRepository.
func (r *ServiceRepository) FindByID(ctx context.Context, serviceID string) (*registry.ServiceRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.services[serviceID]
	if !ok {
		return nil, nil
	}
	out := copyRegistration(reg)
	return &out, nil
}

// Save implements outbound.ServiceRepository.
func (r *ServiceRepository) Save(ctx context.Context, reg registry.ServiceRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[reg.ServiceID] = copyRegistration(reg)
	return nil
}

// Delete implements outbound.ServiceRepository.
func (r *ServiceRepository) Delete(ctx context.Context, serviceID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[serviceID]; !ok {
		return false, nil
	}
	delete(r.services, serviceID)
	return true, nil
}

// Exists implements outbound.ServiceRepository.
func (r *ServiceRepository) Exists(ctx context.Context, serviceID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.services[serviceID]
	return ok, nil
}

// Count implements outbound.ServiceRepository.
func (r *ServiceRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.services), nil
}

// copyRegistration deep-copies the slice/map fields of reg so neither the
// caller nor the stored value can mutate the other's state.
func copyRegistration(reg registry.ServiceRegistration) registry.ServiceRegistration {
	out := reg

	if reg.Endpoints != nil {
		out.Endpoints = make([]registry.EndpointConfig, len(reg.Endpoints))
		copy(out.Endpoints, reg.Endpoints)
	}
	if reg.VisibilityRules != nil {
		out.VisibilityRules = make([]registry.VisibilityRule, len(reg.VisibilityRules))
		copy(out.VisibilityRules, reg.VisibilityRules)
	}
	if reg.PermissionPolicy != nil {
		out.PermissionPolicy = make(registry.ServicePermissionPolicy, len(reg.PermissionPolicy))
		for k, v := range reg.PermissionPolicy {
			out.PermissionPolicy[k] = v
		}
	}
	if reg.SamplingConfig != nil {
		out.SamplingConfig = make(registry.SamplingConfig, len(reg.SamplingConfig))
		for k, v := range reg.SamplingConfig {
			out.SamplingConfig[k] = v
		}
	}
	if reg.RateLimitConfig != nil {
		rl := *reg.RateLimitConfig
		out.RateLimitConfig = &rl
	}
	if reg.AccessConfig != nil {
		ac := *reg.AccessConfig
		out.AccessConfig = &ac
	}

	return out
}

var _ outbound.ServiceRepository = (*ServiceRepository)(nil)
