package outbound

import (
	"context"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

// ServiceRepository is the outbound port for the authoritative backing
// store of service registrations. Adapters implement this over a
// persistent or remote-shared backend; the registry domain layer keeps a
// local, TTL-bounded read snapshot in front of it.
type ServiceRepository interface {
	// FindAll returns every registered service, in registration order.
	FindAll(ctx context.Context) ([]registry.ServiceRegistration, error)

	// FindByID returns the service with the given id, or (nil, nil) if
	// absent.
	FindByID(ctx context.Context, serviceID string) (*registry.ServiceRegistration, error)

	// Save persists reg. Implementations must make this atomic with
	// respect to concurrent Save calls for the same serviceId.
	Save(ctx context.Context, reg registry.ServiceRegistration) error

	// Delete removes the service with the given id. Returns false if it
	// did not exist.
	Delete(ctx context.Context, serviceID string) (bool, error)

	// Exists reports whether a service with the given id is registered.
	Exists(ctx context.Context, serviceID string) (bool, error)

	// Count returns the number of registered services.
	Count(ctx context.Context) (int, error)
}
