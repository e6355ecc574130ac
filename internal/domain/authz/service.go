// Package authz implements the service authorization service (spec
// component C9): checking a caller's permissions against a service's own
// permission policy or the platform default, and gating registry
// mutations (create/update/permissions-write authority).
package authz

import (
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

// WildcardPermission bypasses every authorization check.
const WildcardPermission = "*"

// Operation names used against ServicePermissionPolicy for registry
// mutations, distinct from application-level operation names passed to
// IsAuthorizedForService.
const (
	OpUpdateService    = "registry.update"
	OpWritePermissions = "permissions.write"
)

// Config names the platform default policy and the claim that grants
// admin authority when a service has no policy of its own.
type Config struct {
	DefaultPolicy registry.ServicePermissionPolicy
	AdminClaim    string
}

// Service implements C9 and registry.Authorizer.
type Service struct {
	cfg Config
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.AdminClaim == "" {
		cfg.AdminClaim = "admin"
	}
	return &Service{cfg: cfg}
}

// IsAuthorizedForService reports whether permissions authorize operation
// against service, per C9's contract.
func (s *Service) IsAuthorizedForService(service *registry.ServiceRegistration, operation string, permissions []string) bool {
	if len(permissions) == 0 {
		return false
	}
	if contains(permissions, WildcardPermission) {
		return true
	}

	policy := s.cfg.DefaultPolicy
	if service != nil && service.HasPermissionPolicy() {
		policy = service.PermissionPolicy
	} else if contains(permissions, s.cfg.AdminClaim) {
		return true
	}
	perm, ok := policy[operation]
	if !ok {
		return false
	}
	return intersects(permissions, perm.AnyOfPermissions)
}

// CanCreateService implements registry.Authorizer.
func (s *Service) CanCreateService(permissions []string) bool {
	return contains(permissions, WildcardPermission) || contains(permissions, s.cfg.AdminClaim)
}

// CanUpdateService implements registry.Authorizer.
func (s *Service) CanUpdateService(existing *registry.ServiceRegistration, permissions []string) bool {
	if contains(permissions, WildcardPermission) || contains(permissions, s.cfg.AdminClaim) {
		return true
	}
	return s.IsAuthorizedForService(existing, OpUpdateService, permissions)
}

// CanWritePermissions implements registry.Authorizer.
func (s *Service) CanWritePermissions(permissions []string) bool {
	if contains(permissions, WildcardPermission) || contains(permissions, s.cfg.AdminClaim) {
		return true
	}
	return intersects(permissions, []string{OpWritePermissions})
}

// Compile-time check that Service implements registry.Authorizer.
var _ registry.Authorizer = (*Service)(nil)

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}
