package authz

import (
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

func TestIsAuthorizedForServiceEmptyPermissions(t *testing.T) {
	s := New(Config{})
	if s.IsAuthorizedForService(nil, "read", nil) {
		t.Fatal("expected empty permissions to be denied")
	}
}

func TestIsAuthorizedForServiceWildcard(t *testing.T) {
	s := New(Config{})
	if !s.IsAuthorizedForService(nil, "anything", []string{"*"}) {
		t.Fatal("expected wildcard permission to bypass all checks")
	}
}

func TestIsAuthorizedForServiceDefaultPolicy(t *testing.T) {
	s := New(Config{DefaultPolicy: registry.ServicePermissionPolicy{
		"read": registry.OperationPermission{AnyOfPermissions: []string{"svc.read"}},
	}})
	if !s.IsAuthorizedForService(nil, "read", []string{"svc.read"}) {
		t.Fatal("expected matching permission to authorize")
	}
	if s.IsAuthorizedForService(nil, "read", []string{"svc.write"}) {
		t.Fatal("expected non-matching permission to deny")
	}
}

func TestIsAuthorizedForServiceOwnPolicyOverridesDefault(t *testing.T) {
	s := New(Config{DefaultPolicy: registry.ServicePermissionPolicy{
		"read": registry.OperationPermission{AnyOfPermissions: []string{"default.read"}},
	}})
	svc := &registry.ServiceRegistration{
		PermissionPolicy: registry.ServicePermissionPolicy{
			"read": registry.OperationPermission{AnyOfPermissions: []string{"svc.read"}},
		},
	}
	if s.IsAuthorizedForService(svc, "read", []string{"default.read"}) {
		t.Fatal("expected service's own policy to fully replace the default")
	}
	if !s.IsAuthorizedForService(svc, "read", []string{"svc.read"}) {
		t.Fatal("expected service's own policy permission to authorize")
	}
}

func TestCanCreateService(t *testing.T) {
	s := New(Config{AdminClaim: "admin"})
	if s.CanCreateService([]string{"svc.read"}) {
		t.Fatal("expected non-admin, non-wildcard permissions to be denied")
	}
	if !s.CanCreateService([]string{"admin"}) {
		t.Fatal("expected admin claim to authorize service creation")
	}
}

func TestCanWritePermissionsRequiresScopeOrAdmin(t *testing.T) {
	s := New(Config{AdminClaim: "admin"})
	if s.CanWritePermissions([]string{"svc.read"}) {
		t.Fatal("expected unrelated permission to be denied")
	}
	if !s.CanWritePermissions([]string{OpWritePermissions}) {
		t.Fatal("expected permissions.write scope to authorize")
	}
}
