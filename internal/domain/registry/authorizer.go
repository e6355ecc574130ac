package registry

// Authorizer is the authorization collaborator consulted by Register and
// Unregister. It is satisfied by the service authorization service (C9);
// defined here, at the point of use, rather than imported from that
// package, so registry has no compile-time dependency on it.
type Authorizer interface {
	// CanCreateService reports whether actorPermissions carries the
	// authority to register a brand new service id.
	CanCreateService(actorPermissions []string) bool
	// CanUpdateService reports whether actorPermissions carries the
	// authority to update or unregister an existing service, evaluated
	// against that service's own permission policy.
	CanUpdateService(existing *ServiceRegistration, actorPermissions []string) bool
	// CanWritePermissions reports whether actorPermissions carries the
	// additional authority required to change a service's permission
	// policy.
	CanWritePermissions(actorPermissions []string) bool
}
