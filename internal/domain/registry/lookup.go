package registry

// LookupKind discriminates the three possible outcomes of a route lookup.
type LookupKind string

const (
	// LookupAbsent means no registered service claims any prefix of the path.
	LookupAbsent LookupKind = "absent"
	// LookupServiceOnly means a service's prefix matched but no endpoint did.
	LookupServiceOnly LookupKind = "service_only"
	// LookupMatch means both a service and one of its endpoints matched.
	LookupMatch LookupKind = "match"
)

// RouteLookupResult is the outcome of matching a path and method against
// the registered service set.
type RouteLookupResult struct {
	Kind LookupKind

	// Service is populated for LookupServiceOnly and LookupMatch.
	Service *ServiceRegistration

	// Endpoint, TargetPath, and PathVariables are populated only for
	// LookupMatch.
	Endpoint      *EndpointConfig
	TargetPath    string
	PathVariables map[string]string
}

// Absent reports whether no service claimed the path at all.
func (r RouteLookupResult) Absent() bool { return r.Kind == LookupAbsent }

// Matched reports whether both a service and an endpoint matched.
func (r RouteLookupResult) Matched() bool { return r.Kind == LookupMatch }
