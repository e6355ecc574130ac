package registry

import (
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/match"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/network"
)

// ResolveVisibility returns the effective visibility for a matched route:
// the endpoint's own visibility, unless the service's VisibilityRules
// contain an earlier entry whose pattern and method also match the
// request, in which case that rule's visibility wins.
//
// svc.VisibilityRules is scanned in declared order; the first match
// overrides. If endpoint.Visibility is the empty string, it falls back to
// svc.DefaultVisibility.
func ResolveVisibility(svc *ServiceRegistration, endpoint *EndpointConfig, path, method string) network.Visibility {
	for _, rule := range svc.VisibilityRules {
		if _, ok := match.Match(rule.PathPattern, path); !ok {
			continue
		}
		if !match.MethodMatches(rule.Methods, method) {
			continue
		}
		return rule.Visibility
	}

	if endpoint.Visibility != "" {
		return endpoint.Visibility
	}
	if svc.DefaultVisibility != "" {
		return svc.DefaultVisibility
	}
	return network.VisibilityPrivate
}
