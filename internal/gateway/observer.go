package gateway

import (
	"context"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/authn"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
)

// Observer receives a callback at each of C14's "observable events" (per
// spec.md §1's external telemetry collaborator) as Handle/Upgrade runs a
// request through the chain. Every method must return quickly and never
// block the pipeline; a slow or failing observer degrades telemetry, not
// request handling. A nil Pipeline.observer is replaced with noopObserver,
// so call sites never need their own nil check.
type Observer interface {
	// ObserveRouteResolution reports the outcome of a C6/C7 route lookup.
	ObserveRouteResolution(ctx context.Context, path, method string, kind registry.LookupKind)
	// ObserveAuthDecision reports a C8 authentication outcome. Revocation
	// denials (C11) surface here too, as authn.KindUnauthorized with reason
	// "revoked", since C11
	// runs entirely inside authn.Service.Authenticate and has no decision
	// point of its own visible to the pipeline.
	ObserveAuthDecision(ctx context.Context, serviceID string, kind authn.ResultKind)
	// ObserveAuthzDecision reports a C9 permission check outcome.
	ObserveAuthzDecision(ctx context.Context, serviceID, operation string, allowed bool)
	// ObserveRateLimitDecision reports a C10 rate-limit check outcome.
	ObserveRateLimitDecision(ctx context.Context, key ratelimit.RateLimitKey, allowed bool)
	// ObserveForwardOutcome reports a C13 forward's terminal Kind.
	ObserveForwardOutcome(ctx context.Context, serviceID string, kind Kind)
}

type noopObserver struct{}

func (noopObserver) ObserveRouteResolution(context.Context, string, string, registry.LookupKind) {}
func (noopObserver) ObserveAuthDecision(context.Context, string, authn.ResultKind)                     {}
func (noopObserver) ObserveAuthzDecision(context.Context, string, string, bool)                  {}
func (noopObserver) ObserveRateLimitDecision(context.Context, ratelimit.RateLimitKey, bool)       {}
func (noopObserver) ObserveForwardOutcome(context.Context, string, Kind)                          {}
