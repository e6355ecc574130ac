package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/authn"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/registry"
	"github.com/Sentinel-Gate/Sentinelgate/internal/gateway"
)

// Recorder implements gateway.Observer: one span plus one counter
// increment per observable event, each named after the spec component it
// belongs to so a trace of a single request reads as C6 -> C8 -> C9 ->
// C10 -> C13.
type Recorder struct {
	tracer trace.Tracer

	routeResolutions metric.Int64Counter
	authDecisions    metric.Int64Counter
	authzDecisions   metric.Int64Counter
	rateLimitChecks  metric.Int64Counter
	forwardOutcomes  metric.Int64Counter

	logger *slog.Logger
}

// NewRecorder builds a Recorder against p's tracer/meter. Instrument
// creation failures are logged and leave that instrument nil; RecordX
// calls degrade to span-only recording rather than failing the request
// path, consistent with Observer's "never block the pipeline" contract.
func NewRecorder(p *Provider, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{tracer: p.Tracer, logger: logger}

	var err error
	if r.routeResolutions, err = p.Meter.Int64Counter("gateway.route_resolutions",
		metric.WithDescription("Route lookups by outcome (C6/C7)")); err != nil {
		logger.Warn("telemetry: failed to create route_resolutions counter", "error", err)
	}
	if r.authDecisions, err = p.Meter.Int64Counter("gateway.auth_decisions",
		metric.WithDescription("Authentication outcomes, including C11 revocation denials (C8)")); err != nil {
		logger.Warn("telemetry: failed to create auth_decisions counter", "error", err)
	}
	if r.authzDecisions, err = p.Meter.Int64Counter("gateway.authz_decisions",
		metric.WithDescription("Permission check outcomes (C9)")); err != nil {
		logger.Warn("telemetry: failed to create authz_decisions counter", "error", err)
	}
	if r.rateLimitChecks, err = p.Meter.Int64Counter("gateway.rate_limit_checks",
		metric.WithDescription("Rate limit decisions (C10)")); err != nil {
		logger.Warn("telemetry: failed to create rate_limit_checks counter", "error", err)
	}
	if r.forwardOutcomes, err = p.Meter.Int64Counter("gateway.forward_outcomes",
		metric.WithDescription("Terminal forward outcomes (C13)")); err != nil {
		logger.Warn("telemetry: failed to create forward_outcomes counter", "error", err)
	}
	return r
}

var _ gateway.Observer = (*Recorder)(nil)

func (r *Recorder) ObserveRouteResolution(ctx context.Context, path, method string, kind registry.LookupKind) {
	_, span := r.tracer.Start(ctx, "gateway.route_resolution",
		trace.WithAttributes(attribute.String("path", path), attribute.String("method", method), attribute.String("kind", string(kind))))
	defer span.End()
	if r.routeResolutions != nil {
		r.routeResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (r *Recorder) ObserveAuthDecision(ctx context.Context, serviceID string, kind authn.ResultKind) {
	_, span := r.tracer.Start(ctx, "gateway.auth_decision",
		trace.WithAttributes(attribute.String("service_id", serviceID), attribute.String("kind", string(kind))))
	defer span.End()
	if r.authDecisions != nil {
		r.authDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("service_id", serviceID), attribute.String("kind", string(kind))))
	}
}

func (r *Recorder) ObserveAuthzDecision(ctx context.Context, serviceID, operation string, allowed bool) {
	_, span := r.tracer.Start(ctx, "gateway.authz_decision",
		trace.WithAttributes(attribute.String("service_id", serviceID), attribute.String("operation", operation), attribute.Bool("allowed", allowed)))
	defer span.End()
	if r.authzDecisions != nil {
		r.authzDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("service_id", serviceID), attribute.Bool("allowed", allowed)))
	}
}

func (r *Recorder) ObserveRateLimitDecision(ctx context.Context, key ratelimit.RateLimitKey, allowed bool) {
	_, span := r.tracer.Start(ctx, "gateway.rate_limit_decision",
		trace.WithAttributes(attribute.String("key_type", string(key.KeyType)), attribute.String("service_id", key.ServiceID), attribute.Bool("allowed", allowed)))
	defer span.End()
	if r.rateLimitChecks != nil {
		r.rateLimitChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("key_type", string(key.KeyType)), attribute.Bool("allowed", allowed)))
	}
}

func (r *Recorder) ObserveForwardOutcome(ctx context.Context, serviceID string, kind gateway.Kind) {
	_, span := r.tracer.Start(ctx, "gateway.forward_outcome",
		trace.WithAttributes(attribute.String("service_id", serviceID), attribute.String("kind", string(kind))))
	defer span.End()
	if r.forwardOutcomes != nil {
		r.forwardOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("service_id", serviceID), attribute.String("kind", string(kind))))
	}
}
