package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KeyCounter is satisfied by a rate-limit backend that can report how many
// distinct keys it is currently tracking, e.g.
// memory.MemoryRateLimiter.Size(). It is defined here rather than added to
// outbound.RateLimiter because not every backend (a future SQL-backed one,
// say) can answer it as a cheap in-memory count; a monitoring gauge is an
// optional capability, not a port requirement.
type KeyCounter interface {
	Size() int
}

// Metrics holds the Prometheus gauges this package exports in addition to
// the OpenTelemetry counters Recorder emits, following the same
// promauto-registration pattern as gatewayhttp.Metrics.
type Metrics struct {
	RateLimitKeys prometheus.Gauge
}

// NewMetrics registers the gateway's internal-gate gauges with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RateLimitKeys: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gatewayctl",
			Name:      "rate_limit_keys",
			Help:      "Number of distinct rate-limit buckets currently tracked",
		}),
	}
}

// StartRateLimitKeysGauge polls counter.Size() every interval and updates
// m.RateLimitKeys until ctx is cancelled. A zero or negative interval
// defaults to 15 seconds.
func (m *Metrics) StartRateLimitKeysGauge(ctx context.Context, counter KeyCounter, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RateLimitKeys.Set(float64(counter.Size()))
			}
		}
	}()
}
