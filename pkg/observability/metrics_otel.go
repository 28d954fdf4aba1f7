package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the authorization signals onto an OpenTelemetry meter
// so they reach the OTLP collector alongside traces
type OTelMetrics struct {
	decisions       metric.Int64Counter
	cacheLookups    metric.Int64Counter
	resolveDuration metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on meter
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.decisions, err = meter.Int64Counter("homestead.authz.decisions",
		metric.WithDescription("Authorization gate decisions"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter("homestead.permission_cache.lookups",
		metric.WithDescription("Permission cache lookups by result"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.resolveDuration, err = meter.Float64Histogram("homestead.permission.resolve.duration",
		metric.WithDescription("Time to compute a permission set on cache miss"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve duration histogram: %w", err)
	}
	return m, nil
}

// WithOTel attaches OTel instruments that every Record call also updates
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	m.otel = o
	return m
}

func (o *OTelMetrics) recordDecision(result, reason string) {
	if o == nil {
		return
	}
	o.decisions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("reason", reason),
	))
}

func (o *OTelMetrics) recordLookup(hit bool, duration time.Duration) {
	if o == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	o.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	if !hit {
		o.resolveDuration.Record(context.Background(), duration.Seconds())
	}
}
