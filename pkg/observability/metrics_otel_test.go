package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			total += dp.Value
		}
	}
	return total
}

func TestOTelMetrics_MirrorsRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otelMetrics, err := NewOTelMetrics(provider.Meter("homestead-test"))
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry()).WithOTel(otelMetrics)
	metrics.RecordDecision(true, "")
	metrics.RecordDecision(false, "missing_permission")
	metrics.RecordDecision(false, "missing_permission")
	metrics.RecordCacheHit()
	metrics.RecordCacheMiss(3 * time.Millisecond)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["homestead.authz.decisions"], attribute.String("reason", "missing_permission")))
	assert.Equal(t, int64(1), sumFor(t, data["homestead.authz.decisions"], attribute.String("result", "allow")))
	assert.Equal(t, int64(1), sumFor(t, data["homestead.permission_cache.lookups"], attribute.String("result", "hit")))

	hist, ok := data["homestead.permission.resolve.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestOTelMetrics_Optional(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	assert.NotPanics(t, func() {
		metrics.RecordDecision(true, "")
		metrics.RecordCacheMiss(time.Millisecond)
	})
}
