package observability

import (
	"context"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordEngineCall(t *testing.T) {
	reader := metric.NewManualReader()
	obs := NewWithReader("geo-dialogue-test", reader)
	defer obs.Shutdown(context.Background())

	ctx := context.Background()
	obs.RecordEngineCall(ctx, "http", "sea_level_rise", "success", 120*time.Millisecond)
	obs.RecordEngineCall(ctx, "http", "sea_level_rise", "transient", 30*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
			if m.Name == "engine.calls" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				assert.Equal(t, int64(2), total)
			}
		}
	}
	assert.True(t, names["engine.calls"])
	assert.True(t, names["engine.duration"])

	val, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "geo-dialogue-test", val.AsString())
}

func TestNew_PrometheusRegisterer(t *testing.T) {
	reg := promclient.NewRegistry()
	obs, err := New("geo-dialogue-test", reg)
	require.NoError(t, err)
	defer obs.Shutdown(context.Background())

	obs.RecordEngineCall(context.Background(), "zeebe", "urban_development", "failure", time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilObservability(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordEngineCall(context.Background(), "http", "topic_modeling", "success", time.Millisecond)
	})
	assert.NoError(t, obs.Shutdown(context.Background()))
}
