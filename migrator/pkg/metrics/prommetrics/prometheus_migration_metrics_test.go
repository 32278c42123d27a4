package prommetrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	families, err := registry.Gather()
	require.Nil(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	require.Failf(t, "metric family not found", "%v", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestPrometheusMetricFactory_GetOrCreateCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	factory := NewPrometheusMetricFactory(registry, "test")

	c, err := factory.GetOrCreateCounter(metrics.NewMetric("counter", "a counter"))
	require.Nil(t, err)
	c.Add(2)

	again, err := factory.GetOrCreateCounter(metrics.NewMetric("counter", "a counter"))
	require.Nil(t, err)
	again.Add(3)

	family := findFamily(t, registry, "test_counter")
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, float64(5), family.GetMetric()[0].GetCounter().GetValue())
}

func TestPrometheusMetricFactory_GetOrCreateCounterWithLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	factory := NewPrometheusMetricFactory(registry, "test")

	c1, err := factory.GetOrCreateCounter(metrics.NewMetricWithLabels("counter", "a counter", map[string]string{"poll": "snapshot"}))
	require.Nil(t, err)
	c2, err := factory.GetOrCreateCounter(metrics.NewMetricWithLabels("counter", "a counter", map[string]string{"poll": "export"}))
	require.Nil(t, err)
	c1.Add(1)
	c2.Add(4)

	families, err := registry.Gather()
	require.Nil(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 2)
}

func TestPrometheusMetricFactory_Gauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	factory := NewPrometheusMetricFactory(registry, "test")

	g, err := factory.GetOrCreateGauge(metrics.NewMetric("gauge", "a gauge"))
	require.Nil(t, err)
	g.Set(3)
	g.Add(2)
	g.Subtract(1)

	family := findFamily(t, registry, "test_gauge")
	assert.Equal(t, float64(4), family.GetMetric()[0].GetGauge().GetValue())
}

func TestPrometheusMetricFactory_UnregisterAllMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	factory := NewPrometheusMetricFactory(registry, "test")

	_, err := factory.GetOrCreateCounter(metrics.NewMetric("counter", "a counter"))
	require.Nil(t, err)
	_, err = factory.GetOrCreateHistogram(metrics.NewHistogramMetricWithLabels("hist", "a histogram", []float64{1}, map[string]string{"step": "a"}))
	require.Nil(t, err)

	require.Nil(t, factory.UnregisterAllMetrics())
	families, err := registry.Gather()
	require.Nil(t, err)
	require.Empty(t, families)
}

func TestMigrationMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewMigrationMetrics(NewPrometheusMetricFactory(registry, DefaultMetricsPrefix))

	m.SetCurrentStep(3)
	m.IncPollAttempts("snapshot")
	m.IncPollAttempts("snapshot")
	m.IncPollAttempts("export")
	m.ObserveStep("export", 90*time.Second)
	m.IncCleanupAction("stack", metrics.OutcomeDeleted)

	step := findFamily(t, registry, "redis_migrate_current_step")
	assert.Equal(t, float64(3), step.GetMetric()[0].GetGauge().GetValue())

	polls := findFamily(t, registry, "redis_migrate_poll_attempts_total")
	require.Len(t, polls.GetMetric(), 2)
	for _, metric := range polls.GetMetric() {
		switch labelValue(metric, metrics.PollLabel) {
		case "snapshot":
			assert.Equal(t, float64(2), metric.GetCounter().GetValue())
		case "export":
			assert.Equal(t, float64(1), metric.GetCounter().GetValue())
		default:
			t.Fatalf("unexpected label %v", metric.GetLabel())
		}
	}

	durations := findFamily(t, registry, "redis_migrate_step_duration_seconds")
	require.Len(t, durations.GetMetric(), 1)
	assert.Equal(t, uint64(1), durations.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, float64(90), durations.GetMetric()[0].GetHistogram().GetSampleSum())

	cleanup := findFamily(t, registry, "redis_migrate_cleanup_actions_total")
	assert.Equal(t, "stack", labelValue(cleanup.GetMetric()[0], metrics.KindLabel))
}

func TestPrometheusMetricFactory_WriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	factory := NewPrometheusMetricFactory(registry, DefaultMetricsPrefix)
	metrics.NewMigrationMetrics(factory).IncRuns("migrate", metrics.ResultSuccess)

	path := filepath.Join(t.TempDir(), "migration.prom")
	require.Nil(t, factory.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.Nil(t, err)
	require.Contains(t, string(data), `redis_migrate_runs_total{command="migrate",result="success"} 1`)
}
