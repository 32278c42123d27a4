package noopmetrics

import (
	"net/http"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
)

type noopMetricFactory struct{}

func NewNoopMetricFactory() metrics.MetricFactory {
	return &noopMetricFactory{}
}

func (recv *noopMetricFactory) GetOrCreateCounter(mn metrics.Metric) (metrics.Counter, error) {
	return &noopMetric{}, nil
}

func (recv *noopMetricFactory) GetOrCreateGauge(mn metrics.Metric) (metrics.Gauge, error) {
	return &noopMetric{}, nil
}

func (recv *noopMetricFactory) GetOrCreateHistogram(mn metrics.HistogramMetric) (metrics.Histogram, error) {
	return &noopMetric{}, nil
}

func (recv *noopMetricFactory) UnregisterAllMetrics() error {
	return nil
}

func (recv *noopMetricFactory) HttpHandler() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Metrics are disabled for this run.", http.StatusNotFound)
	})
}

func (recv *noopMetricFactory) WriteTextfile(path string) error {
	return nil
}

type noopMetric struct{}

func (recv *noopMetric) Add(valueToAdd int) {}

func (recv *noopMetric) Subtract(valueToSubtract int) {}

func (recv *noopMetric) Set(value float64) {}

func (recv *noopMetric) Observe(d time.Duration) {}
