package metrics

import (
	"net/http"
)

type MetricFactory interface {
	GetOrCreateCounter(mn Metric) (Counter, error)
	GetOrCreateGauge(mn Metric) (Gauge, error)
	GetOrCreateHistogram(mn HistogramMetric) (Histogram, error)

	// Unregisters all registered metrics and discards all internal references to them.
	// An error is returned if at least one metric could not be unregistered.
	UnregisterAllMetrics() error

	// Returns the http handler implementation for the metrics endpoint.
	HttpHandler() http.Handler

	// Writes the current value of every metric to path in the text exposition
	// format, for node exporter textfile collection.
	WriteTextfile(path string) error
}

func DefaultHttpHandler() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		http.Error(writer, "Migration metrics haven't been initialized yet.", http.StatusServiceUnavailable)
	})
}
