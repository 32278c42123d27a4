package metrics

import (
	"fmt"
	"sort"
	"strings"
)

type metric struct {
	name                 string
	labels               map[string]string
	description          string
	stringRepresentation string
}

type Metric interface {
	GetName() string
	GetLabels() map[string]string
	GetDescription() string
	String() string
}

type histogramMetric struct {
	*metric
	buckets []float64
}

type HistogramMetric interface {
	Metric
	GetBuckets() []float64
}

// Step durations range from seconds (report) to an hour (export, stack creation).
var DefaultDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

func newMetricBase(name string, description string, labels map[string]string) *metric {
	m := &metric{
		name:        name,
		description: description,
		labels:      labels,
	}
	m.stringRepresentation = computeStringRepresentation(m)
	return m
}

func NewMetric(name string, description string) Metric {
	return newMetricBase(name, description, nil)
}

func NewMetricWithLabels(name string, description string, labels map[string]string) Metric {
	return newMetricBase(name, description, labels)
}

func NewHistogramMetricWithLabels(
	name string, description string, buckets []float64, labels map[string]string) HistogramMetric {

	return &histogramMetric{
		metric:  newMetricBase(name, description, labels),
		buckets: buckets,
	}
}

func computeStringRepresentation(mn *metric) string {
	labels := mn.GetLabels()
	if labels == nil {
		return mn.GetName()
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%v=%q", k, labels[k]))
	}
	return fmt.Sprintf("%v{%v}", mn.GetName(), strings.Join(parts, ","))
}

func (mn *metric) String() string {
	return mn.stringRepresentation
}

func (mn *metric) GetName() string {
	return mn.name
}

func (mn *metric) GetLabels() map[string]string {
	return mn.labels
}

func (mn *metric) GetDescription() string {
	return mn.description
}

func (hm *histogramMetric) GetBuckets() []float64 {
	return hm.buckets
}
