package metrics

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	stepDurationName   = "step_duration_seconds"
	pollAttemptsName   = "poll_attempts_total"
	currentStepName    = "current_step"
	cleanupActionsName = "cleanup_actions_total"
	runsName           = "runs_total"

	StepLabel    = "step"
	PollLabel    = "poll"
	KindLabel    = "kind"
	OutcomeLabel = "outcome"

	OutcomeDeleted = "deleted"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MigrationMetrics records the progress of a migration run. Metric creation
// failures are logged and never interrupt the run.
type MigrationMetrics struct {
	factory MetricFactory

	lock        *sync.Mutex
	currentStep Gauge
	counters    map[string]Counter
	histograms  map[string]Histogram
}

func NewMigrationMetrics(factory MetricFactory) *MigrationMetrics {
	m := &MigrationMetrics{
		factory:    factory,
		lock:       &sync.Mutex{},
		counters:   make(map[string]Counter),
		histograms: make(map[string]Histogram),
	}
	g, err := factory.GetOrCreateGauge(NewMetric(currentStepName, "Ordinal of the last migration state reached"))
	if err != nil {
		log.Warnf("Could not create metric %v: %v", currentStepName, err)
	}
	m.currentStep = g
	return m
}

func (m *MigrationMetrics) Factory() MetricFactory {
	return m.factory
}

func (m *MigrationMetrics) counter(mn Metric) Counter {
	m.lock.Lock()
	defer m.lock.Unlock()
	if c, ok := m.counters[mn.String()]; ok {
		return c
	}
	c, err := m.factory.GetOrCreateCounter(mn)
	if err != nil {
		log.Warnf("Could not create metric %v: %v", mn, err)
		return nil
	}
	m.counters[mn.String()] = c
	return c
}

func (m *MigrationMetrics) histogram(mn HistogramMetric) Histogram {
	m.lock.Lock()
	defer m.lock.Unlock()
	if h, ok := m.histograms[mn.String()]; ok {
		return h
	}
	h, err := m.factory.GetOrCreateHistogram(mn)
	if err != nil {
		log.Warnf("Could not create metric %v: %v", mn, err)
		return nil
	}
	m.histograms[mn.String()] = h
	return h
}

func (m *MigrationMetrics) SetCurrentStep(ordinal int) {
	if m.currentStep != nil {
		m.currentStep.Set(float64(ordinal))
	}
}

func (m *MigrationMetrics) ObserveStep(step string, d time.Duration) {
	h := m.histogram(NewHistogramMetricWithLabels(
		stepDurationName, "Duration of each migration step", DefaultDurationBuckets, map[string]string{StepLabel: step}))
	if h != nil {
		h.Observe(d)
	}
}

func (m *MigrationMetrics) IncPollAttempts(poll string) {
	c := m.counter(NewMetricWithLabels(pollAttemptsName, "Number of status checks per polling loop", map[string]string{PollLabel: poll}))
	if c != nil {
		c.Add(1)
	}
}

func (m *MigrationMetrics) IncCleanupAction(kind string, outcome string) {
	c := m.counter(NewMetricWithLabels(cleanupActionsName, "Cleanup actions by resource kind and outcome",
		map[string]string{KindLabel: kind, OutcomeLabel: outcome}))
	if c != nil {
		c.Add(1)
	}
}

func (m *MigrationMetrics) IncRuns(command string, result string) {
	c := m.counter(NewMetricWithLabels(runsName, "Completed command runs by result",
		map[string]string{"command": command, "result": result}))
	if c != nil {
		c.Add(1)
	}
}
