package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics/noopmetrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/poll"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	log "github.com/sirupsen/logrus"
)

// SnapshotTimestampFormat is the suffix format of generated snapshot names.
const SnapshotTimestampFormat = "20060102-150405"

// Migrator moves the data of the source cluster into a new cluster in the
// target account. A Migrator runs one migration at a time.
type Migrator struct {
	Conf    *config.Config
	Source  *awsclient.Account
	Target  *awsclient.Account
	Metrics *metrics.MigrationMetrics

	// Sleep and Now drive every polling loop; tests replace them.
	Sleep    poll.SleepFunc
	Now      func() time.Time
	NewRunId func() string

	sourceStacks *stack.Inspector
	targetStacks *stack.Inspector
	deployer     *stack.Deployer

	lock *sync.Mutex
	run  *Run
}

type step struct {
	name    string
	reached State
	fn      func(ctx context.Context, run *Run) error
}

func NewMigrator(conf *config.Config, source *awsclient.Account, target *awsclient.Account, m *metrics.MigrationMetrics) *Migrator {
	if m == nil {
		m = metrics.NewMigrationMetrics(noopmetrics.NewNoopMetricFactory())
	}
	return &Migrator{
		Conf:         conf,
		Source:       source,
		Target:       target,
		Metrics:      m,
		Sleep:        poll.Sleep,
		Now:          time.Now,
		NewRunId:     func() string { return uuid.New().String() },
		sourceStacks: stack.NewInspector(source),
		targetStacks: stack.NewInspector(target),
		deployer:     stack.NewDeployer(target),
		lock:         &sync.Mutex{},
	}
}

// Deployer exposes the target stack deployer so callers can tune its waiter delays.
func (m *Migrator) Deployer() *stack.Deployer {
	return m.deployer
}

// CurrentStep returns the state of the run in progress, or of the last run.
func (m *Migrator) CurrentStep() string {
	m.lock.Lock()
	run := m.run
	m.lock.Unlock()
	if run == nil {
		return NotStarted.String()
	}
	return run.State().String()
}

func (m *Migrator) steps() []step {
	return []step{
		{name: "snapshot", reached: SnapshotReady, fn: m.snapshot},
		{name: "export", reached: Exported, fn: m.export},
		{name: "transfer", reached: CopiedToTarget, fn: m.transfer},
		{name: "cluster", reached: ClusterCreated, fn: m.createCluster},
		{name: "report", reached: Reported, fn: m.writeReport},
	}
}

// Migrate runs every step in order and stops at the first error. Completed
// steps are not rolled back; the returned Run tells how far it got.
func (m *Migrator) Migrate(ctx context.Context) (*Run, error) {
	run := newRun(m.NewRunId(), m.Now())
	m.lock.Lock()
	m.run = run
	m.lock.Unlock()

	log.WithField("run_id", run.Id).Infof("Starting migration from %v to %v.", m.Source, m.Target)
	m.Metrics.SetCurrentStep(int(NotStarted))

	if err := m.timed(ctx, run, "resolve", m.resolve); err != nil {
		return run, m.abort(run, "resolve", err)
	}

	for _, s := range m.steps() {
		if err := m.timed(ctx, run, s.name, s.fn); err != nil {
			return run, m.abort(run, s.name, err)
		}
		run.advance(s.reached)
		m.Metrics.SetCurrentStep(int(s.reached))
		run.logger(s.name).Infof("Reached state %v.", s.reached)
	}

	log.WithField("run_id", run.Id).Infof("Migration completed, report written to %v.", run.ReportPath)
	return run, nil
}

func (m *Migrator) timed(ctx context.Context, run *Run, name string, fn func(context.Context, *Run) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	begin := m.Now()
	err := fn(ctx, run)
	elapsed := m.Now().Sub(begin)
	m.Metrics.ObserveStep(name, elapsed)
	if err == nil {
		run.Steps = append(run.Steps, stepTiming(name, elapsed))
	}
	return err
}

func (m *Migrator) abort(run *Run, stepName string, err error) error {
	run.FinishedAt = m.Now()
	run.fail(err)
	m.Metrics.SetCurrentStep(int(Failed))
	run.logger(stepName).Errorf("Migration aborted after %v: %v", run.Completed(), err)
	return fmt.Errorf("migration step %v failed: %w", stepName, err)
}

// pollOptions bounds a poll with the migrator's clock and counts its attempts.
func (m *Migrator) pollOptions(name string, interval time.Duration, maxAttempts int, timeout time.Duration) poll.Options {
	return poll.Options{
		Name:        name,
		Interval:    interval,
		MaxAttempts: maxAttempts,
		Timeout:     timeout,
		Sleep:       m.Sleep,
		Now:         m.Now,
	}
}
