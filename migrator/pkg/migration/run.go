package migration

import (
	"sync"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/report"
	log "github.com/sirupsen/logrus"
)

// ClusterDescriptor describes the source cluster.
type ClusterDescriptor struct {
	Id            string
	NodeType      string
	EngineVersion string
	Status        string
	// Shards is the number of node groups, one RDB file each on export.
	Shards int
}

// Run is the record threaded through every step of a migration. Each step
// reads what earlier steps resolved and fills in its own results.
type Run struct {
	Id         string
	StartedAt  time.Time
	FinishedAt time.Time

	SourceAccountId string
	TargetAccountId string

	SourceCluster     ClusterDescriptor
	ExportBucket      string
	ImportBucket      string
	TargetCanonicalId string
	// Network of the target setup stack, empty when it exports none.
	TargetSecurityGroupId string
	TargetSubnetIds       string

	SnapshotName   string
	SnapshotReused bool
	ExportFiles    []string
	ImportPaths    []string

	TargetStack     string
	TargetStackMode string
	TargetClusterId string
	TargetEndpoint  string

	ReportPath string
	Steps      []report.StepTiming
	Validation *report.Validation

	lock      *sync.Mutex
	state     State
	completed []State
	err       error
}

func newRun(id string, startedAt time.Time) *Run {
	return &Run{
		Id:        id,
		StartedAt: startedAt,
		lock:      &sync.Mutex{},
		state:     NotStarted,
	}
}

// State returns the last state reached.
func (r *Run) State() State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

// Completed returns every state reached so far in order.
func (r *Run) Completed() []State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]State(nil), r.completed...)
}

// Err returns the error the run failed with, if any.
func (r *Run) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.err
}

func (r *Run) advance(s State) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.state = s
	r.completed = append(r.completed, s)
}

func (r *Run) fail(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.state = Failed
	r.err = err
}

func (r *Run) logger(step string) *log.Entry {
	return log.WithFields(log.Fields{"run_id": r.Id, "step": step})
}

func (r *Run) tags(purpose string) map[string]string {
	return map[string]string{
		common.TagRunId:   r.Id,
		common.TagPurpose: purpose,
	}
}

func (r *Run) reportData() *report.Data {
	data := &report.Data{
		RunId:           r.Id,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		SourceAccountId: r.SourceAccountId,
		SourceClusterId: r.SourceCluster.Id,
		SourceNodeType:  r.SourceCluster.NodeType,
		SnapshotName:    r.SnapshotName,
		SnapshotReused:  r.SnapshotReused,
		ExportBucket:    r.ExportBucket,
		ExportFiles:     r.ExportFiles,
		TargetAccountId: r.TargetAccountId,
		ImportBucket:    r.ImportBucket,
		ImportPaths:     r.ImportPaths,
		TargetStack:     r.TargetStack,
		TargetStackMode: r.TargetStackMode,
		TargetClusterId: r.TargetClusterId,
		TargetEndpoint:  r.TargetEndpoint,
		Steps:           r.Steps,
		Validation:      r.Validation,
	}
	for _, s := range r.Completed() {
		data.Completed = append(data.Completed, s.String())
	}
	if r.TargetStackMode == StackModeSkipped {
		data.Skipped = append(data.Skipped, ClusterCreated.String())
	}
	return data
}

func stepTiming(name string, d time.Duration) report.StepTiming {
	return report.StepTiming{Name: name, Duration: d}
}
