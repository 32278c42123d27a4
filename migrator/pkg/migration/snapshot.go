package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/poll"
)

// snapshot creates a snapshot of the source cluster and waits until it is
// available, or takes the configured existing snapshot as is.
func (m *Migrator) snapshot(ctx context.Context, run *Run) error {
	logger := run.logger("snapshot")

	if !m.Conf.Snapshot.CreateNew {
		run.SnapshotName = m.Conf.Snapshot.ExistingName
		run.SnapshotReused = true
		logger.Infof("Using existing snapshot %v.", run.SnapshotName)
		return nil
	}

	name := fmt.Sprintf("migration-%v", m.Now().Format(SnapshotTimestampFormat))
	input := &elasticache.CreateSnapshotInput{
		SnapshotName: aws.String(name),
		Tags:         snapshotTags(run.tags(common.PurposeMigration)),
	}
	if m.Conf.Source.ClusterKind == config.ClusterKindCacheCluster {
		input.CacheClusterId = aws.String(run.SourceCluster.Id)
	} else {
		input.ReplicationGroupId = aws.String(run.SourceCluster.Id)
	}

	logger.Infof("Creating snapshot %v of %v.", name, run.SourceCluster.Id)
	if _, err := m.Source.ElastiCache.CreateSnapshot(ctx, input); err != nil {
		return fmt.Errorf("could not create snapshot %v of %v: %w", name, run.SourceCluster.Id, err)
	}
	run.SnapshotName = name

	return m.waitForSnapshot(ctx, run, name)
}

// waitForSnapshot polls the snapshot status. available ends the wait, failed
// and not-found abort at once, any other known status keeps polling.
func (m *Migrator) waitForSnapshot(ctx context.Context, run *Run, name string) error {
	logger := run.logger("snapshot")
	conf := m.Conf.Snapshot
	opts := m.pollOptions("snapshot "+name, conf.PollInterval, conf.MaxAttempts, 0)

	attempts, err := poll.Until(ctx, opts, func(ctx context.Context, attempt int) (bool, error) {
		m.Metrics.IncPollAttempts("snapshot")
		status, err := m.snapshotStatus(ctx, name)
		if err != nil {
			return false, err
		}
		logger.Infof("Snapshot %v is %v (check %v of %v).", name, status, attempt, conf.MaxAttempts)

		switch status {
		case SnapshotAvailable:
			return true, nil
		case SnapshotFailed:
			return false, common.ProviderFailure("snapshot %v failed", name)
		case SnapshotNotFound:
			return false, common.NotFound("snapshot %v", name)
		default:
			return false, nil
		}
	})
	if err != nil {
		return fmt.Errorf("waiting for snapshot %v: %w", name, err)
	}
	logger.Infof("Snapshot %v available after %v checks.", name, attempts)
	return nil
}

func (m *Migrator) snapshotStatus(ctx context.Context, name string) (SnapshotStatus, error) {
	out, err := m.Source.ElastiCache.DescribeSnapshots(ctx, &elasticache.DescribeSnapshotsInput{
		SnapshotName: aws.String(name),
	})
	if err != nil {
		if awsclient.IsErrorCode(err, "SnapshotNotFoundFault") {
			return SnapshotNotFound, nil
		}
		return SnapshotUndefined, fmt.Errorf("could not describe snapshot %v: %w", name, err)
	}
	if len(out.Snapshots) == 0 {
		return SnapshotNotFound, nil
	}
	return ParseSnapshotStatus(aws.ToString(out.Snapshots[0].SnapshotStatus))
}

func snapshotTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		result = append(result, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}
