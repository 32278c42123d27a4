package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/poll"
)

const rdbSuffix = ".rdb"

// export copies the snapshot into the export bucket and waits for the RDB
// file of every shard to show up, bounded by export.timeout.
func (m *Migrator) export(ctx context.Context, run *Run) error {
	logger := run.logger("export")

	logger.Infof("Exporting snapshot %v to bucket %v.", run.SnapshotName, run.ExportBucket)
	_, err := m.Source.ElastiCache.CopySnapshot(ctx, &elasticache.CopySnapshotInput{
		SourceSnapshotName: aws.String(run.SnapshotName),
		TargetSnapshotName: aws.String(run.SnapshotName),
		TargetBucket:       aws.String(run.ExportBucket),
	})
	if err != nil {
		return fmt.Errorf("could not export snapshot %v to %v: %w", run.SnapshotName, run.ExportBucket, err)
	}

	// A sharded replication group exports one file per node group.
	expected := max(run.SourceCluster.Shards, 1)
	conf := m.Conf.Export
	opts := m.pollOptions("export "+run.SnapshotName, conf.PollInterval, 0, conf.Timeout)
	_, err = poll.Until(ctx, opts, func(ctx context.Context, attempt int) (bool, error) {
		m.Metrics.IncPollAttempts("export")
		files, err := m.findExportFiles(ctx, run.ExportBucket, run.SnapshotName)
		if err != nil {
			return false, err
		}
		if len(files) < expected {
			logger.Infof("Waiting for export of %v to appear in %v: %v of %v RDB files.",
				run.SnapshotName, run.ExportBucket, len(files), expected)
			return false, nil
		}
		run.ExportFiles = files
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for export of %v: %w", run.SnapshotName, err)
	}

	logger.Infof("Export complete: %v.", strings.Join(run.ExportFiles, ", "))
	return nil
}

// findExportFiles lists the RDB files exported for snapshot, sorted by key.
func (m *Migrator) findExportFiles(ctx context.Context, bucket string, snapshot string) ([]string, error) {
	var files []string
	paginator := s3.NewListObjectsV2Paginator(m.Source.S3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(snapshot),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list bucket %v: %w", bucket, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if strings.HasSuffix(key, rdbSuffix) {
				files = append(files, key)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
