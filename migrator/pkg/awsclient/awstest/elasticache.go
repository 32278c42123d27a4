package awstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticache/types"
)

// ElastiCacheServer implements an ElastiCache simulator for use in testing.
type ElastiCacheServer struct {
	mu       sync.Mutex
	account  string
	recorder *Recorder

	snapshots         map[string]*types.Snapshot
	statusSequence    map[string][]string
	replicationGroups map[string]*types.ReplicationGroup
	cacheClusters     map[string]*types.CacheCluster

	// OnCopySnapshot runs after a successful CopySnapshot, e.g. to drop the
	// exported RDB file into the fake S3 bucket.
	OnCopySnapshot func(input *elasticache.CopySnapshotInput)
	// CreateSnapshotError, when set, is returned by CreateSnapshot.
	CreateSnapshotError error
}

func NewElastiCacheServer(account string, recorder *Recorder) *ElastiCacheServer {
	return &ElastiCacheServer{
		account:           account,
		recorder:          recorder,
		snapshots:         make(map[string]*types.Snapshot),
		statusSequence:    make(map[string][]string),
		replicationGroups: make(map[string]*types.ReplicationGroup),
		cacheClusters:     make(map[string]*types.CacheCluster),
	}
}

// SetSnapshotStatuses sets the statuses returned by successive DescribeSnapshots
// calls for name. The last status repeats once the sequence is exhausted.
func (e *ElastiCacheServer) SetSnapshotStatuses(name string, statuses ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusSequence[name] = statuses
}

// AddSnapshot registers an existing snapshot.
func (e *ElastiCacheServer) AddSnapshot(name string, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots[name] = &types.Snapshot{
		SnapshotName:   aws.String(name),
		SnapshotStatus: aws.String(status),
	}
}

func (e *ElastiCacheServer) AddReplicationGroup(id string, nodeType string, status string) {
	e.AddShardedReplicationGroup(id, nodeType, status, 1)
}

// AddShardedReplicationGroup registers a replication group with shards node
// groups named 0001, 0002 and so on.
func (e *ElastiCacheServer) AddShardedReplicationGroup(id string, nodeType string, status string, shards int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	groups := make([]types.NodeGroup, 0, shards)
	for i := 1; i <= shards; i++ {
		groups = append(groups, types.NodeGroup{NodeGroupId: aws.String(fmt.Sprintf("%04d", i))})
	}
	e.replicationGroups[id] = &types.ReplicationGroup{
		ReplicationGroupId: aws.String(id),
		CacheNodeType:      aws.String(nodeType),
		Status:             aws.String(status),
		NodeGroups:         groups,
	}
}

func (e *ElastiCacheServer) AddCacheCluster(id string, nodeType string, engineVersion string, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cacheClusters[id] = &types.CacheCluster{
		CacheClusterId:     aws.String(id),
		CacheNodeType:      aws.String(nodeType),
		EngineVersion:      aws.String(engineVersion),
		CacheClusterStatus: aws.String(status),
	}
}

func (e *ElastiCacheServer) CreateSnapshot(
	ctx context.Context,
	input *elasticache.CreateSnapshotInput,
	opts ...func(*elasticache.Options),
) (*elasticache.CreateSnapshotOutput, error) {
	source := aws.ToString(input.ReplicationGroupId)
	if source == "" {
		source = aws.ToString(input.CacheClusterId)
	}
	e.recorder.record(e.account, "ElastiCache.CreateSnapshot", source, aws.ToString(input.SnapshotName))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.CreateSnapshotError != nil {
		return nil, e.CreateSnapshotError
	}

	name := aws.ToString(input.SnapshotName)
	if _, exists := e.snapshots[name]; exists {
		return nil, &types.SnapshotAlreadyExistsFault{Message: aws.String(fmt.Sprintf("snapshot %v already exists", name))}
	}

	snapshot := &types.Snapshot{
		SnapshotName:       input.SnapshotName,
		SnapshotStatus:     aws.String("creating"),
		ReplicationGroupId: input.ReplicationGroupId,
		CacheClusterId:     input.CacheClusterId,
	}
	e.snapshots[name] = snapshot
	return &elasticache.CreateSnapshotOutput{Snapshot: snapshot}, nil
}

func (e *ElastiCacheServer) DescribeSnapshots(
	ctx context.Context,
	input *elasticache.DescribeSnapshotsInput,
	opts ...func(*elasticache.Options),
) (*elasticache.DescribeSnapshotsOutput, error) {
	name := aws.ToString(input.SnapshotName)
	e.recorder.record(e.account, "ElastiCache.DescribeSnapshots", name)

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot, exists := e.snapshots[name]
	if !exists {
		return nil, &types.SnapshotNotFoundFault{Message: aws.String(fmt.Sprintf("snapshot %v not found", name))}
	}

	if seq := e.statusSequence[name]; len(seq) > 0 {
		snapshot.SnapshotStatus = aws.String(seq[0])
		if len(seq) > 1 {
			e.statusSequence[name] = seq[1:]
		}
	}

	return &elasticache.DescribeSnapshotsOutput{Snapshots: []types.Snapshot{*snapshot}}, nil
}

func (e *ElastiCacheServer) CopySnapshot(
	ctx context.Context,
	input *elasticache.CopySnapshotInput,
	opts ...func(*elasticache.Options),
) (*elasticache.CopySnapshotOutput, error) {
	e.recorder.record(e.account, "ElastiCache.CopySnapshot",
		aws.ToString(input.SourceSnapshotName), aws.ToString(input.TargetBucket))

	e.mu.Lock()
	snapshot, exists := e.snapshots[aws.ToString(input.SourceSnapshotName)]
	e.mu.Unlock()
	if !exists {
		return nil, &types.SnapshotNotFoundFault{Message: input.SourceSnapshotName}
	}

	if e.OnCopySnapshot != nil {
		e.OnCopySnapshot(input)
	}

	copied := *snapshot
	copied.SnapshotName = input.TargetSnapshotName
	return &elasticache.CopySnapshotOutput{Snapshot: &copied}, nil
}

func (e *ElastiCacheServer) DescribeReplicationGroups(
	ctx context.Context,
	input *elasticache.DescribeReplicationGroupsInput,
	opts ...func(*elasticache.Options),
) (*elasticache.DescribeReplicationGroupsOutput, error) {
	id := aws.ToString(input.ReplicationGroupId)
	e.recorder.record(e.account, "ElastiCache.DescribeReplicationGroups", id)

	e.mu.Lock()
	defer e.mu.Unlock()
	group, exists := e.replicationGroups[id]
	if !exists {
		return nil, &types.ReplicationGroupNotFoundFault{Message: aws.String(id)}
	}
	return &elasticache.DescribeReplicationGroupsOutput{ReplicationGroups: []types.ReplicationGroup{*group}}, nil
}

func (e *ElastiCacheServer) DescribeCacheClusters(
	ctx context.Context,
	input *elasticache.DescribeCacheClustersInput,
	opts ...func(*elasticache.Options),
) (*elasticache.DescribeCacheClustersOutput, error) {
	id := aws.ToString(input.CacheClusterId)
	e.recorder.record(e.account, "ElastiCache.DescribeCacheClusters", id)

	e.mu.Lock()
	defer e.mu.Unlock()
	cluster, exists := e.cacheClusters[id]
	if !exists {
		return nil, &types.CacheClusterNotFoundFault{Message: aws.String(id)}
	}
	return &elasticache.DescribeCacheClustersOutput{CacheClusters: []types.CacheCluster{*cluster}}, nil
}
