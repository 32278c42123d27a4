package migration

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
)

// resolve reads every identifier the later steps depend on. Nothing is
// modified, so an abort here leaves both accounts untouched.
func (m *Migrator) resolve(ctx context.Context, run *Run) error {
	logger := run.logger("resolve")

	var err error
	if run.SourceAccountId, err = m.Source.AccountId(ctx); err != nil {
		return err
	}
	if run.TargetAccountId, err = m.Target.AccountId(ctx); err != nil {
		return err
	}

	sourceOutputs, err := m.sourceStacks.Outputs(ctx, m.Conf.Source.StackName)
	if err != nil {
		return err
	}
	clusterId, err := requireOutput(sourceOutputs, m.Conf.Source.StackName, common.OutputRedisClusterId, m.Source.Name)
	if err != nil {
		return err
	}
	if run.ExportBucket, err = requireOutput(sourceOutputs, m.Conf.Source.StackName, common.OutputExportBucketName, m.Source.Name); err != nil {
		return err
	}

	targetOutputs, err := m.targetStacks.Outputs(ctx, m.Conf.Target.SetupStackName)
	if err != nil {
		return err
	}
	if run.ImportBucket, err = requireOutput(targetOutputs, m.Conf.Target.SetupStackName, common.OutputImportBucketName, m.Target.Name); err != nil {
		return err
	}

	run.TargetSecurityGroupId = targetOutputs[common.OutputSecurityGroupId]
	run.TargetSubnetIds = targetOutputs[common.OutputSubnetIds]
	if run.TargetSecurityGroupId == "" || run.TargetSubnetIds == "" {
		logger.Warnf("Stack %v does not export %v and %v, the target cluster uses the template defaults.",
			m.Conf.Target.SetupStackName, common.OutputSecurityGroupId, common.OutputSubnetIds)
	}

	run.TargetCanonicalId = targetOutputs[common.OutputCanonicalUserId]
	if run.TargetCanonicalId == "" {
		logger.Debugf("Stack %v has no %v output, asking S3 for the canonical user id.",
			m.Conf.Target.SetupStackName, common.OutputCanonicalUserId)
		if run.TargetCanonicalId, err = m.Target.CanonicalUserId(ctx); err != nil {
			return err
		}
	}

	if run.SourceCluster, err = m.describeSourceCluster(ctx, clusterId); err != nil {
		return err
	}

	logger.Infof("Source cluster %v (%v, %v, %v shards), export bucket %v, import bucket %v.",
		run.SourceCluster.Id, run.SourceCluster.NodeType, run.SourceCluster.Status, run.SourceCluster.Shards,
		run.ExportBucket, run.ImportBucket)
	return nil
}

func requireOutput(outputs map[string]string, stackName string, key string, account common.Account) (string, error) {
	value := outputs[key]
	if value == "" {
		return "", common.NotFound("output %v of stack %v in %v account", key, stackName, account)
	}
	return value, nil
}

func (m *Migrator) describeSourceCluster(ctx context.Context, id string) (ClusterDescriptor, error) {
	d := ClusterDescriptor{Id: id, Shards: 1}

	if m.Conf.Source.ClusterKind == config.ClusterKindCacheCluster {
		out, err := m.Source.ElastiCache.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
			CacheClusterId: aws.String(id),
		})
		if err != nil {
			if awsclient.IsErrorCode(err, "CacheClusterNotFound", "CacheClusterNotFoundFault") {
				return d, common.NotFound("cache cluster %v in %v account", id, m.Source.Name)
			}
			return d, fmt.Errorf("could not describe cache cluster %v: %w", id, err)
		}
		if len(out.CacheClusters) == 0 {
			return d, common.NotFound("cache cluster %v in %v account", id, m.Source.Name)
		}
		c := out.CacheClusters[0]
		d.NodeType = aws.ToString(c.CacheNodeType)
		d.EngineVersion = aws.ToString(c.EngineVersion)
		d.Status = aws.ToString(c.CacheClusterStatus)
		return d, nil
	}

	out, err := m.Source.ElastiCache.DescribeReplicationGroups(ctx, &elasticache.DescribeReplicationGroupsInput{
		ReplicationGroupId: aws.String(id),
	})
	if err != nil {
		if awsclient.IsErrorCode(err, "ReplicationGroupNotFoundFault") {
			return d, common.NotFound("replication group %v in %v account", id, m.Source.Name)
		}
		return d, fmt.Errorf("could not describe replication group %v: %w", id, err)
	}
	if len(out.ReplicationGroups) == 0 {
		return d, common.NotFound("replication group %v in %v account", id, m.Source.Name)
	}
	g := out.ReplicationGroups[0]
	d.NodeType = aws.ToString(g.CacheNodeType)
	d.Status = aws.ToString(g.Status)
	if len(g.NodeGroups) > 1 {
		d.Shards = len(g.NodeGroups)
	}
	return d, nil
}
