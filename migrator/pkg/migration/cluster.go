package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/report"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/templates"
)

const (
	ParameterNodeType         = "NodeType"
	ParameterS3ImportPath     = "S3ImportPath"
	ParameterEngineVersion    = "EngineVersion"
	ParameterShardCount       = "ShardCount"
	ParameterSecurityGroupIds = "SecurityGroupIds"
	ParameterSubnetIds        = "SubnetIds"

	StackModeCreated = "created"
	StackModeUpdated = "updated"
	StackModeSkipped = "skipped"
)

// createCluster deploys the target cluster stack seeded from the imported
// files. An existing stack is handled according to target.on_existing_stack.
func (m *Migrator) createCluster(ctx context.Context, run *Run) error {
	logger := run.logger("cluster")
	conf := m.Conf.Target
	run.TargetStack = conf.ClusterStackName

	exists, err := m.targetStacks.Exists(ctx, conf.ClusterStackName)
	if err != nil {
		return err
	}

	if exists && conf.OnExistingStack == config.OnExistingStackFail {
		return common.MissingPrerequisite("target stack %v already exists; remove it or set target.on_existing_stack to skip or update",
			conf.ClusterStackName)
	}

	if exists && conf.OnExistingStack == config.OnExistingStackSkip {
		logger.Warnf("Target stack %v already exists, leaving it unchanged. "+
			"The imported data is NOT loaded into it.", conf.ClusterStackName)
		run.TargetStackMode = StackModeSkipped
		m.readTargetOutputs(ctx, run)
		return nil
	}

	body, err := templates.Load(conf.TemplateFile, templates.TargetCluster)
	if err != nil {
		return err
	}
	spec, err := templates.ParseParameters(body)
	if err != nil {
		return err
	}
	params := m.clusterParameters(run, spec)
	if missing := spec.Missing(params); len(missing) > 0 {
		return common.MissingPrerequisite("no value for parameters %v of the target cluster template; set them in target.parameters",
			strings.Join(missing, ", "))
	}
	t := &stack.Template{
		Name:       conf.ClusterStackName,
		Body:       body,
		Parameters: params,
		Tags:       run.tags(common.PurposeTarget),
	}

	if exists {
		if err = m.deployer.Update(ctx, t, conf.WaitTimeout); err != nil {
			return err
		}
		run.TargetStackMode = StackModeUpdated
	} else {
		if err = m.deployer.Create(ctx, t, conf.WaitTimeout); err != nil {
			return err
		}
		run.TargetStackMode = StackModeCreated
	}

	m.readTargetOutputs(ctx, run)
	return nil
}

// clusterParameters fills the template parameters. The network and shard
// parameters are only passed when the template declares them, and values from
// target.parameters win over the setup stack outputs.
func (m *Migrator) clusterParameters(run *Run, spec *templates.ParameterSpec) map[string]string {
	params := make(map[string]string, len(m.Conf.Target.Parameters)+6)
	for k, v := range m.Conf.Target.Parameters {
		params[k] = v
	}
	params[ParameterNodeType] = m.Conf.NodeType
	params[ParameterS3ImportPath] = strings.Join(run.ImportPaths, ",")
	params[ParameterEngineVersion] = m.Conf.EngineVersion
	spec.SetIfDeclared(params, ParameterShardCount, strconv.Itoa(len(run.ImportPaths)))
	spec.SetIfDeclared(params, ParameterSecurityGroupIds, run.TargetSecurityGroupId)
	spec.SetIfDeclared(params, ParameterSubnetIds, run.TargetSubnetIds)
	return params
}

// readTargetOutputs records the new cluster id and endpoint. They only feed
// the report, so a missing output is a warning.
func (m *Migrator) readTargetOutputs(ctx context.Context, run *Run) {
	outputs, err := m.targetStacks.Outputs(ctx, run.TargetStack)
	if err != nil {
		run.logger("cluster").Warnf("Could not read outputs of %v: %v", run.TargetStack, err)
		return
	}
	run.TargetClusterId = outputs[common.OutputRedisClusterId]
	run.TargetEndpoint = outputs[common.OutputRedisEndpoint]
}

func (m *Migrator) writeReport(ctx context.Context, run *Run) error {
	run.FinishedAt = m.Now()
	data := run.reportData()
	data.SourceStack = m.Conf.Source.StackName
	path, err := report.Write(m.Conf.OutputDir, data)
	if err != nil {
		return err
	}
	run.ReportPath = path
	run.logger("report").Infof("Report written to %v.", path)
	return nil
}

// AttachValidation adds the validation outcome to a finished run and rewrites
// its report in place.
func (m *Migrator) AttachValidation(run *Run, v *report.Validation) error {
	if run.State() != Reported {
		return fmt.Errorf("run %v has no report to update", run.Id)
	}
	run.Validation = v
	data := run.reportData()
	data.SourceStack = m.Conf.Source.StackName
	path, err := report.Write(m.Conf.OutputDir, data)
	if err != nil {
		return err
	}
	run.ReportPath = path
	return nil
}
