package cleanup

import (
	"context"
	"errors"
	"testing"

	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient/awstest"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validationTags = map[string]string{common.TagPurpose: common.PurposeValidation}

type fixture struct {
	recorder *awstest.Recorder
	source   *awstest.Account
	target   *awstest.Account
	conf     *config.Config
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{recorder: awstest.NewRecorder()}
	f.source = awstest.NewAccount(common.SourceAccount, "111111111111", "canonical-source", f.recorder)
	f.target = awstest.NewAccount(common.TargetAccount, "222222222222", "canonical-target", f.recorder)

	f.source.CloudFormation.AddStack("redis-source", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputRedisClusterId: "c1", common.OutputExportBucketName: "b1"}, nil)
	f.source.S3.AddBucket("b1")

	f.target.CloudFormation.AddStack("migration-setup", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputImportBucketName: "b2"}, nil)
	f.target.CloudFormation.AddStack("redis-target", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputRedisClusterId: "t1"}, validationTags)
	f.target.CloudFormation.AddStack("redis-validator", cfntypes.StackStatusCreateComplete, nil, validationTags)
	f.target.S3.AddBucket("b2")
	f.target.Lambda.AddFunction("redis-validator-fn", validationTags, nil)
	f.target.Lambda.AddFunction("orders-api", nil, nil)
	f.target.IAM.AddRole("redis-validator-role", validationTags,
		[]string{"vpc-access"}, []string{"arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"}, []string{"validator-profile"})
	f.target.IAM.AddRole("orders-api-role", nil, nil, nil, nil)

	f.conf = config.New()
	f.conf.Source.Profile = "source"
	f.conf.Source.Region = "us-east-1"
	f.conf.Source.StackName = "redis-source"
	f.conf.Target.Profile = "target"
	f.conf.Target.Region = "us-east-1"
	f.conf.Target.SetupStackName = "migration-setup"
	f.conf.Target.ClusterStackName = "redis-target"
	f.conf.NodeType = "cache.t3.small"
	f.conf.OutputDir = t.TempDir()
	require.Nil(t, f.conf.Validate())
	return f
}

func (f *fixture) cleaner(opts Options) *Cleaner {
	return NewCleaner(f.conf, f.source.Client(), f.target.Client(), nil, nil, opts)
}

func TestCleaner_DryRunMakesNoChanges(t *testing.T) {
	f := newFixture(t)

	result, err := f.cleaner(Options{DryRun: true}).Run(context.Background())
	require.Nil(t, err)
	require.True(t, result.DryRun)
	require.Equal(t, 0, f.recorder.Count(awstest.Destructive...))
	require.Equal(t, 0, f.recorder.Count(awstest.Mutating...))

	var planned []string
	for _, a := range result.Actions {
		assert.Equal(t, OutcomePlanned, a.Outcome)
		planned = append(planned, a.Kind+":"+a.Name)
	}
	assert.Equal(t, []string{
		"lifecycle:b1",
		"lifecycle:b2",
		"stack:migration-setup",
		"stack:redis-validator",
		"function:redis-validator-fn",
		"role:redis-validator-role",
	}, planned)
}

func TestCleaner_DryRunFromConfig(t *testing.T) {
	f := newFixture(t)
	f.conf.Cleanup.DryRun = true

	_, err := f.cleaner(Options{}).Run(context.Background())
	require.Nil(t, err)
	require.Equal(t, 0, f.recorder.Count(awstest.Destructive...))
}

func TestCleaner_ForceRemovesEverything(t *testing.T) {
	f := newFixture(t)

	result, err := f.cleaner(Options{Force: true}).Run(context.Background())
	require.Nil(t, err)
	require.True(t, result.Succeeded())
	require.Empty(t, result.Failures())

	lifecycle := f.target.S3.Lifecycle("b2")
	require.NotNil(t, lifecycle)
	require.Len(t, lifecycle.Rules, 1)
	assert.Equal(t, int32(30), *lifecycle.Rules[0].Expiration.Days)
	require.NotNil(t, f.source.S3.Lifecycle("b1"))

	assert.False(t, f.target.CloudFormation.HasStack("migration-setup"))
	assert.False(t, f.target.CloudFormation.HasStack("redis-validator"))
	assert.False(t, f.target.Lambda.HasFunction("redis-validator-fn"))
	assert.False(t, f.target.IAM.HasRole("redis-validator-role"))

	assert.True(t, f.source.CloudFormation.HasStack("redis-source"))
	assert.True(t, f.target.CloudFormation.HasStack("redis-target"))
	assert.True(t, f.target.Lambda.HasFunction("orders-api"))
	assert.True(t, f.target.IAM.HasRole("orders-api-role"))
}

func TestCleaner_PhaseOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.cleaner(Options{Force: true}).Run(context.Background())
	require.Nil(t, err)
	require.Equal(t, []string{
		"source:S3.PutBucketLifecycleConfiguration(b1)",
		"target:S3.PutBucketLifecycleConfiguration(b2)",
		"target:CloudFormation.DeleteStack(migration-setup)",
		"target:CloudFormation.DeleteStack(redis-validator)",
		"target:Lambda.DeleteFunction(redis-validator-fn)",
		"target:IAM.DeleteRolePolicy(redis-validator-role,vpc-access)",
		"target:IAM.DetachRolePolicy(redis-validator-role,arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole)",
		"target:IAM.RemoveRoleFromInstanceProfile(redis-validator-role,validator-profile)",
		"target:IAM.DeleteRole(redis-validator-role)",
	}, f.recorder.Operations(awstest.Destructive...))
}

func TestCleaner_ProtectedStacksNeverDeleted(t *testing.T) {
	f := newFixture(t)
	f.source.CloudFormation.AddStack("redis-source", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputExportBucketName: "b1"}, validationTags)
	f.conf.Cleanup.MatchMode = config.MatchModeName
	f.conf.Cleanup.Patterns = []string{"redis"}

	_, err := f.cleaner(Options{Force: true}).Run(context.Background())
	require.Nil(t, err)
	assert.True(t, f.source.CloudFormation.HasStack("redis-source"))
	assert.True(t, f.target.CloudFormation.HasStack("redis-target"))
	assert.False(t, f.target.CloudFormation.HasStack("redis-validator"))
}

func TestNameMatcher(t *testing.T) {
	conf := config.New()
	conf.Source.StackName = "redis-source"
	conf.Target.ClusterStackName = "redis-target"
	conf.Cleanup.MatchMode = config.MatchModeName
	conf.Cleanup.Patterns = []string{"Validator", "redis-test"}
	m := NewMatcher(conf)

	require.False(t, m.NeedsTags())
	assert.True(t, m.Match("redis-validator-test", nil))
	assert.True(t, m.Match("my-redis-test-stack", nil))
	assert.False(t, m.Match("redis-production", nil))
	assert.False(t, m.Match("redis-target", nil))
}

func TestNameMatcher_DefaultPatterns(t *testing.T) {
	conf := config.New()
	conf.Cleanup.MatchMode = config.MatchModeName
	m := NewMatcher(conf)

	assert.True(t, m.Match("migration-test-loader", nil))
	assert.False(t, m.Match("billing", nil))
}

func TestTagMatcher(t *testing.T) {
	conf := config.New()
	conf.Source.StackName = "redis-source"
	m := NewMatcher(conf)

	require.True(t, m.NeedsTags())
	assert.True(t, m.Match("anything", validationTags))
	assert.False(t, m.Match("redis-validator", map[string]string{common.TagPurpose: common.PurposeMigration}))
	assert.False(t, m.Match("redis-validator", nil))
	assert.False(t, m.Match("redis-source", validationTags))
}

func TestCleaner_ConfirmationDeclined(t *testing.T) {
	f := newFixture(t)
	var asked string
	c := f.cleaner(Options{})
	c.Confirmer = ConfirmFunc(func(message string) (bool, error) {
		asked = message
		return false, nil
	})

	_, err := c.Run(context.Background())
	require.True(t, errors.Is(err, common.ErrCancelled))
	require.NotEmpty(t, asked)
	require.Equal(t, 0, f.recorder.Count(awstest.Destructive...))
}

func TestCleaner_NoConfirmerWithoutForce(t *testing.T) {
	f := newFixture(t)

	_, err := f.cleaner(Options{}).Run(context.Background())
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
	require.Equal(t, 0, f.recorder.Count(awstest.Destructive...))
}

func TestCleaner_SourceOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.cleaner(Options{Force: true, SourceOnly: true}).Run(context.Background())
	require.Nil(t, err)
	require.Equal(t, []string{"source:S3.PutBucketLifecycleConfiguration(b1)"},
		f.recorder.Operations(awstest.Destructive...))
	assert.True(t, f.target.CloudFormation.HasStack("redis-validator"))
}

func TestCleaner_SourceAndTargetOnlyConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.cleaner(Options{Force: true, SourceOnly: true, TargetOnly: true}).Run(context.Background())
	require.NotNil(t, err)
	require.Empty(t, f.recorder.Calls())
}

func TestCleaner_FailuresAreReported(t *testing.T) {
	f := newFixture(t)
	f.target.S3.LifecycleError = errors.New("access denied")

	result, err := f.cleaner(Options{Force: true}).Run(context.Background())
	require.NotNil(t, err)
	require.False(t, result.MigrationOK)
	require.True(t, result.ValidationOK)
	require.Len(t, result.Failures(), 1)
	assert.Equal(t, "b2", result.Failures()[0].Name)
	assert.False(t, f.target.CloudFormation.HasStack("redis-validator"))
}

func TestCleaner_NothingToDo(t *testing.T) {
	f := newFixture(t)
	f.conf.Target.SetupStackName = ""
	f.conf.Source.StackName = ""

	c := NewCleaner(f.conf, f.source.Client(), f.target.Client(), nil, nil, Options{TargetOnly: true})
	c.matcher = &NameMatcher{Patterns: []string{"nothing-matches-this"}}
	result, err := c.Run(context.Background())
	require.Nil(t, err)
	require.Empty(t, result.Actions)
}
