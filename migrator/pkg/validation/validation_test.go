package validation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient/awstest"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/templates"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondWith(keyCount int64) awstest.InvokeFunc {
	return func(payload []byte) ([]byte, error) {
		return json.Marshal(validator.NewResponse(&validator.Summary{
			Status:           validator.StatusSuccess,
			Endpoint:         "t1.cache.amazonaws.com:6379",
			Connection:       "connected",
			Ping:             "PONG",
			KeyCount:         keyCount,
			SampleKeys:       []string{},
			Threshold:        40,
			MigrationSuccess: keyCount >= 40,
		}))
	}
}

type fixture struct {
	recorder *awstest.Recorder
	target   *awstest.Account
	conf     *config.Config
}

func newFixture() *fixture {
	f := &fixture{recorder: awstest.NewRecorder()}
	f.target = awstest.NewAccount(common.TargetAccount, "222222222222", "canonical-target", f.recorder)
	f.target.CloudFormation.AddStack("redis-target", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputRedisEndpoint: "t1.cache.amazonaws.com"}, nil)

	f.target.CloudFormation.AddStack("migration-setup", cfntypes.StackStatusCreateComplete, map[string]string{
		common.OutputImportBucketName: "b2",
		common.OutputSecurityGroupId:  "sg-1",
		common.OutputSubnetIds:        "subnet-a,subnet-b",
	}, nil)

	f.conf = config.New()
	f.conf.Target.SetupStackName = "migration-setup"
	f.conf.Target.ClusterStackName = "redis-target"
	return f
}

func (f *fixture) validation() *Validation {
	v := NewValidation(f.conf, f.target.Client())
	v.NewRunId = func() string { return "run-1" }
	return v
}

func TestValidation_Passes(t *testing.T) {
	f := newFixture()
	f.conf.Validation.FunctionName = "redis-validator-fn"
	f.target.Lambda.AddFunction("redis-validator-fn", nil, respondWith(45))

	summary, err := f.validation().Run(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int64(45), summary.KeyCount)
	assert.True(t, summary.MigrationSuccess)
	assert.Equal(t, []string{"target:Lambda.Invoke(redis-validator-fn)"}, f.recorder.Operations(awstest.Mutating...))
}

func TestValidation_TooFewKeys(t *testing.T) {
	f := newFixture()
	f.conf.Validation.FunctionName = "redis-validator-fn"
	f.target.Lambda.AddFunction("redis-validator-fn", nil, respondWith(10))

	summary, err := f.validation().Run(context.Background())
	require.True(t, errors.Is(err, common.ErrValidationFailed))
	require.NotNil(t, summary)
	assert.False(t, summary.MigrationSuccess)
}

func TestValidation_FunctionNameFromStackOutput(t *testing.T) {
	f := newFixture()
	f.target.CloudFormation.AddStack(f.conf.Validation.StackName, cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputValidatorFunctionName: "from-output"}, nil)
	f.target.Lambda.AddFunction("from-output", nil, respondWith(40))

	_, err := f.validation().Run(context.Background())
	require.Nil(t, err)
}

func TestValidation_MissingFunctionName(t *testing.T) {
	f := newFixture()

	_, err := f.validation().Run(context.Background())
	require.True(t, errors.Is(err, common.ErrResourceNotFound))
	require.Equal(t, 0, f.recorder.Count(awstest.Mutating...))
}

func TestValidation_DeploysTaggedStack(t *testing.T) {
	f := newFixture()
	f.conf.Validation.Deploy = true
	f.conf.Validation.Parameters = map[string]string{"CodeBucket": "artifacts"}
	f.target.CloudFormation.SetOutputsOnCreate(f.conf.Validation.StackName,
		map[string]string{common.OutputValidatorFunctionName: "deployed-fn"})
	f.target.Lambda.AddFunction("deployed-fn", nil, respondWith(50))

	_, err := f.validation().Run(context.Background())
	require.Nil(t, err)

	require.Equal(t, []string{
		"target:CloudFormation.CreateStack(" + f.conf.Validation.StackName + ")",
		"target:Lambda.Invoke(deployed-fn)",
	}, f.recorder.Operations(awstest.Mutating...))

	params := map[string]string{}
	for _, p := range f.target.CloudFormation.Parameters[f.conf.Validation.StackName] {
		params[*p.ParameterKey] = *p.ParameterValue
	}
	assert.Equal(t, map[string]string{
		"CodeBucket":      "artifacts",
		"RedisEndpoint":   "t1.cache.amazonaws.com",
		"KeyThreshold":    "40",
		"SubnetIds":       "subnet-a,subnet-b",
		"SecurityGroupId": "sg-1",
	}, params)

	spec, err := templates.ParseParameters(templates.Validator)
	require.Nil(t, err)
	assert.Empty(t, spec.Missing(params))

	tags, err := stack.NewInspector(f.target.Client()).Tags(context.Background(), f.conf.Validation.StackName)
	require.Nil(t, err)
	assert.Equal(t, common.PurposeValidation, tags[common.TagPurpose])
	assert.Equal(t, "run-1", tags[common.TagRunId])
}

func deployedParameters(f *fixture) map[string]string {
	params := map[string]string{}
	for _, p := range f.target.CloudFormation.Parameters[f.conf.Validation.StackName] {
		params[*p.ParameterKey] = *p.ParameterValue
	}
	return params
}

func TestValidation_DeployUsesConfiguredCodeAndOperatorNetwork(t *testing.T) {
	f := newFixture()
	f.conf.Validation.Deploy = true
	f.conf.Validation.CodeBucket = "redis-migrate-artifacts"
	f.conf.Validation.CodeKey = "validator-1.2.zip"
	f.conf.Validation.Parameters = map[string]string{"SubnetIds": "subnet-operator"}
	f.target.CloudFormation.SetOutputsOnCreate(f.conf.Validation.StackName,
		map[string]string{common.OutputValidatorFunctionName: "deployed-fn"})
	f.target.Lambda.AddFunction("deployed-fn", nil, respondWith(50))

	_, err := f.validation().Run(context.Background())
	require.Nil(t, err)

	params := deployedParameters(f)
	assert.Equal(t, "redis-migrate-artifacts", params["CodeBucket"])
	assert.Equal(t, "validator-1.2.zip", params["CodeKey"])
	assert.Equal(t, "subnet-operator", params["SubnetIds"])
	assert.Equal(t, "sg-1", params["SecurityGroupId"])
}

func TestValidation_DeployWithoutCodeBucket(t *testing.T) {
	f := newFixture()
	f.conf.Validation.Deploy = true

	_, err := f.validation().Run(context.Background())
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
	require.Contains(t, err.Error(), "CodeBucket")
	require.Equal(t, 0, f.recorder.Count(awstest.Mutating...))
}

func TestValidation_DeployWithoutSetupNetwork(t *testing.T) {
	f := newFixture()
	f.conf.Validation.Deploy = true
	f.conf.Validation.CodeBucket = "artifacts"
	f.target.CloudFormation.AddStack("migration-setup", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputImportBucketName: "b2"}, nil)

	_, err := f.validation().Run(context.Background())
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
	require.Contains(t, err.Error(), "SecurityGroupId, SubnetIds")
	require.Equal(t, 0, f.recorder.Count("CloudFormation.CreateStack"))
}

func TestValidation_FunctionError(t *testing.T) {
	f := newFixture()
	f.conf.Validation.FunctionName = "broken"
	f.target.Lambda.AddFunction("broken", nil, func(payload []byte) ([]byte, error) {
		return nil, errors.New("task timed out")
	})

	_, err := f.validation().Run(context.Background())
	require.True(t, errors.Is(err, common.ErrProviderFailure))
	require.Contains(t, err.Error(), "task timed out")
}

func TestReportSection(t *testing.T) {
	require.Nil(t, ReportSection(nil))
	section := ReportSection(&validator.Summary{Status: "success", KeyCount: 45, Threshold: 40, MigrationSuccess: true})
	require.True(t, section.Success)
	require.Equal(t, int64(45), section.KeyCount)
}
