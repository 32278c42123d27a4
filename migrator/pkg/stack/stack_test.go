package stack

import (
	"context"
	"errors"
	"testing"
	"time"

	cfntypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient/awstest"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeAccount() (*awstest.Account, *awstest.Recorder) {
	recorder := awstest.NewRecorder()
	return awstest.NewAccount(common.SourceAccount, "111111111111", "canonical-source", recorder), recorder
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("CREATE_COMPLETE")
	require.Nil(t, err)
	require.Equal(t, StatusCreateComplete, status)
	require.True(t, status.IsComplete())
	require.False(t, status.IsFailed())
	require.False(t, status.IsInProgress())

	status, err = ParseStatus("UPDATE_ROLLBACK_COMPLETE")
	require.Nil(t, err)
	require.True(t, status.IsFailed())

	status, err = ParseStatus("CREATE_IN_PROGRESS")
	require.Nil(t, err)
	require.True(t, status.IsInProgress())

	_, err = ParseStatus("SOMETHING_NEW")
	require.NotNil(t, err)
}

func TestInspector_Outputs(t *testing.T) {
	fake, _ := newFakeAccount()
	fake.CloudFormation.AddStack("redis-source", cfntypes.StackStatusCreateComplete,
		map[string]string{common.OutputRedisClusterId: "c1", common.OutputExportBucketName: "b1"},
		map[string]string{common.TagPurpose: common.PurposeMigration})

	inspector := NewInspector(fake.Client())
	ctx := context.Background()

	value, err := inspector.Output(ctx, "redis-source", common.OutputRedisClusterId)
	require.Nil(t, err)
	require.Equal(t, "c1", value)

	outputs, err := inspector.Outputs(ctx, "redis-source")
	require.Nil(t, err)
	require.Equal(t, map[string]string{"RedisClusterId": "c1", "ExportBucketName": "b1"}, outputs)

	_, err = inspector.Output(ctx, "redis-source", common.OutputImportBucketName)
	require.True(t, errors.Is(err, common.ErrResourceNotFound))

	_, err = inspector.Output(ctx, "missing", common.OutputRedisClusterId)
	require.True(t, errors.Is(err, common.ErrResourceNotFound))

	tags, err := inspector.Tags(ctx, "redis-source")
	require.Nil(t, err)
	require.Equal(t, common.PurposeMigration, tags[common.TagPurpose])
}

func TestInspector_Exists(t *testing.T) {
	fake, _ := newFakeAccount()
	fake.CloudFormation.AddStack("present", cfntypes.StackStatusUpdateComplete, nil, nil)
	inspector := NewInspector(fake.Client())

	exists, err := inspector.Exists(context.Background(), "present")
	require.Nil(t, err)
	require.True(t, exists)

	exists, err = inspector.Exists(context.Background(), "absent")
	require.Nil(t, err)
	require.False(t, exists)

	status, err := inspector.Status(context.Background(), "present")
	require.Nil(t, err)
	require.Equal(t, StatusUpdateComplete, status)
}

func TestInspector_List(t *testing.T) {
	fake, _ := newFakeAccount()
	fake.CloudFormation.AddStack("b-stack", cfntypes.StackStatusCreateComplete, nil, nil)
	fake.CloudFormation.AddStack("a-stack", cfntypes.StackStatusRollbackComplete, nil, nil)
	fake.CloudFormation.AddStack("gone", cfntypes.StackStatusDeleteComplete, nil, nil)

	stacks, err := NewInspector(fake.Client()).List(context.Background())
	require.Nil(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "a-stack", stacks[0].Name)
	assert.Equal(t, StatusRollbackComplete, stacks[0].Status)
	assert.Equal(t, "b-stack", stacks[1].Name)
}

func TestIsStackNotFound(t *testing.T) {
	require.True(t, IsStackNotFound(&smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id x does not exist"}))
	require.False(t, IsStackNotFound(&smithy.GenericAPIError{Code: "ValidationError", Message: "Template format error"}))
	require.False(t, IsStackNotFound(errors.New("does not exist")))
}

func TestDeployer_CreateAndDelete(t *testing.T) {
	fake, recorder := newFakeAccount()
	fake.CloudFormation.SetOutputsOnCreate("redis-target", map[string]string{common.OutputRedisClusterId: "t1"})
	deployer := NewDeployer(fake.Client())
	ctx := context.Background()

	err := deployer.Create(ctx, &Template{
		Name:       "redis-target",
		Body:       "Resources: {}",
		Parameters: map[string]string{"NodeType": "cache.t3.micro", "EngineVersion": "7.0"},
		Tags:       map[string]string{common.TagRunId: "run-1"},
	}, time.Minute)
	require.Nil(t, err)
	require.True(t, fake.CloudFormation.HasStack("redis-target"))

	params := fake.CloudFormation.Parameters["redis-target"]
	require.Len(t, params, 2)
	require.Equal(t, "EngineVersion", *params[0].ParameterKey)

	value, err := NewInspector(fake.Client()).Output(ctx, "redis-target", common.OutputRedisClusterId)
	require.Nil(t, err)
	require.Equal(t, "t1", value)

	err = deployer.Delete(ctx, "redis-target", time.Minute)
	require.Nil(t, err)
	require.False(t, fake.CloudFormation.HasStack("redis-target"))
	require.Equal(t, 1, recorder.Count("CloudFormation.DeleteStack"))
}

func TestDeployer_CreateRollback(t *testing.T) {
	fake, _ := newFakeAccount()
	fake.CloudFormation.SetFinalStatus("redis-target", cfntypes.StackStatusRollbackComplete)

	err := NewDeployer(fake.Client()).Create(context.Background(), &Template{Name: "redis-target", Body: "{}"}, time.Minute)
	require.NotNil(t, err)
	require.True(t, errors.Is(err, common.ErrProviderFailure))
}

func TestDeployer_Update(t *testing.T) {
	fake, _ := newFakeAccount()
	fake.CloudFormation.AddStack("redis-target", cfntypes.StackStatusCreateComplete, nil, nil)

	err := NewDeployer(fake.Client()).Update(context.Background(), &Template{Name: "redis-target", Body: "{}"}, time.Minute)
	require.Nil(t, err)
	require.Equal(t, "{}", fake.CloudFormation.Templates["redis-target"])
}
