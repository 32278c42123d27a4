package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Complete(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	conf, err := New().LoadConfig("testdata/complete.yaml")
	require.Nil(t, err)
	require.Equal(t, "source-admin", conf.Source.Profile)
	require.Equal(t, "us-west-2", conf.Target.Region)
	require.Equal(t, "redis-source-migration-setup", conf.Source.SetupStackName)
	require.Equal(t, 10*time.Second, conf.Snapshot.PollInterval)
	require.Equal(t, 60, conf.Snapshot.MaxAttempts)
	require.Equal(t, 45*time.Minute, conf.Export.Timeout)
	require.Equal(t, "redis-subnets", conf.Target.Parameters["SubnetGroupName"])
	require.True(t, conf.Validation.Deploy)
	require.Equal(t, "redis-migrate-artifacts", conf.Validation.CodeBucket)
	require.Equal(t, MatchModeName, conf.Cleanup.MatchMode)
	require.Equal(t, []string{"validator", "smoke-test"}, conf.CleanupPatterns())
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	conf, err := New().Parse([]byte(minimalConfig))
	require.Nil(t, err)
	require.True(t, conf.Snapshot.CreateNew)
	require.Equal(t, 30*time.Second, conf.Snapshot.PollInterval)
	require.Equal(t, 60, conf.Snapshot.MaxAttempts)
	require.Equal(t, 30*time.Second, conf.Export.PollInterval)
	require.Equal(t, 60*time.Minute, conf.Export.Timeout)
	require.Equal(t, ClusterKindReplicationGroup, conf.Source.ClusterKind)
	require.Equal(t, OnExistingStackFail, conf.Target.OnExistingStack)
	require.Equal(t, ElastiCacheCanonicalId, conf.Target.ElastiCacheCanonicalId)
	require.Equal(t, int64(40), conf.Validation.KeyThreshold)
	require.Equal(t, int32(30), conf.Cleanup.ExpirationDays)
	require.Equal(t, MatchModeTag, conf.Cleanup.MatchMode)
	require.Equal(t, DefaultCleanupPatterns, conf.CleanupPatterns())
	require.Equal(t, "info", conf.LogLevel)
	require.Equal(t, ".", conf.OutputDir)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := New().LoadConfig("testdata/does-not-exist.yaml")
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
}

func TestLoadConfig_NoFileGiven(t *testing.T) {
	_, err := New().LoadConfig("")
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
}

func TestLoadConfig_FromTempFile(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	path, err := writeConfigFile(t.TempDir(), minimalConfig)
	require.Nil(t, err)

	conf, err := New().LoadConfig(path)
	require.Nil(t, err)
	require.Equal(t, "redis-target-cluster", conf.Target.ClusterStackName)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	fields := map[string]string{
		"source.profile":            "  profile: source-admin\n",
		"source.region":             "  region: us-east-1\n",
		"source.stack_name":         "  stack_name: redis-source\n",
		"target.setup_stack_name":   "  setup_stack_name: redis-target-migration-setup\n",
		"target.cluster_stack_name": "  cluster_stack_name: redis-target-cluster\n",
		"node_type":                 "node_type: cache.t3.medium\n",
	}

	for name, line := range fields {
		t.Run(name, func(t *testing.T) {
			contents := strings.Replace(minimalConfig, line, "", 1)
			require.NotEqual(t, minimalConfig, contents)

			_, err := New().Parse([]byte(contents))
			require.Error(t, err)
			require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
			require.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadConfig_ReuseSnapshotRequiresName(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	_, err := New().Parse([]byte(minimalConfig + "snapshot:\n  create_new: false\n"))
	require.True(t, errors.Is(err, common.ErrMissingPrerequisite))
	require.Contains(t, err.Error(), "snapshot.existing_name")

	conf, err := New().Parse([]byte(minimalConfig + "snapshot:\n  create_new: false\n  existing_name: nightly-1\n"))
	require.Nil(t, err)
	require.False(t, conf.Snapshot.CreateNew)
	require.Equal(t, "nightly-1", conf.Snapshot.ExistingName)
}

func TestLoadConfig_StaticCredentialsReplaceProfile(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	contents := strings.Replace(minimalConfig, "  profile: source-admin\n",
		"  access_key_id: AKIAEXAMPLE\n  secret_access_key: example-secret\n", 1)
	conf, err := New().Parse([]byte(contents))
	require.Nil(t, err)
	require.Equal(t, "AKIAEXAMPLE", conf.Source.AccessKeyId)
	require.NotContains(t, conf.String(), "example-secret")
	require.NotContains(t, conf.String(), "AKIAEXAMPLE")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	setEnvVar("REDIS_MIGRATE_SOURCE_PROFILE", "other-source")
	setEnvVar("REDIS_MIGRATE_TARGET_REGION", "eu-west-1")
	setEnvVar("REDIS_MIGRATE_LOG_LEVEL", "debug")

	conf, err := New().Parse([]byte(minimalConfig))
	require.Nil(t, err)
	require.Equal(t, "other-source", conf.Source.Profile)
	require.Equal(t, "eu-west-1", conf.Target.Region)
	require.Equal(t, "us-east-1", conf.Source.Region)

	level, err := conf.ParseLogLevel()
	require.Nil(t, err)
	require.Equal(t, "debug", level.String())
}

func TestLoadConfig_UnknownField(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	_, err := New().Parse([]byte(minimalConfig + "snapshots:\n  create_new: true\n"))
	require.Error(t, err)
}

func TestLoadConfig_InvalidEnums(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	_, err := New().Parse([]byte(minimalConfig + "cleanup:\n  match_mode: regex\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cleanup.match_mode")

	contents := strings.Replace(minimalConfig, "  cluster_stack_name: redis-target-cluster\n",
		"  cluster_stack_name: redis-target-cluster\n  on_existing_stack: replace\n", 1)
	_, err = New().Parse([]byte(contents))
	require.Error(t, err)
	require.Contains(t, err.Error(), "target.on_existing_stack")
}

func TestLoadConfig_SetupStackCannotBeDataBearing(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	contents := strings.Replace(minimalConfig, "  setup_stack_name: redis-target-migration-setup\n",
		"  setup_stack_name: redis-target-cluster\n", 1)
	_, err := New().Parse([]byte(contents))
	require.Error(t, err)
	require.Contains(t, err.Error(), "data-bearing")
}

func TestConfig_String(t *testing.T) {
	defer clearAllEnvVars()
	clearAllEnvVars()

	conf, err := New().Parse([]byte(minimalConfig))
	require.Nil(t, err)
	s := conf.String()
	require.True(t, strings.HasPrefix(s, "Config{"))
	require.Contains(t, s, "node_type=\"cache.t3.medium\"")
	require.Contains(t, s, "target.cluster_stack_name=\"redis-target-cluster\"")
}
