package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/mcuadros/go-defaults"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "REDIS_MIGRATE"

	ClusterKindReplicationGroup = "replication-group"
	ClusterKindCacheCluster     = "cache-cluster"

	OnExistingStackFail   = "fail"
	OnExistingStackSkip   = "skip"
	OnExistingStackUpdate = "update"

	MatchModeTag  = "tag"
	MatchModeName = "name"

	// ElastiCacheCanonicalId is the S3 canonical user of the ElastiCache service in
	// the commercial regions. Regions with their own service account override it
	// through target.elasticache_canonical_id.
	ElastiCacheCanonicalId = "540804c33a284a299d2547575ce1010f2312ef3da9b3a053c8bc45bf233e4353"
)

// Config holds the migration configuration. It is read once and not modified
// after LoadConfig returns.
type Config struct {
	Source SourceConfig `yaml:"source" json:"source"`
	Target TargetConfig `yaml:"target" json:"target"`

	NodeType      string `yaml:"node_type" json:"node_type"`
	EngineVersion string `yaml:"engine_version" json:"engine_version" default:"7.0"`

	Snapshot   SnapshotConfig   `yaml:"snapshot" json:"snapshot"`
	Export     ExportConfig     `yaml:"export" json:"export"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Cleanup    CleanupConfig    `yaml:"cleanup" json:"cleanup"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`

	OutputDir string `yaml:"output_dir" json:"output_dir" default:"."`
	LogLevel  string `yaml:"log_level" json:"log_level" default:"info"`
}

// AccountConfig describes how to reach one AWS account.
type AccountConfig struct {
	Profile         string `yaml:"profile" json:"profile"`
	Region          string `yaml:"region" json:"region"`
	RoleArn         string `yaml:"role_arn" json:"role_arn"`
	AccessKeyId     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	SessionToken    string `yaml:"session_token" json:"session_token"`
}

type SourceConfig struct {
	AccountConfig `yaml:",inline" json:"account"`

	// StackName owns the source cluster and the export bucket. It is never deleted.
	StackName string `yaml:"stack_name" json:"stack_name"`
	// SetupStackName holds source side migration scaffolding, if any.
	SetupStackName string `yaml:"setup_stack_name" json:"setup_stack_name"`
	ClusterKind    string `yaml:"cluster_kind" json:"cluster_kind" default:"replication-group"`
}

type TargetConfig struct {
	AccountConfig `yaml:",inline" json:"account"`

	SetupStackName   string `yaml:"setup_stack_name" json:"setup_stack_name"`
	ClusterStackName string `yaml:"cluster_stack_name" json:"cluster_stack_name"`

	TemplateFile    string            `yaml:"template_file" json:"template_file"`
	Parameters      map[string]string `yaml:"parameters" json:"parameters"`
	OnExistingStack string            `yaml:"on_existing_stack" json:"on_existing_stack" default:"fail"`
	WaitTimeout     time.Duration     `yaml:"wait_timeout" json:"wait_timeout" default:"60m"`

	ElastiCacheCanonicalId string `yaml:"elasticache_canonical_id" json:"elasticache_canonical_id" default:"540804c33a284a299d2547575ce1010f2312ef3da9b3a053c8bc45bf233e4353"`
}

type SnapshotConfig struct {
	CreateNew    bool          `yaml:"create_new" json:"create_new" default:"true"`
	ExistingName string        `yaml:"existing_name" json:"existing_name"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" default:"30s"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts" default:"60"`
}

type ExportConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" default:"30s"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" default:"60m"`
	TempDir      string        `yaml:"temp_dir" json:"temp_dir"`
}

type ValidationConfig struct {
	Deploy       bool              `yaml:"deploy" json:"deploy"`
	StackName    string            `yaml:"stack_name" json:"stack_name" default:"redis-migration-validator"`
	TemplateFile string            `yaml:"template_file" json:"template_file"`
	Parameters   map[string]string `yaml:"parameters" json:"parameters"`
	FunctionName string            `yaml:"function_name" json:"function_name"`
	// CodeBucket and CodeKey locate the validator package deployed by the
	// default validation template.
	CodeBucket   string        `yaml:"code_bucket" json:"code_bucket"`
	CodeKey      string        `yaml:"code_key" json:"code_key"`
	KeyThreshold int64         `yaml:"key_threshold" json:"key_threshold" default:"40"`
	WaitTimeout  time.Duration `yaml:"wait_timeout" json:"wait_timeout" default:"15m"`
}

type CleanupConfig struct {
	DryRun         bool          `yaml:"dry_run" json:"dry_run"`
	Force          bool          `yaml:"force" json:"force"`
	ExpirationDays int32         `yaml:"expiration_days" json:"expiration_days" default:"30"`
	MatchMode      string        `yaml:"match_mode" json:"match_mode" default:"tag"`
	Patterns       []string      `yaml:"patterns" json:"patterns"`
	WaitTimeout    time.Duration `yaml:"wait_timeout" json:"wait_timeout" default:"30m"`
}

type MetricsConfig struct {
	Address  string `yaml:"address" json:"address" default:"localhost"`
	Port     int    `yaml:"port" json:"port"`
	Textfile string `yaml:"textfile" json:"textfile"`
}

// DefaultCleanupPatterns are used by the name match mode when cleanup.patterns is empty.
var DefaultCleanupPatterns = []string{"validator", "validation", "redis-test", "migration-test"}

// envOverrides are the fields an operator can override from the environment,
// e.g. REDIS_MIGRATE_SOURCE_PROFILE. Unset variables leave the file value in place.
type envOverrides struct {
	SourceProfile        string `split_words:"true"`
	SourceRegion         string `split_words:"true"`
	SourceRoleArn        string `split_words:"true"`
	TargetProfile        string `split_words:"true"`
	TargetRegion         string `split_words:"true"`
	TargetRoleArn        string `split_words:"true"`
	SnapshotExistingName string `split_words:"true"`
	OutputDir            string `split_words:"true"`
	LogLevel             string `split_words:"true"`
}

func (c *Config) String() string {
	var configMap map[string]interface{}
	serializedConfig, _ := json.Marshal(c)
	json.Unmarshal(serializedConfig, &configMap)

	flat := make(map[string]interface{})
	flatten("", configMap, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := new(bytes.Buffer)
	for _, field := range keys {
		lower := strings.ToLower(field)
		if strings.Contains(lower, "secret") || strings.Contains(lower, "token") ||
			strings.Contains(lower, "access_key") {
			continue
		}
		fmt.Fprintf(b, "%s=\"%v\"; ", field, flat[field])
	}
	return fmt.Sprintf("Config{%v}", b.String())
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// New returns a Config with every default applied.
func New() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// LoadConfig reads the YAML file at configFile, applies environment overrides and
// validates the result.
func (c *Config) LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		return nil, common.MissingPrerequisite("no configuration file given")
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.MissingPrerequisite("configuration file %v not found", configFile)
		}
		return nil, fmt.Errorf("could not read configuration file %v: %w", configFile, err)
	}

	return c.Parse(data)
}

// Parse decodes YAML data on top of the defaults, then applies environment
// overrides and validates.
func (c *Config) Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("could not parse configuration: %w", err)
	}

	if _, err := c.ParseEnvVars(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Parsed configuration: %v", c)
	return c, nil
}

// ParseEnvVars applies REDIS_MIGRATE_* overrides according to envconfig rules.
// See: Usage @ https://github.com/kelseyhightower/envconfig
func (c *Config) ParseEnvVars() (*Config, error) {
	o := &envOverrides{}
	if err := envconfig.Process(EnvPrefix, o); err != nil {
		return nil, fmt.Errorf("could not load environment variables: %w", err)
	}

	override(&c.Source.Profile, o.SourceProfile)
	override(&c.Source.Region, o.SourceRegion)
	override(&c.Source.RoleArn, o.SourceRoleArn)
	override(&c.Target.Profile, o.TargetProfile)
	override(&c.Target.Region, o.TargetRegion)
	override(&c.Target.RoleArn, o.TargetRoleArn)
	override(&c.Snapshot.ExistingName, o.SnapshotExistingName)
	override(&c.OutputDir, o.OutputDir)
	override(&c.LogLevel, o.LogLevel)
	return c, nil
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

// Validate checks that every required field is set. Values are not validated
// beyond presence, except for the enumerated options.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"source.region", c.Source.Region},
		{"source.stack_name", c.Source.StackName},
		{"target.region", c.Target.Region},
		{"target.setup_stack_name", c.Target.SetupStackName},
		{"target.cluster_stack_name", c.Target.ClusterStackName},
		{"node_type", c.NodeType},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if !c.Source.hasCredentials() {
		missing = append(missing, "source.profile")
	}
	if !c.Target.hasCredentials() {
		missing = append(missing, "target.profile")
	}
	if !c.Snapshot.CreateNew && strings.TrimSpace(c.Snapshot.ExistingName) == "" {
		missing = append(missing, "snapshot.existing_name")
	}
	if len(missing) > 0 {
		return common.MissingPrerequisite("required configuration fields are empty: %v", strings.Join(missing, ", "))
	}

	switch c.Source.ClusterKind {
	case ClusterKindReplicationGroup, ClusterKindCacheCluster:
	default:
		return fmt.Errorf("invalid source.cluster_kind %q, expected %v or %v",
			c.Source.ClusterKind, ClusterKindReplicationGroup, ClusterKindCacheCluster)
	}

	switch c.Target.OnExistingStack {
	case OnExistingStackFail, OnExistingStackSkip, OnExistingStackUpdate:
	default:
		return fmt.Errorf("invalid target.on_existing_stack %q, expected fail, skip or update", c.Target.OnExistingStack)
	}

	switch c.Cleanup.MatchMode {
	case MatchModeTag, MatchModeName:
	default:
		return fmt.Errorf("invalid cleanup.match_mode %q, expected tag or name", c.Cleanup.MatchMode)
	}

	if c.Snapshot.MaxAttempts <= 0 {
		return fmt.Errorf("snapshot.max_attempts must be positive, got %v", c.Snapshot.MaxAttempts)
	}
	if c.Export.Timeout <= 0 {
		return fmt.Errorf("export.timeout must be positive, got %v", c.Export.Timeout)
	}

	for _, setup := range []string{c.Source.SetupStackName, c.Target.SetupStackName} {
		if setup != "" && (setup == c.Source.StackName || setup == c.Target.ClusterStackName) {
			return fmt.Errorf("setup stack %v is also configured as a data-bearing stack", setup)
		}
	}

	return nil
}

// ParseLogLevel returns the configured logrus level.
func (c *Config) ParseLogLevel() (log.Level, error) {
	level, err := log.ParseLevel(strings.TrimSpace(c.LogLevel))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// CleanupPatterns returns the configured name patterns or the defaults.
func (c *Config) CleanupPatterns() []string {
	if len(c.Cleanup.Patterns) > 0 {
		return c.Cleanup.Patterns
	}
	return DefaultCleanupPatterns
}

// ProtectedStacks are the data-bearing stacks cleanup must never delete.
func (c *Config) ProtectedStacks() []string {
	return []string{c.Source.StackName, c.Target.ClusterStackName}
}

func (a AccountConfig) hasCredentials() bool {
	return strings.TrimSpace(a.Profile) != "" ||
		(a.AccessKeyId != "" && a.SecretAccessKey != "")
}
