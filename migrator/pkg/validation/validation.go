// Package validation deploys and invokes the function that checks the
// migrated cluster from inside the target VPC.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/report"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/templates"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validator"
	log "github.com/sirupsen/logrus"
)

const (
	ParameterRedisEndpoint   = "RedisEndpoint"
	ParameterKeyThreshold    = "KeyThreshold"
	ParameterCodeBucket      = "CodeBucket"
	ParameterCodeKey         = "CodeKey"
	ParameterSubnetIds       = "SubnetIds"
	ParameterSecurityGroupId = "SecurityGroupId"
)

type Validation struct {
	Conf   *config.Config
	Target *awsclient.Account

	NewRunId       func() string
	WaiterMinDelay time.Duration
	WaiterMaxDelay time.Duration
}

func NewValidation(conf *config.Config, target *awsclient.Account) *Validation {
	return &Validation{
		Conf:           conf,
		Target:         target,
		NewRunId:       func() string { return uuid.New().String() },
		WaiterMinDelay: stack.DefaultMinDelay,
		WaiterMaxDelay: stack.DefaultMaxDelay,
	}
}

// Run deploys the validation stack when configured, invokes the validator and
// returns its summary. A summary reporting too few keys yields
// ErrValidationFailed together with the summary.
func (v *Validation) Run(ctx context.Context) (*validator.Summary, error) {
	if v.Conf.Validation.Deploy {
		if err := v.deploy(ctx); err != nil {
			return nil, err
		}
	}

	functionName, err := v.functionName(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := v.invoke(ctx, functionName)
	if err != nil {
		return nil, err
	}

	entry := log.WithFields(log.Fields{
		"function":  functionName,
		"key_count": summary.KeyCount,
		"threshold": summary.Threshold,
	})
	if summary.Status != validator.StatusSuccess {
		entry.Errorf("Validator could not check the cluster: %v", summary.Error)
		return summary, common.ProviderFailure("validator could not check %v: %v", summary.Endpoint, summary.Error)
	}
	if !summary.MigrationSuccess {
		entry.Errorf("Migrated cluster holds %v keys, expected at least %v.", summary.KeyCount, summary.Threshold)
		return summary, fmt.Errorf("%w: %v keys found, threshold %v", common.ErrValidationFailed, summary.KeyCount, summary.Threshold)
	}
	entry.Infof("Migrated cluster holds %v keys, validation passed.", summary.KeyCount)
	return summary, nil
}

func (v *Validation) deploy(ctx context.Context) error {
	body, err := templates.Load(v.Conf.Validation.TemplateFile, templates.Validator)
	if err != nil {
		return err
	}
	params, err := v.parameters(ctx, body)
	if err != nil {
		return err
	}

	t := &stack.Template{
		Name:       v.Conf.Validation.StackName,
		Body:       body,
		Parameters: params,
		Tags: map[string]string{
			common.TagRunId:   v.NewRunId(),
			common.TagPurpose: common.PurposeValidation,
		},
		WithIAM: true,
	}

	deployer := stack.NewDeployer(v.Target)
	deployer.MinDelay = v.WaiterMinDelay
	deployer.MaxDelay = v.WaiterMaxDelay

	exists, err := stack.NewInspector(v.Target).Exists(ctx, t.Name)
	if err != nil {
		return err
	}
	if exists {
		return deployer.Update(ctx, t, v.Conf.Validation.WaitTimeout)
	}
	return deployer.Create(ctx, t, v.Conf.Validation.WaitTimeout)
}

// parameters fills the validation template parameters. Values from
// validation.parameters win; the network comes from the target setup stack so
// the function runs next to the cluster.
func (v *Validation) parameters(ctx context.Context, body string) (map[string]string, error) {
	spec, err := templates.ParseParameters(body)
	if err != nil {
		return nil, err
	}
	inspector := stack.NewInspector(v.Target)

	params := map[string]string{}
	for k, val := range v.Conf.Validation.Parameters {
		params[k] = val
	}
	if params[ParameterRedisEndpoint] == "" {
		endpoint, err := inspector.Output(ctx, v.Conf.Target.ClusterStackName, common.OutputRedisEndpoint)
		if err != nil {
			return nil, err
		}
		params[ParameterRedisEndpoint] = endpoint
	}
	if spec.Declares(ParameterKeyThreshold) {
		params[ParameterKeyThreshold] = strconv.FormatInt(v.Conf.Validation.KeyThreshold, 10)
	}
	spec.SetIfDeclared(params, ParameterCodeBucket, v.Conf.Validation.CodeBucket)
	spec.SetIfDeclared(params, ParameterCodeKey, v.Conf.Validation.CodeKey)

	if needsNetwork(spec, params) {
		outputs, err := inspector.Outputs(ctx, v.Conf.Target.SetupStackName)
		if err != nil {
			return nil, err
		}
		spec.SetIfDeclared(params, ParameterSubnetIds, outputs[common.OutputSubnetIds])
		spec.SetIfDeclared(params, ParameterSecurityGroupId, outputs[common.OutputSecurityGroupId])
	}

	if missing := spec.Missing(params); len(missing) > 0 {
		return nil, common.MissingPrerequisite("no value for parameters %v of the validation template; "+
			"set validation.code_bucket or validation.parameters", strings.Join(missing, ", "))
	}
	return params, nil
}

func needsNetwork(spec *templates.ParameterSpec, params map[string]string) bool {
	for _, name := range []string{ParameterSubnetIds, ParameterSecurityGroupId} {
		if spec.Declares(name) && params[name] == "" {
			return true
		}
	}
	return false
}

func (v *Validation) functionName(ctx context.Context) (string, error) {
	if v.Conf.Validation.FunctionName != "" {
		return v.Conf.Validation.FunctionName, nil
	}
	return stack.NewInspector(v.Target).Output(ctx, v.Conf.Validation.StackName, common.OutputValidatorFunctionName)
}

func (v *Validation) invoke(ctx context.Context, functionName string) (*validator.Summary, error) {
	log.Infof("Invoking validator %v in %v account.", functionName, v.Target.Name)
	out, err := v.Target.Lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        []byte("{}"),
	})
	if err != nil {
		return nil, fmt.Errorf("could not invoke validator %v: %w", functionName, err)
	}
	if out.FunctionError != nil {
		return nil, common.ProviderFailure("validator %v failed (%v): %s", functionName, aws.ToString(out.FunctionError), out.Payload)
	}

	var response validator.Response
	if err = json.Unmarshal(out.Payload, &response); err != nil {
		return nil, fmt.Errorf("could not decode validator response: %w", err)
	}
	if response.Body == nil {
		return nil, fmt.Errorf("validator %v returned no summary: %s", functionName, out.Payload)
	}
	return response.Body, nil
}

// ReportSection converts a summary for the migration report.
func ReportSection(s *validator.Summary) *report.Validation {
	if s == nil {
		return nil
	}
	return &report.Validation{
		Status:     s.Status,
		Endpoint:   s.Endpoint,
		KeyCount:   s.KeyCount,
		Threshold:  s.Threshold,
		SampleKeys: s.SampleKeys,
		Success:    s.MigrationSuccess,
	}
}
