package stack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultMinDelay = 15 * time.Second
	DefaultMaxDelay = 60 * time.Second
)

// Template describes a stack to create or update.
type Template struct {
	Name       string
	Body       string
	Parameters map[string]string
	Tags       map[string]string
	// WithIAM grants CAPABILITY_IAM and CAPABILITY_NAMED_IAM.
	WithIAM bool
}

// Deployer creates, updates and deletes stacks and blocks until CloudFormation
// reports a settled state.
type Deployer struct {
	account   common.Account
	cfn       awsclient.CloudFormationAPI
	inspector *Inspector

	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewDeployer(account *awsclient.Account) *Deployer {
	return &Deployer{
		account:   account.Name,
		cfn:       account.CloudFormation,
		inspector: NewInspector(account),
		MinDelay:  DefaultMinDelay,
		MaxDelay:  DefaultMaxDelay,
	}
}

func sortedParameters(params map[string]string) []types.Parameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]types.Parameter, 0, len(keys))
	for _, k := range keys {
		result = append(result, types.Parameter{ParameterKey: aws.String(k), ParameterValue: aws.String(params[k])})
	}
	return result
}

func sortedTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		result = append(result, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}

func (t *Template) capabilities() []types.Capability {
	if !t.WithIAM {
		return nil
	}
	return []types.Capability{types.CapabilityCapabilityIam, types.CapabilityCapabilityNamedIam}
}

// Create creates the stack and waits up to timeout for CREATE_COMPLETE.
func (d *Deployer) Create(ctx context.Context, t *Template, timeout time.Duration) error {
	log.Infof("Creating stack %v in %v account.", t.Name, d.account)
	_, err := d.cfn.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(t.Name),
		TemplateBody: aws.String(t.Body),
		Parameters:   sortedParameters(t.Parameters),
		Tags:         sortedTags(t.Tags),
		Capabilities: t.capabilities(),
	})
	if err != nil {
		return fmt.Errorf("could not create stack %v in %v account: %w", t.Name, d.account, err)
	}

	waiter := cloudformation.NewStackCreateCompleteWaiter(d.cfn, func(o *cloudformation.StackCreateCompleteWaiterOptions) {
		o.MinDelay = d.MinDelay
		o.MaxDelay = d.MaxDelay
	})
	if err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(t.Name)}, timeout); err != nil {
		return d.waitError(ctx, t.Name, "creation", err)
	}
	log.Infof("Stack %v created in %v account.", t.Name, d.account)
	return nil
}

// Update updates the stack and waits up to timeout for UPDATE_COMPLETE. A
// template without changes is not an error.
func (d *Deployer) Update(ctx context.Context, t *Template, timeout time.Duration) error {
	log.Infof("Updating stack %v in %v account.", t.Name, d.account)
	_, err := d.cfn.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(t.Name),
		TemplateBody: aws.String(t.Body),
		Parameters:   sortedParameters(t.Parameters),
		Tags:         sortedTags(t.Tags),
		Capabilities: t.capabilities(),
	})
	if err != nil {
		if isNoUpdates(err) {
			log.Infof("Stack %v is already up to date.", t.Name)
			return nil
		}
		return fmt.Errorf("could not update stack %v in %v account: %w", t.Name, d.account, err)
	}

	waiter := cloudformation.NewStackUpdateCompleteWaiter(d.cfn, func(o *cloudformation.StackUpdateCompleteWaiterOptions) {
		o.MinDelay = d.MinDelay
		o.MaxDelay = d.MaxDelay
	})
	if err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(t.Name)}, timeout); err != nil {
		return d.waitError(ctx, t.Name, "update", err)
	}
	log.Infof("Stack %v updated in %v account.", t.Name, d.account)
	return nil
}

// Delete deletes the stack and waits up to timeout until it is gone.
func (d *Deployer) Delete(ctx context.Context, stackName string, timeout time.Duration) error {
	log.Infof("Deleting stack %v in %v account.", stackName, d.account)
	_, err := d.cfn.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: aws.String(stackName)})
	if err != nil {
		return fmt.Errorf("could not delete stack %v in %v account: %w", stackName, d.account, err)
	}

	waiter := cloudformation.NewStackDeleteCompleteWaiter(d.cfn, func(o *cloudformation.StackDeleteCompleteWaiterOptions) {
		o.MinDelay = d.MinDelay
		o.MaxDelay = d.MaxDelay
	})
	if err = waiter.Wait(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}, timeout); err != nil {
		return d.waitError(ctx, stackName, "deletion", err)
	}
	log.Infof("Stack %v deleted in %v account.", stackName, d.account)
	return nil
}

// waitError turns a waiter failure into a ProviderFailure when the stack
// settled in a failed state.
func (d *Deployer) waitError(ctx context.Context, stackName string, action string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status, statusErr := d.inspector.Status(ctx, stackName)
	if statusErr == nil && status.IsFailed() {
		return common.ProviderFailure("stack %v %v in %v account ended in %v", stackName, action, d.account, status)
	}
	return fmt.Errorf("waiting for stack %v %v in %v account: %w", stackName, action, d.account, err)
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}
