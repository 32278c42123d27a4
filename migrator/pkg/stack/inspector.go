package stack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
)

// Summary is the part of a stack description the tool acts upon.
type Summary struct {
	Name    string
	Status  Status
	Outputs map[string]string
	Tags    map[string]string
}

// Inspector reads stack state from one account. It never retries.
type Inspector struct {
	account common.Account
	cfn     awsclient.CloudFormationAPI
}

func NewInspector(account *awsclient.Account) *Inspector {
	return &Inspector{
		account: account.Name,
		cfn:     account.CloudFormation,
	}
}

// IsStackNotFound reports whether err is CloudFormation's answer for a stack
// that does not exist.
func IsStackNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

// Describe returns the summary of stackName, or ErrResourceNotFound when it does
// not exist.
func (i *Inspector) Describe(ctx context.Context, stackName string) (*Summary, error) {
	out, err := i.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)})
	if err != nil {
		if IsStackNotFound(err) {
			return nil, common.NotFound("stack %v in %v account", stackName, i.account)
		}
		return nil, fmt.Errorf("could not describe stack %v in %v account: %w", stackName, i.account, err)
	}
	if len(out.Stacks) == 0 {
		return nil, common.NotFound("stack %v in %v account", stackName, i.account)
	}
	return toSummary(out.Stacks[0])
}

func toSummary(s types.Stack) (*Summary, error) {
	status, err := ParseStatus(string(s.StackStatus))
	if err != nil {
		return nil, fmt.Errorf("stack %v: %w", aws.ToString(s.StackName), err)
	}
	summary := &Summary{
		Name:    aws.ToString(s.StackName),
		Status:  status,
		Outputs: make(map[string]string, len(s.Outputs)),
		Tags:    make(map[string]string, len(s.Tags)),
	}
	for _, o := range s.Outputs {
		summary.Outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	for _, t := range s.Tags {
		summary.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return summary, nil
}

// Exists reports whether stackName exists. Any error other than "does not
// exist" is returned.
func (i *Inspector) Exists(ctx context.Context, stackName string) (bool, error) {
	_, err := i.Describe(ctx, stackName)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrResourceNotFound) {
		return false, nil
	}
	return false, err
}

func (i *Inspector) Status(ctx context.Context, stackName string) (Status, error) {
	s, err := i.Describe(ctx, stackName)
	if err != nil {
		return StatusUndefined, err
	}
	return s.Status, nil
}

func (i *Inspector) Outputs(ctx context.Context, stackName string) (map[string]string, error) {
	s, err := i.Describe(ctx, stackName)
	if err != nil {
		return nil, err
	}
	return s.Outputs, nil
}

// Output returns a single output value. A missing or empty output is an
// ErrResourceNotFound so callers abort instead of continuing with "".
func (i *Inspector) Output(ctx context.Context, stackName string, key string) (string, error) {
	outputs, err := i.Outputs(ctx, stackName)
	if err != nil {
		return "", err
	}
	value := outputs[key]
	if value == "" {
		return "", common.NotFound("output %v of stack %v in %v account", key, stackName, i.account)
	}
	return value, nil
}

func (i *Inspector) Tags(ctx context.Context, stackName string) (map[string]string, error) {
	s, err := i.Describe(ctx, stackName)
	if err != nil {
		return nil, err
	}
	return s.Tags, nil
}

// List returns every stack of the account that has not been deleted, sorted by
// name.
func (i *Inspector) List(ctx context.Context) ([]*Summary, error) {
	var result []*Summary
	paginator := cloudformation.NewDescribeStacksPaginator(i.cfn, &cloudformation.DescribeStacksInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list stacks in %v account: %w", i.account, err)
		}
		for _, s := range page.Stacks {
			summary, err := toSummary(s)
			if err != nil {
				return nil, err
			}
			if summary.Status == StatusDeleteComplete {
				continue
			}
			result = append(result, summary)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].Name < result[b].Name
	})
	return result, nil
}
