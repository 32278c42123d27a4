package awstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
)

// CloudFormationServer implements a CloudFormation simulator for use in testing.
// Create, update and delete complete synchronously.
type CloudFormationServer struct {
	mu       sync.Mutex
	account  string
	recorder *Recorder

	stacks map[string]*types.Stack
	// outputsOnCreate holds the outputs a stack gets once CreateStack succeeds.
	outputsOnCreate map[string]map[string]string
	// finalStatus overrides the status a create or update settles in.
	finalStatus map[string]types.StackStatus
	deleteErrs  map[string]error

	// Templates keeps the template body of every created or updated stack.
	Templates map[string]string
	// Parameters keeps the parameters of every created or updated stack.
	Parameters map[string][]types.Parameter
}

func NewCloudFormationServer(account string, recorder *Recorder) *CloudFormationServer {
	return &CloudFormationServer{
		account:         account,
		recorder:        recorder,
		stacks:          make(map[string]*types.Stack),
		outputsOnCreate: make(map[string]map[string]string),
		finalStatus:     make(map[string]types.StackStatus),
		deleteErrs:      make(map[string]error),
		Templates:       make(map[string]string),
		Parameters:      make(map[string][]types.Parameter),
	}
}

// AddStack registers an existing stack with the given status, outputs and tags.
func (c *CloudFormationServer) AddStack(name string, status types.StackStatus, outputs map[string]string, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks[name] = &types.Stack{
		StackName:   aws.String(name),
		StackId:     aws.String(stackId(name)),
		StackStatus: status,
		Outputs:     toOutputs(outputs),
		Tags:        toTags(tags),
	}
}

// SetOutputsOnCreate sets the outputs a stack will expose after CreateStack.
func (c *CloudFormationServer) SetOutputsOnCreate(name string, outputs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputsOnCreate[name] = outputs
}

// SetFinalStatus makes a create or update of name settle in status.
func (c *CloudFormationServer) SetFinalStatus(name string, status types.StackStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalStatus[name] = status
}

// SetDeleteError makes DeleteStack fail for name.
func (c *CloudFormationServer) SetDeleteError(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErrs[name] = err
}

// HasStack reports whether the stack currently exists.
func (c *CloudFormationServer) HasStack(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stacks[name]
	return ok
}

func stackId(name string) string {
	return fmt.Sprintf("arn:aws:cloudformation:us-east-1:000000000000:stack/%v/00000000", name)
}

func stackNotFound(name string) error {
	return &smithy.GenericAPIError{Code: "ValidationError", Message: fmt.Sprintf("Stack with id %v does not exist", name)}
}

func toOutputs(outputs map[string]string) []types.Output {
	var keys []string
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var result []types.Output
	for _, k := range keys {
		result = append(result, types.Output{OutputKey: aws.String(k), OutputValue: aws.String(outputs[k])})
	}
	return result
}

func toTags(tags map[string]string) []types.Tag {
	var keys []string
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var result []types.Tag
	for _, k := range keys {
		result = append(result, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return result
}

func (c *CloudFormationServer) DescribeStacks(
	ctx context.Context,
	input *cloudformation.DescribeStacksInput,
	opts ...func(*cloudformation.Options),
) (*cloudformation.DescribeStacksOutput, error) {
	name := aws.ToString(input.StackName)
	c.recorder.record(c.account, "CloudFormation.DescribeStacks", name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if name != "" {
		stack, ok := c.stacks[name]
		if !ok {
			return nil, stackNotFound(name)
		}
		return &cloudformation.DescribeStacksOutput{Stacks: []types.Stack{*stack}}, nil
	}

	var names []string
	for n := range c.stacks {
		names = append(names, n)
	}
	sort.Strings(names)
	out := &cloudformation.DescribeStacksOutput{}
	for _, n := range names {
		out.Stacks = append(out.Stacks, *c.stacks[n])
	}
	return out, nil
}

func (c *CloudFormationServer) CreateStack(
	ctx context.Context,
	input *cloudformation.CreateStackInput,
	opts ...func(*cloudformation.Options),
) (*cloudformation.CreateStackOutput, error) {
	name := aws.ToString(input.StackName)
	c.recorder.record(c.account, "CloudFormation.CreateStack", name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.stacks[name]; ok {
		return nil, &types.AlreadyExistsException{Message: aws.String(fmt.Sprintf("Stack [%v] already exists", name))}
	}

	status := types.StackStatusCreateComplete
	if s, ok := c.finalStatus[name]; ok {
		status = s
	}
	c.stacks[name] = &types.Stack{
		StackName:   input.StackName,
		StackId:     aws.String(stackId(name)),
		StackStatus: status,
		Outputs:     toOutputs(c.outputsOnCreate[name]),
		Tags:        input.Tags,
		Parameters:  input.Parameters,
	}
	c.Templates[name] = aws.ToString(input.TemplateBody)
	c.Parameters[name] = input.Parameters
	return &cloudformation.CreateStackOutput{StackId: aws.String(stackId(name))}, nil
}

func (c *CloudFormationServer) UpdateStack(
	ctx context.Context,
	input *cloudformation.UpdateStackInput,
	opts ...func(*cloudformation.Options),
) (*cloudformation.UpdateStackOutput, error) {
	name := aws.ToString(input.StackName)
	c.recorder.record(c.account, "CloudFormation.UpdateStack", name)

	c.mu.Lock()
	defer c.mu.Unlock()

	stack, ok := c.stacks[name]
	if !ok {
		return nil, stackNotFound(name)
	}

	status := types.StackStatusUpdateComplete
	if s, ok := c.finalStatus[name]; ok {
		status = s
	}
	stack.StackStatus = status
	stack.Parameters = input.Parameters
	if len(input.Tags) > 0 {
		stack.Tags = input.Tags
	}
	c.Templates[name] = aws.ToString(input.TemplateBody)
	c.Parameters[name] = input.Parameters
	return &cloudformation.UpdateStackOutput{StackId: stack.StackId}, nil
}

func (c *CloudFormationServer) DeleteStack(
	ctx context.Context,
	input *cloudformation.DeleteStackInput,
	opts ...func(*cloudformation.Options),
) (*cloudformation.DeleteStackOutput, error) {
	name := aws.ToString(input.StackName)
	c.recorder.record(c.account, "CloudFormation.DeleteStack", name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.deleteErrs[name]; err != nil {
		return nil, err
	}
	// Deleting a missing stack is not an error in CloudFormation.
	delete(c.stacks, name)
	return &cloudformation.DeleteStackOutput{}, nil
}
