package awstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// InvokeFunc produces the response payload of a fake function.
type InvokeFunc func(payload []byte) ([]byte, error)

type fakeFunction struct {
	config types.FunctionConfiguration
	tags   map[string]string
	invoke InvokeFunc
}

// LambdaServer implements a Lambda simulator for use in testing.
type LambdaServer struct {
	mu       sync.Mutex
	account  string
	recorder *Recorder

	functions map[string]*fakeFunction
}

func NewLambdaServer(account string, recorder *Recorder) *LambdaServer {
	return &LambdaServer{
		account:   account,
		recorder:  recorder,
		functions: make(map[string]*fakeFunction),
	}
}

func functionArn(name string) string {
	return fmt.Sprintf("arn:aws:lambda:us-east-1:000000000000:function:%v", name)
}

// AddFunction registers a function. invoke may be nil for functions that are
// only listed or deleted.
func (l *LambdaServer) AddFunction(name string, tags map[string]string, invoke InvokeFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.functions[name] = &fakeFunction{
		config: types.FunctionConfiguration{
			FunctionName: aws.String(name),
			FunctionArn:  aws.String(functionArn(name)),
		},
		tags:   tags,
		invoke: invoke,
	}
}

// HasFunction reports whether the function currently exists.
func (l *LambdaServer) HasFunction(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.functions[name]
	return ok
}

func notFoundFunction(name string) error {
	return &types.ResourceNotFoundException{Message: aws.String(fmt.Sprintf("Function not found: %v", name))}
}

func (l *LambdaServer) ListFunctions(
	ctx context.Context,
	input *lambda.ListFunctionsInput,
	opts ...func(*lambda.Options),
) (*lambda.ListFunctionsOutput, error) {
	l.recorder.record(l.account, "Lambda.ListFunctions")

	l.mu.Lock()
	defer l.mu.Unlock()
	var names []string
	for n := range l.functions {
		names = append(names, n)
	}
	sort.Strings(names)
	out := &lambda.ListFunctionsOutput{}
	for _, n := range names {
		out.Functions = append(out.Functions, l.functions[n].config)
	}
	return out, nil
}

func (l *LambdaServer) ListTags(
	ctx context.Context,
	input *lambda.ListTagsInput,
	opts ...func(*lambda.Options),
) (*lambda.ListTagsOutput, error) {
	arn := aws.ToString(input.Resource)
	l.recorder.record(l.account, "Lambda.ListTags", arn)

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.functions {
		if aws.ToString(f.config.FunctionArn) == arn {
			tags := make(map[string]string, len(f.tags))
			for k, v := range f.tags {
				tags[k] = v
			}
			return &lambda.ListTagsOutput{Tags: tags}, nil
		}
	}
	return nil, notFoundFunction(arn)
}

func (l *LambdaServer) DeleteFunction(
	ctx context.Context,
	input *lambda.DeleteFunctionInput,
	opts ...func(*lambda.Options),
) (*lambda.DeleteFunctionOutput, error) {
	name := aws.ToString(input.FunctionName)
	l.recorder.record(l.account, "Lambda.DeleteFunction", name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.functions[name]; !ok {
		return nil, notFoundFunction(name)
	}
	delete(l.functions, name)
	return &lambda.DeleteFunctionOutput{}, nil
}

func (l *LambdaServer) Invoke(
	ctx context.Context,
	input *lambda.InvokeInput,
	opts ...func(*lambda.Options),
) (*lambda.InvokeOutput, error) {
	name := aws.ToString(input.FunctionName)
	l.recorder.record(l.account, "Lambda.Invoke", name)

	l.mu.Lock()
	f, ok := l.functions[name]
	l.mu.Unlock()
	if !ok {
		return nil, notFoundFunction(name)
	}
	if f.invoke == nil {
		return &lambda.InvokeOutput{StatusCode: 200}, nil
	}

	payload, err := f.invoke(input.Payload)
	if err != nil {
		return &lambda.InvokeOutput{
			StatusCode:    200,
			FunctionError: aws.String("Unhandled"),
			Payload:       []byte(fmt.Sprintf(`{"errorMessage":%q}`, err.Error())),
		}, nil
	}
	return &lambda.InvokeOutput{StatusCode: 200, Payload: payload}, nil
}
