// Package awstest provides in-memory fakes of the AWS service clients used by
// the migration tooling. Every call is recorded so tests can assert on the
// exact sequence of API operations.
package awstest

import (
	"fmt"
	"strings"
	"sync"
)

// Destructive lists the operations that change or remove existing resources
// during cleanup.
var Destructive = []string{
	"CloudFormation.DeleteStack",
	"Lambda.DeleteFunction",
	"IAM.DeleteRole",
	"IAM.DeleteRolePolicy",
	"IAM.DetachRolePolicy",
	"IAM.RemoveRoleFromInstanceProfile",
	"S3.PutBucketLifecycleConfiguration",
}

// Mutating lists every operation that creates or changes resources.
var Mutating = append([]string{
	"ElastiCache.CreateSnapshot",
	"ElastiCache.CopySnapshot",
	"S3.PutObject",
	"S3.PutObjectAcl",
	"CloudFormation.CreateStack",
	"CloudFormation.UpdateStack",
	"Lambda.Invoke",
}, Destructive...)

// Call is one recorded API operation.
type Call struct {
	Account   string
	Operation string
	Args      []string
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return fmt.Sprintf("%v:%v", c.Account, c.Operation)
	}
	return fmt.Sprintf("%v:%v(%v)", c.Account, c.Operation, strings.Join(c.Args, ","))
}

// Recorder collects calls across every fake of every account.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(account string, operation string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Account: account, Operation: operation, Args: args})
}

// Calls returns a copy of every recorded call in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]Call, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// Operations returns the recorded calls as strings, optionally keeping only the
// operations listed in filter.
func (r *Recorder) Operations(filter ...string) []string {
	var ops []string
	for _, c := range r.Calls() {
		if len(filter) > 0 && !contains(filter, c.Operation) {
			continue
		}
		ops = append(ops, c.String())
	}
	return ops
}

// Count returns how many recorded calls match any of the given operations.
func (r *Recorder) Count(operations ...string) int {
	n := 0
	for _, c := range r.Calls() {
		if contains(operations, c.Operation) {
			n++
		}
	}
	return n
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
