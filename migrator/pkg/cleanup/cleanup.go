// Package cleanup removes the scaffolding of a migration: the setup stacks and
// transfer buckets (phase A) and the validation stacks, functions and roles
// (phase B). Data-bearing stacks are never touched.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics/noopmetrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	log "github.com/sirupsen/logrus"
)

const lifecycleRuleId = "redis-migrate-expiration"

// Confirmer asks the operator before anything is deleted.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(message string) (bool, error)

func (f ConfirmFunc) Confirm(message string) (bool, error) {
	return f(message)
}

type Options struct {
	DryRun     bool
	Force      bool
	SourceOnly bool
	TargetOnly bool
}

// Cleaner discovers and removes migration and validation resources.
type Cleaner struct {
	Conf      *config.Config
	Source    *awsclient.Account
	Target    *awsclient.Account
	Confirmer Confirmer
	Metrics   *metrics.MigrationMetrics
	Options   Options

	// WaiterMinDelay and WaiterMaxDelay tune stack deletion waits.
	WaiterMinDelay time.Duration
	WaiterMaxDelay time.Duration

	matcher Matcher
}

type side struct {
	account *awsclient.Account
	// bucketStack and bucketOutput locate the transfer bucket of this side.
	bucketStack  string
	bucketOutput string
	setupStack   string
}

type bucketRef struct {
	side   *side
	bucket string
}

type resourceRef struct {
	side *side
	name string
}

type plan struct {
	lifecycle        []bucketRef
	setupStacks      []resourceRef
	validationStacks []resourceRef
	functions        []resourceRef
	roles            []resourceRef
}

func (p *plan) size() int {
	return len(p.lifecycle) + len(p.setupStacks) + len(p.validationStacks) + len(p.functions) + len(p.roles)
}

func NewCleaner(conf *config.Config, source *awsclient.Account, target *awsclient.Account, confirmer Confirmer,
	m *metrics.MigrationMetrics, opts Options) *Cleaner {
	if m == nil {
		m = metrics.NewMigrationMetrics(noopmetrics.NewNoopMetricFactory())
	}
	if conf.Cleanup.DryRun {
		opts.DryRun = true
	}
	if conf.Cleanup.Force {
		opts.Force = true
	}
	return &Cleaner{
		Conf:           conf,
		Source:         source,
		Target:         target,
		Confirmer:      confirmer,
		Metrics:        m,
		Options:        opts,
		WaiterMinDelay: stack.DefaultMinDelay,
		WaiterMaxDelay: stack.DefaultMaxDelay,
		matcher:        NewMatcher(conf),
	}
}

func (c *Cleaner) sides() ([]*side, error) {
	if c.Options.SourceOnly && c.Options.TargetOnly {
		return nil, errors.New("--source-only and --target-only are mutually exclusive")
	}
	var sides []*side
	if !c.Options.TargetOnly {
		sides = append(sides, &side{
			account:      c.Source,
			bucketStack:  c.Conf.Source.StackName,
			bucketOutput: common.OutputExportBucketName,
			setupStack:   c.Conf.Source.SetupStackName,
		})
	}
	if !c.Options.SourceOnly {
		sides = append(sides, &side{
			account:      c.Target,
			bucketStack:  c.Conf.Target.SetupStackName,
			bucketOutput: common.OutputImportBucketName,
			setupStack:   c.Conf.Target.SetupStackName,
		})
	}
	return sides, nil
}

// Run discovers everything to remove, asks for confirmation unless forced or
// dry-run, then runs phase A and phase B. Individual failures are recorded as
// warnings; the returned error reports whether anything was left behind.
func (c *Cleaner) Run(ctx context.Context) (*Result, error) {
	sides, err := c.sides()
	if err != nil {
		return nil, err
	}

	log.Infof("Discovering cleanup candidates (validation resources matched by %v).", c.matcher)
	p, err := c.discover(ctx, sides)
	if err != nil {
		return nil, err
	}

	result := &Result{DryRun: c.Options.DryRun, MigrationOK: true, ValidationOK: true}
	if p.size() == 0 {
		log.Infof("Nothing to clean up.")
		return result, nil
	}
	c.logPlan(p)

	if c.Options.DryRun {
		c.record(result, p)
		log.Infof("Dry run, no changes made. %v", result.Summary())
		return result, nil
	}

	if !c.Options.Force {
		if c.Confirmer == nil {
			return nil, common.MissingPrerequisite("cleanup needs confirmation; run interactively or pass --force")
		}
		ok, err := c.Confirmer.Confirm(fmt.Sprintf("Delete or expire the %v resources listed above?", p.size()))
		if err != nil {
			return nil, fmt.Errorf("could not read confirmation: %w", err)
		}
		if !ok {
			return nil, common.ErrCancelled
		}
	}

	result.MigrationOK = c.cleanMigrationResources(ctx, p, result)
	result.ValidationOK = c.cleanValidationResources(ctx, p, result)

	log.Infof("Cleanup finished: %v", result.Summary())
	if !result.Succeeded() {
		return result, fmt.Errorf("cleanup left %v resources behind", len(result.Failures()))
	}
	return result, nil
}

func (c *Cleaner) logPlan(p *plan) {
	for _, b := range p.lifecycle {
		log.Infof("[%v] expire objects of bucket %v after %v days", b.side.account.Name, b.bucket, c.Conf.Cleanup.ExpirationDays)
	}
	for _, s := range p.setupStacks {
		log.Infof("[%v] delete setup stack %v", s.side.account.Name, s.name)
	}
	for _, s := range p.validationStacks {
		log.Infof("[%v] delete validation stack %v", s.side.account.Name, s.name)
	}
	for _, f := range p.functions {
		log.Infof("[%v] delete function %v", f.side.account.Name, f.name)
	}
	for _, r := range p.roles {
		log.Infof("[%v] delete role %v", r.side.account.Name, r.name)
	}
}

// record adds every planned action to result without running it.
func (c *Cleaner) record(result *Result, p *plan) {
	for _, b := range p.lifecycle {
		result.add(Action{Account: b.side.account.Name, Kind: KindLifecycle, Name: b.bucket, Outcome: OutcomePlanned})
	}
	for _, group := range []struct {
		kind string
		refs []resourceRef
	}{
		{KindStack, p.setupStacks},
		{KindStack, p.validationStacks},
		{KindFunction, p.functions},
		{KindRole, p.roles},
	} {
		for _, r := range group.refs {
			result.add(Action{Account: r.side.account.Name, Kind: group.kind, Name: r.name, Outcome: OutcomePlanned})
		}
	}
}

func (c *Cleaner) done(result *Result, account common.Account, kind string, name string, err error) bool {
	a := Action{Account: account, Kind: kind, Name: name, Outcome: OutcomeDone}
	outcome := metrics.OutcomeDeleted
	if err != nil {
		a.Outcome = OutcomeFailed
		a.Err = err
		outcome = metrics.OutcomeFailed
		log.Warnf("[%v] could not clean up %v %v: %v", account, kind, name, err)
	} else {
		log.Infof("[%v] cleaned up %v %v", account, kind, name)
	}
	result.add(a)
	c.Metrics.IncCleanupAction(kind, outcome)
	return err == nil
}

func (c *Cleaner) skipped(result *Result, account common.Account, kind string, name string, reason string) {
	log.Infof("[%v] %v %v already gone: %v", account, kind, name, reason)
	result.add(Action{Account: account, Kind: kind, Name: name, Outcome: OutcomeSkipped})
	c.Metrics.IncCleanupAction(kind, metrics.OutcomeSkipped)
}

func (c *Cleaner) deployer(account *awsclient.Account) *stack.Deployer {
	d := stack.NewDeployer(account)
	d.MinDelay = c.WaiterMinDelay
	d.MaxDelay = c.WaiterMaxDelay
	return d
}

// cleanMigrationResources is phase A.
func (c *Cleaner) cleanMigrationResources(ctx context.Context, p *plan, result *Result) bool {
	ok := true
	for _, b := range p.lifecycle {
		err := c.expireBucket(ctx, b.side.account, b.bucket)
		ok = c.done(result, b.side.account.Name, KindLifecycle, b.bucket, err) && ok
	}
	for _, s := range p.setupStacks {
		err := c.deployer(s.side.account).Delete(ctx, s.name, c.Conf.Cleanup.WaitTimeout)
		ok = c.done(result, s.side.account.Name, KindStack, s.name, err) && ok
	}
	return ok
}

// cleanValidationResources is phase B: stacks first, since deleting them may
// already take their functions and roles along.
func (c *Cleaner) cleanValidationResources(ctx context.Context, p *plan, result *Result) bool {
	ok := true
	for _, s := range p.validationStacks {
		err := c.deployer(s.side.account).Delete(ctx, s.name, c.Conf.Cleanup.WaitTimeout)
		ok = c.done(result, s.side.account.Name, KindStack, s.name, err) && ok
	}
	for _, f := range p.functions {
		_, err := f.side.account.Lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(f.name)})
		if awsclient.IsErrorCode(err, "ResourceNotFoundException") {
			c.skipped(result, f.side.account.Name, KindFunction, f.name, "removed with its stack")
			continue
		}
		ok = c.done(result, f.side.account.Name, KindFunction, f.name, err) && ok
	}
	for _, r := range p.roles {
		err := c.deleteRole(ctx, r.side.account, r.name)
		if awsclient.IsErrorCode(err, "NoSuchEntity") {
			c.skipped(result, r.side.account.Name, KindRole, r.name, "removed with its stack")
			continue
		}
		ok = c.done(result, r.side.account.Name, KindRole, r.name, err) && ok
	}
	return ok
}

func (c *Cleaner) expireBucket(ctx context.Context, account *awsclient.Account, bucket string) error {
	_, err := account.S3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
			Rules: []s3types.LifecycleRule{
				{
					ID:         aws.String(lifecycleRuleId),
					Status:     s3types.ExpirationStatusEnabled,
					Prefix:     aws.String(""),
					Expiration: &s3types.LifecycleExpiration{Days: aws.Int32(c.Conf.Cleanup.ExpirationDays)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not set lifecycle of bucket %v: %w", bucket, err)
	}
	return nil
}

// deleteRole removes inline policies, managed policy attachments and instance
// profile memberships before the role itself, as IAM requires.
func (c *Cleaner) deleteRole(ctx context.Context, account *awsclient.Account, name string) error {
	inline, err := account.IAM.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		return err
	}
	for _, policy := range inline.PolicyNames {
		if _, err = account.IAM.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName: aws.String(name), PolicyName: aws.String(policy),
		}); err != nil {
			return fmt.Errorf("could not delete inline policy %v: %w", policy, err)
		}
	}

	attached, err := account.IAM.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		return err
	}
	for _, policy := range attached.AttachedPolicies {
		if _, err = account.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName: aws.String(name), PolicyArn: policy.PolicyArn,
		}); err != nil {
			return fmt.Errorf("could not detach policy %v: %w", aws.ToString(policy.PolicyArn), err)
		}
	}

	profiles, err := account.IAM.ListInstanceProfilesForRole(ctx, &iam.ListInstanceProfilesForRoleInput{RoleName: aws.String(name)})
	if err != nil {
		return err
	}
	for _, profile := range profiles.InstanceProfiles {
		if _, err = account.IAM.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			RoleName: aws.String(name), InstanceProfileName: profile.InstanceProfileName,
		}); err != nil {
			return fmt.Errorf("could not remove role from instance profile %v: %w",
				aws.ToString(profile.InstanceProfileName), err)
		}
	}

	_, err = account.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	return err
}
