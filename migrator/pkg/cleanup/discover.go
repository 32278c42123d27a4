package cleanup

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/stack"
	log "github.com/sirupsen/logrus"
)

func (c *Cleaner) discover(ctx context.Context, sides []*side) (*plan, error) {
	p := &plan{}
	for _, s := range sides {
		inspector := stack.NewInspector(s.account)

		if s.bucketStack != "" {
			bucket, err := inspector.Output(ctx, s.bucketStack, s.bucketOutput)
			if err != nil {
				log.Warnf("[%v] no transfer bucket to expire: %v", s.account.Name, err)
			} else {
				p.lifecycle = append(p.lifecycle, bucketRef{side: s, bucket: bucket})
			}
		}

		if s.setupStack != "" {
			exists, err := inspector.Exists(ctx, s.setupStack)
			if err != nil {
				return nil, err
			}
			if exists {
				p.setupStacks = append(p.setupStacks, resourceRef{side: s, name: s.setupStack})
			}
		}

		stacks, err := inspector.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, summary := range stacks {
			if summary.Name == s.setupStack || summary.Status == stack.StatusDeleteInProgress {
				continue
			}
			if c.matcher.Match(summary.Name, summary.Tags) {
				p.validationStacks = append(p.validationStacks, resourceRef{side: s, name: summary.Name})
			}
		}

		functions, err := c.matchingFunctions(ctx, s)
		if err != nil {
			return nil, err
		}
		p.functions = append(p.functions, functions...)

		roles, err := c.matchingRoles(ctx, s)
		if err != nil {
			return nil, err
		}
		p.roles = append(p.roles, roles...)
	}
	return p, nil
}

func (c *Cleaner) matchingFunctions(ctx context.Context, s *side) ([]resourceRef, error) {
	var result []resourceRef
	paginator := lambda.NewListFunctionsPaginator(s.account.Lambda, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list functions in %v account: %w", s.account.Name, err)
		}
		for _, f := range page.Functions {
			name := aws.ToString(f.FunctionName)
			var tags map[string]string
			if c.matcher.NeedsTags() {
				out, err := s.account.Lambda.ListTags(ctx, &lambda.ListTagsInput{Resource: f.FunctionArn})
				if err != nil {
					return nil, fmt.Errorf("could not read tags of function %v: %w", name, err)
				}
				tags = out.Tags
			}
			if c.matcher.Match(name, tags) {
				result = append(result, resourceRef{side: s, name: name})
			}
		}
	}
	return result, nil
}

func (c *Cleaner) matchingRoles(ctx context.Context, s *side) ([]resourceRef, error) {
	var result []resourceRef
	paginator := iam.NewListRolesPaginator(s.account.IAM, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not list roles in %v account: %w", s.account.Name, err)
		}
		for _, r := range page.Roles {
			name := aws.ToString(r.RoleName)
			var tags map[string]string
			if c.matcher.NeedsTags() {
				out, err := s.account.IAM.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: r.RoleName})
				if err != nil {
					return nil, fmt.Errorf("could not read tags of role %v: %w", name, err)
				}
				tags = make(map[string]string, len(out.Tags))
				for _, t := range out.Tags {
					tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
				}
			}
			if c.matcher.Match(name, tags) {
				result = append(result, resourceRef{side: s, name: name})
			}
		}
	}
	return result, nil
}
