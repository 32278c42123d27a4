package awstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type fakeRole struct {
	role     types.Role
	tags     []types.Tag
	inline   []string
	attached []types.AttachedPolicy
	profiles []string
}

// IAMServer implements an IAM simulator for use in testing. Like IAM itself it
// refuses to delete a role that still has policies or instance profiles.
type IAMServer struct {
	mu       sync.Mutex
	account  string
	recorder *Recorder

	roles map[string]*fakeRole
}

func NewIAMServer(account string, recorder *Recorder) *IAMServer {
	return &IAMServer{
		account:  account,
		recorder: recorder,
		roles:    make(map[string]*fakeRole),
	}
}

// AddRole registers a role with tags, inline policy names, attached policy
// ARNs and instance profile names.
func (i *IAMServer) AddRole(name string, tags map[string]string, inline []string, attached []string, profiles []string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	r := &fakeRole{
		role: types.Role{
			RoleName: aws.String(name),
			Arn:      aws.String(fmt.Sprintf("arn:aws:iam::000000000000:role/%v", name)),
			Path:     aws.String("/"),
		},
		inline:   append([]string(nil), inline...),
		profiles: append([]string(nil), profiles...),
	}
	var keys []string
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.tags = append(r.tags, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	for _, arn := range attached {
		r.attached = append(r.attached, types.AttachedPolicy{PolicyArn: aws.String(arn)})
	}
	i.roles[name] = r
}

// HasRole reports whether the role currently exists.
func (i *IAMServer) HasRole(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.roles[name]
	return ok
}

func (i *IAMServer) role(name string) (*fakeRole, error) {
	r, ok := i.roles[name]
	if !ok {
		return nil, &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("role %q not found", name))}
	}
	return r, nil
}

func (i *IAMServer) ListRoles(
	ctx context.Context,
	input *iam.ListRolesInput,
	opts ...func(*iam.Options),
) (*iam.ListRolesOutput, error) {
	i.recorder.record(i.account, "IAM.ListRoles")

	i.mu.Lock()
	defer i.mu.Unlock()

	var names []string
	for n := range i.roles {
		names = append(names, n)
	}
	sort.Strings(names)
	out := &iam.ListRolesOutput{}
	for _, n := range names {
		out.Roles = append(out.Roles, i.roles[n].role)
	}
	return out, nil
}

func (i *IAMServer) ListRoleTags(
	ctx context.Context,
	input *iam.ListRoleTagsInput,
	opts ...func(*iam.Options),
) (*iam.ListRoleTagsOutput, error) {
	name := aws.ToString(input.RoleName)
	i.recorder.record(i.account, "IAM.ListRoleTags", name)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	return &iam.ListRoleTagsOutput{Tags: r.tags}, nil
}

func (i *IAMServer) ListRolePolicies(
	ctx context.Context,
	input *iam.ListRolePoliciesInput,
	opts ...func(*iam.Options),
) (*iam.ListRolePoliciesOutput, error) {
	name := aws.ToString(input.RoleName)
	i.recorder.record(i.account, "IAM.ListRolePolicies", name)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	return &iam.ListRolePoliciesOutput{PolicyNames: append([]string(nil), r.inline...)}, nil
}

func (i *IAMServer) DeleteRolePolicy(
	ctx context.Context,
	input *iam.DeleteRolePolicyInput,
	opts ...func(*iam.Options),
) (*iam.DeleteRolePolicyOutput, error) {
	name, policy := aws.ToString(input.RoleName), aws.ToString(input.PolicyName)
	i.recorder.record(i.account, "IAM.DeleteRolePolicy", name, policy)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	for idx, p := range r.inline {
		if p == policy {
			r.inline = append(r.inline[:idx], r.inline[idx+1:]...)
			return &iam.DeleteRolePolicyOutput{}, nil
		}
	}
	return nil, &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("policy %q not found", policy))}
}

func (i *IAMServer) ListAttachedRolePolicies(
	ctx context.Context,
	input *iam.ListAttachedRolePoliciesInput,
	opts ...func(*iam.Options),
) (*iam.ListAttachedRolePoliciesOutput, error) {
	name := aws.ToString(input.RoleName)
	i.recorder.record(i.account, "IAM.ListAttachedRolePolicies", name)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	return &iam.ListAttachedRolePoliciesOutput{AttachedPolicies: append([]types.AttachedPolicy(nil), r.attached...)}, nil
}

func (i *IAMServer) DetachRolePolicy(
	ctx context.Context,
	input *iam.DetachRolePolicyInput,
	opts ...func(*iam.Options),
) (*iam.DetachRolePolicyOutput, error) {
	name, arn := aws.ToString(input.RoleName), aws.ToString(input.PolicyArn)
	i.recorder.record(i.account, "IAM.DetachRolePolicy", name, arn)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	for idx, p := range r.attached {
		if aws.ToString(p.PolicyArn) == arn {
			r.attached = append(r.attached[:idx], r.attached[idx+1:]...)
			return &iam.DetachRolePolicyOutput{}, nil
		}
	}
	return nil, &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("policy %q not attached", arn))}
}

func (i *IAMServer) ListInstanceProfilesForRole(
	ctx context.Context,
	input *iam.ListInstanceProfilesForRoleInput,
	opts ...func(*iam.Options),
) (*iam.ListInstanceProfilesForRoleOutput, error) {
	name := aws.ToString(input.RoleName)
	i.recorder.record(i.account, "IAM.ListInstanceProfilesForRole", name)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	out := &iam.ListInstanceProfilesForRoleOutput{}
	for _, p := range r.profiles {
		out.InstanceProfiles = append(out.InstanceProfiles, types.InstanceProfile{InstanceProfileName: aws.String(p)})
	}
	return out, nil
}

func (i *IAMServer) RemoveRoleFromInstanceProfile(
	ctx context.Context,
	input *iam.RemoveRoleFromInstanceProfileInput,
	opts ...func(*iam.Options),
) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
	name, profile := aws.ToString(input.RoleName), aws.ToString(input.InstanceProfileName)
	i.recorder.record(i.account, "IAM.RemoveRoleFromInstanceProfile", name, profile)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	for idx, p := range r.profiles {
		if p == profile {
			r.profiles = append(r.profiles[:idx], r.profiles[idx+1:]...)
			return &iam.RemoveRoleFromInstanceProfileOutput{}, nil
		}
	}
	return nil, &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("instance profile %q not found", profile))}
}

func (i *IAMServer) DeleteRole(
	ctx context.Context,
	input *iam.DeleteRoleInput,
	opts ...func(*iam.Options),
) (*iam.DeleteRoleOutput, error) {
	name := aws.ToString(input.RoleName)
	i.recorder.record(i.account, "IAM.DeleteRole", name)

	i.mu.Lock()
	defer i.mu.Unlock()
	r, err := i.role(name)
	if err != nil {
		return nil, err
	}
	if len(r.inline) > 0 || len(r.attached) > 0 || len(r.profiles) > 0 {
		return nil, &types.DeleteConflictException{Message: aws.String(fmt.Sprintf("role %q must be detached first", name))}
	}
	delete(i.roles, name)
	return &iam.DeleteRoleOutput{}, nil
}
