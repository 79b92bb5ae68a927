package aws

import (
	"context"
	"sort"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/animus-labs/apideploy/internal/provider"
)

// maxPolicyVersions is the IAM limit on stored versions per managed policy.
const maxPolicyVersions = 5

// AccessControl implements provider.AccessControl on IAM.
type AccessControl struct {
	client *iam.Client
}

var _ provider.AccessControl = (*AccessControl)(nil)

func (a *AccessControl) GetRole(ctx context.Context, name string) (provider.Role, error) {
	out, err := a.client.GetRole(ctx, &iam.GetRoleInput{RoleName: sdkaws.String(name)})
	if err != nil {
		return provider.Role{}, classify("iam", "GetRole", err)
	}
	return fromRole(out.Role), nil
}

func (a *AccessControl) ListRoles(ctx context.Context) ([]provider.Role, error) {
	var roles []provider.Role
	pages := iam.NewListRolesPaginator(a.client, &iam.ListRolesInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("iam", "ListRoles", err)
		}
		for i := range page.Roles {
			roles = append(roles, fromRole(&page.Roles[i]))
		}
	}
	return roles, nil
}

func (a *AccessControl) CreateRole(ctx context.Context, spec provider.RoleSpec) (provider.Role, error) {
	in := &iam.CreateRoleInput{
		RoleName:                 sdkaws.String(spec.Name),
		AssumeRolePolicyDocument: sdkaws.String(spec.AssumeRolePolicy),
	}
	if spec.Description != "" {
		in.Description = sdkaws.String(spec.Description)
	}
	out, err := a.client.CreateRole(ctx, in)
	if err != nil {
		return provider.Role{}, classify("iam", "CreateRole", err)
	}
	return fromRole(out.Role), nil
}

func (a *AccessControl) UpdateAssumeRolePolicy(ctx context.Context, name, document string) error {
	_, err := a.client.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       sdkaws.String(name),
		PolicyDocument: sdkaws.String(document),
	})
	return classify("iam", "UpdateAssumeRolePolicy", err)
}

func (a *AccessControl) AttachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	_, err := a.client.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  sdkaws.String(roleName),
		PolicyArn: sdkaws.String(policyARN),
	})
	return classify("iam", "AttachRolePolicy", err)
}

// GetPolicy finds a customer managed policy by name. IAM only reads policies
// by ARN, so the local scope is listed.
func (a *AccessControl) GetPolicy(ctx context.Context, name string) (provider.Policy, error) {
	policies, err := a.ListPolicies(ctx)
	if err != nil {
		return provider.Policy{}, err
	}
	for _, p := range policies {
		if p.Name == name {
			return p, nil
		}
	}
	return provider.Policy{}, &provider.APIError{Service: "iam", Operation: "GetPolicy", Code: "NoSuchEntity", Message: "policy " + name + " not found", Kind: provider.KindNotFound}
}

func (a *AccessControl) ListPolicies(ctx context.Context) ([]provider.Policy, error) {
	var policies []provider.Policy
	pages := iam.NewListPoliciesPaginator(a.client, &iam.ListPoliciesInput{Scope: types.PolicyScopeTypeLocal})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("iam", "ListPolicies", err)
		}
		for i := range page.Policies {
			policies = append(policies, fromPolicy(&page.Policies[i]))
		}
	}
	return policies, nil
}

func (a *AccessControl) CreatePolicy(ctx context.Context, spec provider.PolicySpec) (provider.Policy, error) {
	in := &iam.CreatePolicyInput{
		PolicyName:     sdkaws.String(spec.Name),
		PolicyDocument: sdkaws.String(spec.Document),
	}
	if spec.Description != "" {
		in.Description = sdkaws.String(spec.Description)
	}
	out, err := a.client.CreatePolicy(ctx, in)
	if err != nil {
		return provider.Policy{}, classify("iam", "CreatePolicy", err)
	}
	return fromPolicy(out.Policy), nil
}

// CreatePolicyVersion stores document as the new default version, deleting
// the oldest non-default version first when the limit is reached.
func (a *AccessControl) CreatePolicyVersion(ctx context.Context, policyARN, document string) (provider.Policy, error) {
	if err := a.pruneVersions(ctx, policyARN); err != nil {
		return provider.Policy{}, err
	}
	out, err := a.client.CreatePolicyVersion(ctx, &iam.CreatePolicyVersionInput{
		PolicyArn:      sdkaws.String(policyARN),
		PolicyDocument: sdkaws.String(document),
		SetAsDefault:   true,
	})
	if err != nil {
		return provider.Policy{}, classify("iam", "CreatePolicyVersion", err)
	}
	policy := provider.Policy{ARN: policyARN}
	if out.PolicyVersion != nil {
		policy.DefaultVersion = str(out.PolicyVersion.VersionId)
	}
	return policy, nil
}

func (a *AccessControl) pruneVersions(ctx context.Context, policyARN string) error {
	out, err := a.client.ListPolicyVersions(ctx, &iam.ListPolicyVersionsInput{PolicyArn: sdkaws.String(policyARN)})
	if err != nil {
		return classify("iam", "ListPolicyVersions", err)
	}
	if len(out.Versions) < maxPolicyVersions {
		return nil
	}
	var old []types.PolicyVersion
	for _, v := range out.Versions {
		if !v.IsDefaultVersion {
			old = append(old, v)
		}
	}
	if len(old) == 0 {
		return nil
	}
	sort.Slice(old, func(i, j int) bool {
		return sdkaws.ToTime(old[i].CreateDate).Before(sdkaws.ToTime(old[j].CreateDate))
	})
	_, err = a.client.DeletePolicyVersion(ctx, &iam.DeletePolicyVersionInput{
		PolicyArn: sdkaws.String(policyARN),
		VersionId: old[0].VersionId,
	})
	return classify("iam", "DeletePolicyVersion", err)
}

func fromRole(r *types.Role) provider.Role {
	if r == nil {
		return provider.Role{}
	}
	return provider.Role{Name: str(r.RoleName), ARN: str(r.Arn)}
}

func fromPolicy(p *types.Policy) provider.Policy {
	if p == nil {
		return provider.Policy{}
	}
	return provider.Policy{Name: str(p.PolicyName), ARN: str(p.Arn), DefaultVersion: str(p.DefaultVersionId)}
}
