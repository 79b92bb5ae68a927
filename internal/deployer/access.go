package deployer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/provider"
)

// DeployPolicy creates the policy or stores its document as the new default
// version.
func (d *Deployer) DeployPolicy(ctx context.Context, policy domain.Policy) (report Report, err error) {
	name := d.dctx.DeployedName(policy.ID)
	report = Report{Kind: KindPolicy, ID: policy.ID, Name: name}
	defer func() { d.record(report, err) }()

	document, err := json.Marshal(policy.Document)
	if err != nil {
		return report, fmt.Errorf("encode policy %s: %w", policy.ID, err)
	}

	existing, err := d.access.GetPolicy(ctx, name)
	switch {
	case provider.IsNotFound(err):
		created, cerr := d.access.CreatePolicy(ctx, provider.PolicySpec{Name: name, Description: policy.Description, Document: string(document)})
		if cerr == nil {
			report.ARN = created.ARN
			report.Operation = domain.OperationCreation
			return report, nil
		}
		if !provider.IsAlreadyExists(cerr) {
			return report, fmt.Errorf("create policy %s: %w", name, cerr)
		}
		if existing, err = d.access.GetPolicy(ctx, name); err != nil {
			return report, fmt.Errorf("get policy %s: %w", name, err)
		}
	case err != nil:
		return report, fmt.Errorf("get policy %s: %w", name, err)
	}

	if _, err := d.access.CreatePolicyVersion(ctx, existing.ARN, string(document)); err != nil {
		return report, fmt.Errorf("update policy %s: %w", name, err)
	}
	report.ARN = existing.ARN
	report.Operation = domain.OperationUpdate
	return report, nil
}

// DeployRole creates or updates the role and attaches its managed policies.
// Policies are resolved through the fallback chain, so project policies are
// deployed first when missing.
func (d *Deployer) DeployRole(ctx context.Context, role domain.Role) (report Report, err error) {
	name := d.dctx.DeployedName(role.ID)
	report = Report{Kind: KindRole, ID: role.ID, Name: name}
	defer func() { d.record(report, err) }()

	trust, err := json.Marshal(role.AssumeRolePolicy)
	if err != nil {
		return report, fmt.Errorf("encode trust policy of %s: %w", role.ID, err)
	}

	existing, err := d.access.GetRole(ctx, name)
	switch {
	case provider.IsNotFound(err):
		created, cerr := d.access.CreateRole(ctx, provider.RoleSpec{Name: name, Description: role.Description, AssumeRolePolicy: string(trust)})
		switch {
		case cerr == nil:
			report.ARN = created.ARN
			report.Operation = domain.OperationCreation
		case provider.IsAlreadyExists(cerr):
			if existing, err = d.updateRole(ctx, name, string(trust)); err != nil {
				return report, err
			}
			report.ARN = existing.ARN
			report.Operation = domain.OperationUpdate
		default:
			return report, fmt.Errorf("create role %s: %w", name, cerr)
		}
	case err != nil:
		return report, fmt.Errorf("get role %s: %w", name, err)
	default:
		if err := d.access.UpdateAssumeRolePolicy(ctx, name, string(trust)); err != nil {
			return report, fmt.Errorf("update role %s: %w", name, err)
		}
		report.ARN = existing.ARN
		report.Operation = domain.OperationUpdate
	}

	policies := d.PolicyResolver()
	for _, ref := range role.ManagedPolicies {
		policyARN, err := policies.Resolve(ctx, ref, d.dctx)
		if err != nil {
			return report, fmt.Errorf("role %s: %w", role.ID, err)
		}
		if err := d.access.AttachRolePolicy(ctx, name, policyARN); err != nil {
			return report, fmt.Errorf("attach %s to role %s: %w", policyARN, name, err)
		}
	}
	return report, nil
}

func (d *Deployer) updateRole(ctx context.Context, name, trust string) (provider.Role, error) {
	if err := d.access.UpdateAssumeRolePolicy(ctx, name, trust); err != nil {
		return provider.Role{}, fmt.Errorf("update role %s: %w", name, err)
	}
	role, err := d.access.GetRole(ctx, name)
	if err != nil {
		return provider.Role{}, fmt.Errorf("get role %s: %w", name, err)
	}
	return role, nil
}
