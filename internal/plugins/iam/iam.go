// Package iam exposes role and policy resolution to other plugins.
//
// Extensions:
//
//	iam:resolveRoleArn(ref string) string
//	iam:resolvePolicyArn(ref string) string
//
// Both walk the naming fallback chain and deploy project entities on demand.
package iam

import (
	"context"

	"github.com/animus-labs/apideploy/internal/arn"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
)

// Name is the plugin name.
const Name = "iam"

// Extension names as published on the bus.
const (
	ResolveRoleARN   = Name + ":resolveRoleArn"
	ResolvePolicyARN = Name + ":resolvePolicyArn"
)

// Resolvers supplies the fallback chains. *deployer.Deployer satisfies it.
type Resolvers interface {
	Context() domain.DeploymentContext
	RoleResolver() arn.Resolver
	PolicyResolver() arn.Resolver
}

// New returns the plugin definition.
func New(r Resolvers) hooks.Plugin {
	return hooks.Plugin{
		Name: Name,
		Extensions: map[string]hooks.Extension{
			"resolveRoleArn":   resolveWith(r, Resolvers.RoleResolver),
			"resolvePolicyArn": resolveWith(r, Resolvers.PolicyResolver),
		},
	}
}

func resolveWith(r Resolvers, chain func(Resolvers) arn.Resolver) hooks.Extension {
	return func(ctx context.Context, args ...any) (any, error) {
		ref, err := hooks.StringArg(args, 0)
		if err != nil {
			return nil, err
		}
		return chain(r).Resolve(ctx, ref, r.Context())
	}
}
