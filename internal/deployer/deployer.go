// Package deployer applies the desired state of roles, policies and functions
// to the provider. Every deploy queries remote state first and then creates
// or updates; a create that conflicts falls back to update and an update of
// a missing entity falls back to create.
package deployer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/animus-labs/apideploy/internal/arn"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/platform/metrics"
	"github.com/animus-labs/apideploy/internal/project"
	"github.com/animus-labs/apideploy/internal/provider"
)

// Kind names a deployable entity kind in reports.
type Kind string

const (
	KindRole     Kind = "role"
	KindPolicy   Kind = "policy"
	KindFunction Kind = "function"
)

// Report is the outcome of one deploy.
type Report struct {
	Kind      Kind
	ID        string
	Name      string
	ARN       string
	Operation domain.Operation
	// Version is the published function version.
	Version string
}

// Registry reads project entities.
type Registry interface {
	RoleByIdentifier(id string) (domain.Role, error)
	PolicyByIdentifier(id string) (domain.Policy, error)
	LoadFunction(id string) (domain.Function, error)
}

var _ Registry = (*project.Registry)(nil)

// ArtifactStore uploads function archives. It returns the bucket holding key.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, key string, body []byte) (string, error)
}

// Deployer deploys project entities into one deployment context.
type Deployer struct {
	functions provider.Functions
	access    provider.AccessControl
	registry  Registry
	dctx      domain.DeploymentContext
	artifacts ArtifactStore
	metrics   *metrics.Recorder
	log       *slog.Logger

	// group collapses concurrent on-demand deploys of the same entity.
	group singleflight.Group
}

type Option func(*Deployer)

// WithArtifactStore uploads archives to store instead of sending them inline.
func WithArtifactStore(store ArtifactStore) Option {
	return func(d *Deployer) { d.artifacts = store }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Deployer) { d.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) {
		if logger != nil {
			d.log = logger
		}
	}
}

func New(set provider.Set, registry Registry, dctx domain.DeploymentContext, opts ...Option) (*Deployer, error) {
	if set.Functions == nil || set.AccessControl == nil {
		return nil, errors.New("deployer requires function and access-control capabilities")
	}
	if registry == nil {
		return nil, errors.New("deployer requires a registry")
	}
	if err := dctx.Validate(); err != nil {
		return nil, err
	}
	d := &Deployer{
		functions: set.Functions,
		access:    set.AccessControl,
		registry:  registry,
		dctx:      dctx,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Context returns the deployment context.
func (d *Deployer) Context() domain.DeploymentContext {
	return d.dctx
}

// RoleResolver resolves role identifiers, deploying project roles on demand.
func (d *Deployer) RoleResolver() arn.Resolver {
	return arn.Resolver{
		Kind: string(KindRole),
		Lookup: func(ctx context.Context, name string) (string, error) {
			role, err := d.access.GetRole(ctx, name)
			return role.ARN, err
		},
		IsMissing: provider.IsNotFound,
		Known: func(id string) bool {
			_, err := d.registry.RoleByIdentifier(id)
			return err == nil
		},
		Deploy: func(ctx context.Context, id string) (string, error) {
			r, err := d.once(ctx, "role:"+id, func(ctx context.Context) (Report, error) {
				role, err := d.registry.RoleByIdentifier(id)
				if err != nil {
					return Report{}, err
				}
				return d.DeployRole(ctx, role)
			})
			return r.ARN, err
		},
	}
}

// PolicyResolver resolves policy identifiers, deploying project policies on
// demand.
func (d *Deployer) PolicyResolver() arn.Resolver {
	return arn.Resolver{
		Kind: string(KindPolicy),
		Lookup: func(ctx context.Context, name string) (string, error) {
			policy, err := d.access.GetPolicy(ctx, name)
			return policy.ARN, err
		},
		IsMissing: provider.IsNotFound,
		Known: func(id string) bool {
			_, err := d.registry.PolicyByIdentifier(id)
			return err == nil
		},
		Deploy: func(ctx context.Context, id string) (string, error) {
			r, err := d.once(ctx, "policy:"+id, func(ctx context.Context) (Report, error) {
				policy, err := d.registry.PolicyByIdentifier(id)
				if err != nil {
					return Report{}, err
				}
				return d.DeployPolicy(ctx, policy)
			})
			return r.ARN, err
		},
	}
}

// FunctionResolver resolves function identifiers to their live ARN, the
// stage alias when one exists, deploying project functions on demand.
func (d *Deployer) FunctionResolver() arn.Resolver {
	return arn.Resolver{
		Kind: string(KindFunction),
		Lookup: func(ctx context.Context, name string) (string, error) {
			fn, err := d.functions.GetFunction(ctx, name)
			if err != nil || d.dctx.Stage == "" {
				return fn.ARN, err
			}
			alias, err := d.functions.GetAlias(ctx, name, d.dctx.Stage)
			if provider.IsNotFound(err) {
				return fn.ARN, nil
			}
			return alias.ARN, err
		},
		IsMissing: provider.IsNotFound,
		Known: func(id string) bool {
			_, err := d.registry.LoadFunction(id)
			return err == nil
		},
		Deploy: func(ctx context.Context, id string) (string, error) {
			r, err := d.once(ctx, "function:"+id, func(ctx context.Context) (Report, error) {
				fn, err := d.registry.LoadFunction(id)
				if err != nil {
					return Report{}, err
				}
				return d.DeployFunction(ctx, fn)
			})
			return r.ARN, err
		},
	}
}

func (d *Deployer) once(ctx context.Context, key string, fn func(context.Context) (Report, error)) (Report, error) {
	v, err, _ := d.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (d *Deployer) record(r Report, err error) {
	if err != nil {
		d.metrics.Failure(string(r.Kind))
		return
	}
	d.metrics.Operation(string(r.Kind), string(r.Operation))
	d.log.Info("entity deployed", "kind", r.Kind, "id", r.ID, "name", r.Name, "operation", r.Operation, "arn", r.ARN)
}
