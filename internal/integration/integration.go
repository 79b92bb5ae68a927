// Package integration binds deployed functions to the endpoints they serve.
package integration

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/apideploy/internal/arn"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/spec"
)

// GatewayIntegrationKey is the endpoint block read by the gateway.
const GatewayIntegrationKey = "x-amazon-apigateway-integration"

// DefaultAPIVersion is the Lambda invocation API version in integration URIs.
const DefaultAPIVersion = "2015-03-31"

// Injector rewrites endpoints backed by one deployed unit. Implementations
// never modify the endpoint they receive.
type Injector interface {
	// Target is the integration identifier the injector serves.
	Target() string
	Applies(e domain.Endpoint) bool
	Inject(ctx context.Context, e domain.Endpoint) (domain.Endpoint, error)
}

// RoleResolver converts an invocation role reference to an ARN.
type RoleResolver func(ctx context.Context, ref string) (string, error)

// LambdaInjector points endpoints referencing Function at its live ARN.
type LambdaInjector struct {
	Function   string
	ARN        string
	Region     string
	APIVersion string
	// DefaultRole is used for endpoints that declare no invocation role.
	DefaultRole string
	ResolveRole RoleResolver
}

var _ Injector = LambdaInjector{}

func (l LambdaInjector) Target() string {
	return l.Function
}

func (l LambdaInjector) Applies(e domain.Endpoint) bool {
	return e.Integration != "" && e.Integration == l.Function
}

// URI returns the gateway invocation URI of the function.
func (l LambdaInjector) URI() string {
	version := l.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("arn:%s:apigateway:%s:lambda:path/%s/functions/%s/invocations", arn.Partition(l.ARN), l.Region, version, l.ARN)
}

func (l LambdaInjector) Inject(ctx context.Context, e domain.Endpoint) (domain.Endpoint, error) {
	if !l.Applies(e) {
		return e, nil
	}
	if strings.TrimSpace(l.ARN) == "" {
		return e, fmt.Errorf("integration %s has no live ARN", l.Function)
	}
	out := e.Clone()
	if out.Spec == nil {
		out.Spec = make(spec.Fragment)
	}
	block, _ := spec.AsMap(out.Spec[GatewayIntegrationKey])
	if block == nil {
		block = make(map[string]any)
	}
	block["uri"] = l.URI()
	if _, ok := block["httpMethod"]; !ok {
		block["httpMethod"] = "POST"
	}
	if _, ok := block["type"]; !ok {
		block["type"] = "aws_proxy"
	}

	roleRef := e.InvocationRole
	if roleRef == "" {
		roleRef = l.DefaultRole
	}
	if roleRef != "" {
		credentials := roleRef
		if l.ResolveRole != nil {
			resolved, err := l.ResolveRole(ctx, roleRef)
			if err != nil {
				return e, fmt.Errorf("invocation role of %s: %w", e.ID(), err)
			}
			credentials = resolved
		}
		block["credentials"] = credentials
	}
	out.Spec[GatewayIntegrationKey] = block
	return out, nil
}

// Apply runs every applicable injector on every endpoint. Endpoints are
// processed concurrently; the result keeps the input order.
func Apply(ctx context.Context, injectors []Injector, endpoints []domain.Endpoint) ([]domain.Endpoint, error) {
	out := make([]domain.Endpoint, len(endpoints))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range endpoints {
		g.Go(func() error {
			current := e
			for _, inj := range injectors {
				if !inj.Applies(current) {
					continue
				}
				next, err := inj.Inject(ctx, current)
				if err != nil {
					return err
				}
				current = next
			}
			out[i] = current
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
