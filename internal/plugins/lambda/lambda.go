// Package lambda deploys the functions backing endpoints and contributes one
// integration injector per deployed function.
package lambda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/apideploy/internal/arn"
	"github.com/animus-labs/apideploy/internal/deployer"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/integration"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/plugins/iam"
	"github.com/animus-labs/apideploy/internal/project"
)

// Name is the plugin name.
const Name = "lambda"

// ResolveARN is the extension returning the live ARN of a function.
const ResolveARN = Name + ":resolveArn"

type Config struct {
	// AllFunctions deploys every project function, referenced or not.
	AllFunctions bool   `yaml:"allFunctions"`
	APIVersion   string `yaml:"apiVersion"`
	// DefaultInvocationRole is used by endpoints that declare no role.
	DefaultInvocationRole string `yaml:"defaultInvocationRole"`
}

// Defaults returns the default plugin configuration.
func Defaults() map[string]any {
	return map[string]any{
		"allFunctions":          false,
		"apiVersion":            integration.DefaultAPIVersion,
		"defaultInvocationRole": "",
	}
}

// Deployer deploys functions. *deployer.Deployer satisfies it.
type Deployer interface {
	Context() domain.DeploymentContext
	DeployFunction(ctx context.Context, fn domain.Function) (deployer.Report, error)
	FunctionResolver() arn.Resolver
}

type Registry interface {
	FunctionIDs() ([]string, error)
	LoadFunction(id string) (domain.Function, error)
}

type Plugin struct {
	deployer Deployer
	registry Registry
	bus      *hooks.Bus
	log      *slog.Logger
	cfg      Config
}

// New returns the plugin. bus is used to resolve invocation roles through
// iam:resolveRoleArn; without that extension role references are used as is.
func New(d Deployer, registry Registry, bus *hooks.Bus, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Plugin{deployer: d, registry: registry, bus: bus, log: logger}
}

// Config returns the active configuration.
func (p *Plugin) Config() Config {
	return p.cfg
}

// Definition returns the plugin for registration on the bus.
func (p *Plugin) Definition() hooks.Plugin {
	return hooks.Plugin{
		Name:      Name,
		Defaults:  Defaults(),
		Configure: p.configure,
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.CreateCommand:    hooks.HandleValue(p.createCommand),
			hooks.LoadIntegrations: hooks.HandleValue(p.loadIntegrations),
		},
		Extensions: map[string]hooks.Extension{
			"resolveArn": p.resolveARN,
		},
	}
}

func (p *Plugin) configure(raw map[string]any) error {
	var cfg Config
	if err := hooks.DecodeConfig(raw, &cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = integration.DefaultAPIVersion
	}
	p.cfg = cfg
	return nil
}

func (p *Plugin) createCommand(_ context.Context, ev hooks.CommandEvent) (hooks.CommandEvent, error) {
	if ev.Name != "deploy" || ev.Command == nil {
		return ev, nil
	}
	ev.Command.Flags().BoolVar(&p.cfg.AllFunctions, "all-functions", p.cfg.AllFunctions, "deploy every project function, not only those referenced by the selected endpoints")
	return ev, nil
}

func (p *Plugin) loadIntegrations(ctx context.Context, ev orchestrator.IntegrationsEvent) (orchestrator.IntegrationsEvent, error) {
	targets, err := p.targets(ev.Endpoints)
	if err != nil {
		return ev, err
	}
	if len(targets) == 0 {
		p.log.Debug("no functions to deploy", "deploy_id", ev.DeployID)
		return ev, nil
	}
	if p.bus != nil && !p.bus.HasExtension(iam.ResolveRoleARN) {
		p.log.Debug("invocation roles used as declared", "deploy_id", ev.DeployID, "missing_extension", iam.ResolveRoleARN)
	}

	injectors := make([]integration.Injector, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range targets {
		g.Go(func() error {
			live, err := p.liveARN(gctx, id)
			if err != nil {
				return err
			}
			injectors[i] = integration.LambdaInjector{
				Function:    id,
				ARN:         live,
				Region:      ev.Context.Region,
				APIVersion:  p.cfg.APIVersion,
				DefaultRole: p.cfg.DefaultInvocationRole,
				ResolveRole: p.resolveRole,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ev, err
	}
	return ev.WithInjector(injectors...), nil
}

// targets lists the integrations referenced by endpoints, in first-seen
// order, followed by the remaining project functions when AllFunctions is set.
func (p *Plugin) targets(endpoints []domain.Endpoint) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, e := range endpoints {
		add(e.Integration)
	}
	if p.cfg.AllFunctions {
		ids, err := p.registry.FunctionIDs()
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}
		for _, id := range ids {
			add(id)
		}
	}
	return out, nil
}

// liveARN deploys the project function id, or resolves it through the naming
// chain when the project does not declare it.
func (p *Plugin) liveARN(ctx context.Context, id string) (string, error) {
	if arn.IsARN(id) {
		return id, nil
	}
	fn, err := p.registry.LoadFunction(id)
	if errors.Is(err, project.ErrNotFound) {
		resolved, rerr := p.deployer.FunctionResolver().Resolve(ctx, id, p.deployer.Context())
		if rerr != nil {
			return "", fmt.Errorf("function %s: %w", id, rerr)
		}
		p.log.Info("function resolved", "function", id, "arn", resolved)
		return resolved, nil
	}
	if err != nil {
		return "", err
	}
	report, err := p.deployer.DeployFunction(ctx, fn)
	if err != nil {
		return "", fmt.Errorf("deploy function %s: %w", id, err)
	}
	p.log.Info("function deployed", "function", id, "name", report.Name, "operation", report.Operation, "arn", report.ARN)
	return report.ARN, nil
}

func (p *Plugin) resolveRole(ctx context.Context, ref string) (string, error) {
	if p.bus == nil {
		return ref, nil
	}
	return hooks.CallString(ctx, p.bus, iam.ResolveRoleARN, ref)
}

func (p *Plugin) resolveARN(ctx context.Context, args ...any) (any, error) {
	ref, err := hooks.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	return p.deployer.FunctionResolver().Resolve(ctx, ref, p.deployer.Context())
}
