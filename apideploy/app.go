package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/animus-labs/apideploy/internal/arn"
	"github.com/animus-labs/apideploy/internal/config"
	"github.com/animus-labs/apideploy/internal/deployer"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/platform/metrics"
	"github.com/animus-labs/apideploy/internal/platform/objectstore"
	"github.com/animus-labs/apideploy/internal/platform/postgres"
	"github.com/animus-labs/apideploy/internal/plugins/history"
	"github.com/animus-labs/apideploy/internal/plugins/iam"
	"github.com/animus-labs/apideploy/internal/plugins/lambda"
	"github.com/animus-labs/apideploy/internal/plugins/specexport"
	"github.com/animus-labs/apideploy/internal/project"
	"github.com/animus-labs/apideploy/internal/provider"
	awsprovider "github.com/animus-labs/apideploy/internal/provider/aws"
	"github.com/animus-labs/apideploy/internal/provider/memory"
)

// app holds the process-wide wiring. Plugins are registered at startup; the
// provider and deployer are built once command flags are parsed.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	out      io.Writer
	registry *project.Registry
	bus      *hooks.Bus
	metrics  *metrics.Recorder
	store    *objectstore.Store
	db       *sql.DB

	handle   *deployerHandle
	provider provider.Set
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	registry, err := project.New(cfg.ProjectLayout(), cfg.Project)
	if err != nil {
		return nil, configError(err)
	}
	a := &app{
		cfg:      cfg,
		log:      logger,
		out:      out,
		registry: registry,
		bus:      hooks.New(cfg.Plugins, logger),
		metrics:  metrics.New(),
		handle:   &deployerHandle{},
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, configError(fmt.Errorf("object store: %w", err))
	}
	if storeCfg.Enabled() {
		if a.store, err = objectstore.New(storeCfg); err != nil {
			return nil, err
		}
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, configError(fmt.Errorf("deploy history: %w", err))
	}
	if dbCfg.Enabled() {
		if a.db, err = postgres.Open(ctx, dbCfg); err != nil {
			return nil, fmt.Errorf("deploy history unavailable: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, a.db); err != nil {
			_ = a.db.Close()
			return nil, err
		}
	}

	if err := a.registerPlugins(); err != nil {
		a.Close()
		return nil, configError(err)
	}
	return a, nil
}

func (a *app) registerPlugins() error {
	plugins := []hooks.Plugin{
		iam.New(a.handle),
		lambda.New(a.handle, a.registry, a.bus, a.log).Definition(),
	}
	if a.store != nil {
		plugins = append(plugins, specexport.New(a.store, a.log).Definition())
	}
	if a.db != nil {
		plugins = append(plugins, history.New(history.DBRecorder{DB: a.db}, a.log).Definition())
	}
	for _, p := range plugins {
		if err := a.bus.Register(p); err != nil {
			return err
		}
	}
	a.logHookCoverage()
	return nil
}

// logHookCoverage logs the effective plugin configuration and which events
// have at least one handler.
func (a *app) logHookCoverage() {
	for _, name := range a.bus.Plugins() {
		cfg, _ := a.bus.Config(name)
		a.log.Debug("plugin config", "plugin", name, "config", cfg)
	}
	var handled, unhandled []string
	for _, event := range hooks.Events {
		if a.bus.Implements(event) {
			handled = append(handled, string(event))
		} else {
			unhandled = append(unhandled, string(event))
		}
	}
	a.log.Debug("hook coverage", "handled", handled, "unhandled", unhandled)
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// contextFlags override the deployment context of the project file.
type contextFlags struct {
	environment string
	stage       string
	region      string
	provider    string
}

func (f contextFlags) apply(cfg config.Config) config.Config {
	if f.environment != "" {
		cfg.Environment = f.environment
	}
	if f.stage != "" {
		cfg.Stage = f.stage
	}
	if f.region != "" {
		cfg.Region = f.region
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	return cfg
}

// prepare validates the effective configuration and builds the provider set
// and deployer.
func (a *app) prepare(ctx context.Context, flags contextFlags) error {
	cfg := flags.apply(a.cfg)
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	a.cfg = cfg

	set, err := a.providerSet(ctx, cfg.Provider)
	if err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.EnsureBuckets(ctx); err != nil {
			return err
		}
	}
	opts := []deployer.Option{deployer.WithLogger(a.log), deployer.WithMetrics(a.metrics)}
	if a.store != nil {
		opts = append(opts, deployer.WithArtifactStore(a.store))
	}
	d, err := deployer.New(set, a.registry, cfg.Context(), opts...)
	if err != nil {
		return err
	}
	a.provider = set
	a.handle.d = d
	a.log.Info("deployment context",
		"provider", set.Name,
		"region", cfg.Region,
		"environment", cfg.Environment,
		"stage", cfg.Stage,
	)
	return nil
}

func (a *app) providerSet(ctx context.Context, name string) (provider.Set, error) {
	switch name {
	case config.ProviderMemory:
		return memory.New(a.cfg.Region).Set(), nil
	case config.ProviderAWS:
		awsCfg, err := awsprovider.ConfigFromEnv()
		if err != nil {
			return provider.Set{}, configError(err)
		}
		awsCfg.Region = a.cfg.Region
		set, err := awsprovider.New(ctx, awsCfg)
		if err != nil {
			return provider.Set{}, configError(err)
		}
		return set, nil
	}
	return provider.Set{}, configError(fmt.Errorf("unknown provider %q", name))
}

func (a *app) orchestrator() (*orchestrator.Orchestrator, error) {
	if a.provider.Gateway == nil {
		return nil, errors.New("provider not prepared")
	}
	return orchestrator.New(orchestrator.Config{
		Registry: a.registry,
		Bus:      a.bus,
		Gateway:  a.provider.Gateway,
		Context:  a.cfg.Context(),
		Publish:  a.cfg.PublishConfig(),
	}, orchestrator.WithLogger(a.log), orchestrator.WithMetrics(a.metrics))
}

func (a *app) deployer() *deployer.Deployer {
	return a.handle.d
}

func (a *app) writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log.Warn("metrics not written", "path", path, "error", err)
	}
}

// deployerHandle lets plugins registered at startup reach the deployer built
// by prepare.
type deployerHandle struct {
	d *deployer.Deployer
}

func (h *deployerHandle) Context() domain.DeploymentContext {
	return h.d.Context()
}

func (h *deployerHandle) RoleResolver() arn.Resolver {
	return h.d.RoleResolver()
}

func (h *deployerHandle) PolicyResolver() arn.Resolver {
	return h.d.PolicyResolver()
}

func (h *deployerHandle) FunctionResolver() arn.Resolver {
	return h.d.FunctionResolver()
}

func (h *deployerHandle) DeployFunction(ctx context.Context, fn domain.Function) (deployer.Report, error) {
	return h.d.DeployFunction(ctx, fn)
}
