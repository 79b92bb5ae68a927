// Package orchestrator runs one deploy invocation through its stages:
// loading, building integrations, injecting integration data, assembling the
// API graph and publishing. Stages run strictly in order; work inside a stage
// runs concurrently where entities are independent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/integration"
	"github.com/animus-labs/apideploy/internal/platform/metrics"
	"github.com/animus-labs/apideploy/internal/project"
	"github.com/animus-labs/apideploy/internal/provider"
)

// DefaultPublishInterval spaces gateway imports to stay under the provider
// rate limit for API creation.
const DefaultPublishInterval = 30 * time.Second

// Registry reads the entities the pipeline needs.
type Registry interface {
	ExtensionKey() string
	APIIDs() ([]string, error)
	LoadAPI(id string) (domain.API, error)
	EndpointIDs() ([]string, error)
	LoadEndpoint(id string) (domain.Endpoint, error)
	ResolveModels(api domain.API, endpoints []domain.Endpoint) ([]domain.Model, error)
}

var _ Registry = (*project.Registry)(nil)

// PublishConfig controls the Publishing stage.
type PublishConfig struct {
	Interval time.Duration
	// DeployStage creates a stage deployment named after the context stage
	// once the document is published.
	DeployStage bool
}

// Config wires an orchestrator.
type Config struct {
	Registry Registry
	Bus      *hooks.Bus
	Gateway  provider.Gateway
	Context  domain.DeploymentContext
	Publish  PublishConfig
}

// Orchestrator runs deploy invocations for one deployment context.
type Orchestrator struct {
	registry  Registry
	bus       *hooks.Bus
	gateway   provider.Gateway
	dctx      domain.DeploymentContext
	publish   PublishConfig
	scheduler func() *Scheduler
	metrics   *metrics.Recorder
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.log = logger
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithScheduler replaces the publish scheduler factory.
func WithScheduler(fn func() *Scheduler) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.scheduler = fn
		}
	}
}

func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator requires a registry")
	}
	if cfg.Bus == nil {
		return nil, errors.New("orchestrator requires an event bus")
	}
	if err := cfg.Context.Validate(); err != nil {
		return nil, err
	}
	if cfg.Publish.Interval < 0 {
		return nil, errors.New("publish interval must be >= 0")
	}
	o := &Orchestrator{
		registry: cfg.Registry,
		bus:      cfg.Bus,
		gateway:  cfg.Gateway,
		dctx:     cfg.Context,
		publish:  cfg.Publish,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	o.scheduler = func() *Scheduler { return NewScheduler(o.publish.Interval) }
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Request selects what one invocation deploys.
type Request struct {
	// APIs lists API identifiers to deploy. Empty selects every API.
	APIs []string
}

// Result describes one deploy invocation.
type Result struct {
	DeployID    string
	Context     domain.DeploymentContext
	State       domain.DeployState
	Transitions []domain.DeployState
	APIs        []domain.API
	Injectors   int
	Reports     []PublishReport
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Failed returns the reports of APIs that were not published.
func (r Result) Failed() []PublishReport {
	var out []PublishReport
	for _, report := range r.Reports {
		if !report.OK() {
			out = append(out, report)
		}
	}
	return out
}

// StageError is a pipeline-fatal failure.
type StageError struct {
	State domain.DeployState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy failed while %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type run struct {
	o       *Orchestrator
	result  *Result
	log     *slog.Logger
	entered time.Time
}

func (o *Orchestrator) start() *run {
	now := o.now().UTC()
	res := &Result{
		DeployID:    o.newID(),
		Context:     o.dctx,
		State:       domain.DeployStateIdle,
		Transitions: []domain.DeployState{domain.DeployStateIdle},
		StartedAt:   now,
	}
	return &run{o: o, result: res, log: o.log.With("deploy_id", res.DeployID), entered: now}
}

// advance moves the run to next and records how long the previous stage took.
func (r *run) advance(next domain.DeployState) {
	current := r.result.State
	if !domain.CanTransitionDeployState(current, next) {
		r.log.Error("invalid deploy state transition", "from", current, "to", next)
		return
	}
	now := r.o.now().UTC()
	if current != domain.DeployStateIdle {
		r.o.metrics.ObserveStage(string(current), now.Sub(r.entered))
	}
	r.entered = now
	r.result.State = next
	r.result.Transitions = append(r.result.Transitions, next)
	r.log.Debug("deploy state", "state", next)
}

func (r *run) fail(err error) (Result, error) {
	state := r.result.State
	r.advance(domain.DeployStateFailed)
	r.result.FinishedAt = r.o.now().UTC()
	r.log.Error("deploy failed", "state", state, "error", err)
	return *r.result, &StageError{State: state, Err: err}
}

// Deploy runs the full pipeline. Publication failures are reported per API in
// Result.Reports and do not produce an error; failures in earlier stages are
// returned as *StageError.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (Result, error) {
	if o.gateway == nil {
		return Result{}, errors.New("deploy requires a gateway capability")
	}
	r := o.start()
	r.log.Info("deploy started", "region", o.dctx.Region, "environment", o.dctx.Environment, "stage", o.dctx.Stage)

	r.advance(domain.DeployStateLoading)
	apis, endpoints, err := o.load(ctx, req.APIs)
	if err != nil {
		return r.fail(err)
	}

	r.advance(domain.DeployStateBuildingIntegrations)
	ev, err := hooks.FireValue(ctx, o.bus, hooks.LoadIntegrations, IntegrationsEvent{
		DeployID:  r.result.DeployID,
		Context:   o.dctx,
		Endpoints: endpoints,
	})
	if err != nil {
		return r.fail(err)
	}
	r.result.Injectors = len(ev.Injectors)

	r.advance(domain.DeployStateInjectingData)
	endpoints, err = o.inject(ctx, ev)
	if err != nil {
		return r.fail(err)
	}

	r.advance(domain.DeployStateAssemblingGraph)
	apis, err = o.assemble(ctx, apis, endpoints)
	if err != nil {
		return r.fail(err)
	}
	r.result.APIs = apis

	r.advance(domain.DeployStatePublishing)
	r.result.Reports = o.publishAll(ctx, r.result.DeployID, apis)

	r.advance(domain.DeployStateDone)
	r.result.FinishedAt = o.now().UTC()
	failed := len(r.result.Failed())
	if failed == 0 {
		o.metrics.Completed(r.result.FinishedAt)
	}
	r.log.Info("deploy finished", "apis", len(apis), "failed", failed, "duration", r.result.FinishedAt.Sub(r.result.StartedAt))
	return *r.result, nil
}

func (o *Orchestrator) inject(ctx context.Context, ev IntegrationsEvent) ([]domain.Endpoint, error) {
	ev, err := hooks.FireValue(ctx, o.bus, hooks.BeforeAddIntegrationDataToEndpoints, ev)
	if err != nil {
		return nil, err
	}
	endpoints, err := integration.Apply(ctx, ev.Injectors, ev.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("inject integration data: %w", err)
	}
	ev.Endpoints = endpoints
	ev, err = hooks.FireValue(ctx, o.bus, hooks.AfterAddIntegrationDataToEndpoints, ev)
	if err != nil {
		return nil, err
	}
	return ev.Endpoints, nil
}
