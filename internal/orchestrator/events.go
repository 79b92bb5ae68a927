package orchestrator

import (
	"time"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/integration"
	"github.com/animus-labs/apideploy/internal/spec"
)

// Hook payloads. Each event carries exactly one payload value; handlers
// return a new value rather than modifying the one they receive.
//
//	beforeApisLoad, beforeEndpointsLoad     []string (identifiers to load)
//	beforeApiLoad, beforeEndpointLoad       string
//	afterApiLoad                            domain.API
//	afterApisLoad                           []domain.API
//	afterEndpointLoad                       domain.Endpoint
//	afterEndpointsLoad                      []domain.Endpoint
//	loadIntegrations, *AddIntegrationData*  IntegrationsEvent
//	*AddEndpointsToApis                     AssemblyEvent
//	beforePublishApi                        PublishEvent
//	afterPublishApi                         PublishReport

// IntegrationsEvent is threaded through the integration stages. Plugins
// implementing loadIntegrations append one injector per deployed unit.
type IntegrationsEvent struct {
	DeployID  string
	Context   domain.DeploymentContext
	Endpoints []domain.Endpoint
	Injectors []integration.Injector
}

// WithInjector returns a copy of e with inj appended.
func (e IntegrationsEvent) WithInjector(inj ...integration.Injector) IntegrationsEvent {
	out := e
	out.Injectors = append(append([]integration.Injector(nil), e.Injectors...), inj...)
	return out
}

// AssemblyEvent carries the graph while endpoints are attached to APIs.
type AssemblyEvent struct {
	APIs      []domain.API
	Endpoints []domain.Endpoint
}

// PublishEvent is fired before one API document is sent to the gateway.
// Handlers may return a modified Document.
type PublishEvent struct {
	DeployID string
	Context  domain.DeploymentContext
	API      domain.API
	Document spec.Fragment
}

// PublishReport is the outcome of publishing one API.
type PublishReport struct {
	DeployID string
	Context  domain.DeploymentContext
	API      string
	// Name is the gateway name, "{title} ({env}-{api})".
	Name      string
	GatewayID string
	Operation domain.Operation
	// Deployment is the id of the stage deployment, when one was created.
	Deployment string
	Document   spec.Fragment
	StartedAt  time.Time
	FinishedAt time.Time

	Err         error
	Code        string
	Remediation string
}

// OK reports whether the API was published.
func (r PublishReport) OK() bool {
	return r.Err == nil
}
