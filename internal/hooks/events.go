package hooks

import "github.com/spf13/cobra"

// Event names a hook fired by the orchestrator or the CLI.
type Event string

const (
	BeforeAPIsLoad      Event = "beforeApisLoad"
	AfterAPIsLoad       Event = "afterApisLoad"
	BeforeAPILoad       Event = "beforeApiLoad"
	AfterAPILoad        Event = "afterApiLoad"
	BeforeEndpointsLoad Event = "beforeEndpointsLoad"
	AfterEndpointsLoad  Event = "afterEndpointsLoad"
	BeforeEndpointLoad  Event = "beforeEndpointLoad"
	AfterEndpointLoad   Event = "afterEndpointLoad"

	LoadIntegrations Event = "loadIntegrations"

	BeforeAddIntegrationDataToEndpoints Event = "beforeAddIntegrationDataToEndpoints"
	AfterAddIntegrationDataToEndpoints  Event = "afterAddIntegrationDataToEndpoints"
	BeforeAddEndpointsToAPIs            Event = "beforeAddEndpointsToApis"
	AfterAddEndpointsToAPIs             Event = "afterAddEndpointsToApis"

	BeforePublishAPI Event = "beforePublishApi"
	AfterPublishAPI  Event = "afterPublishApi"

	CreateCommand Event = "createCommand"
)

// Events lists every hook in pipeline order.
var Events = []Event{
	BeforeAPIsLoad, BeforeAPILoad, AfterAPILoad, AfterAPIsLoad,
	BeforeEndpointsLoad, BeforeEndpointLoad, AfterEndpointLoad, AfterEndpointsLoad,
	LoadIntegrations,
	BeforeAddIntegrationDataToEndpoints, AfterAddIntegrationDataToEndpoints,
	BeforeAddEndpointsToAPIs, AfterAddEndpointsToAPIs,
	BeforePublishAPI, AfterPublishAPI,
	CreateCommand,
}

// CommandEvent is the payload of CreateCommand. Handlers add flags to
// Command; Name is the command path, e.g. "deploy".
type CommandEvent struct {
	Name    string
	Command *cobra.Command
}
