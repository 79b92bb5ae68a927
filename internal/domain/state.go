package domain

import "strings"

// DeployState is the position of one deploy invocation in the pipeline.
type DeployState string

const (
	DeployStateIdle                 DeployState = "idle"
	DeployStateLoading              DeployState = "loading"
	DeployStateBuildingIntegrations DeployState = "building_integrations"
	DeployStateInjectingData        DeployState = "injecting_data"
	DeployStateAssemblingGraph      DeployState = "assembling_graph"
	DeployStatePublishing           DeployState = "publishing"
	DeployStateDone                 DeployState = "done"
	DeployStateFailed               DeployState = "failed"
)

// NormalizeDeployState maps free-form values to canonical deploy states.
func NormalizeDeployState(value string) DeployState {
	switch s := DeployState(strings.ToLower(strings.TrimSpace(value))); s {
	case DeployStateIdle, DeployStateLoading, DeployStateBuildingIntegrations,
		DeployStateInjectingData, DeployStateAssemblingGraph, DeployStatePublishing,
		DeployStateDone, DeployStateFailed:
		return s
	default:
		return ""
	}
}

// CanTransitionDeployState permits only the next stage in order, or Failed
// from any non-terminal state.
func CanTransitionDeployState(current, next DeployState) bool {
	if current == "" || next == "" {
		return false
	}
	if IsTerminalDeployState(current) {
		return false
	}
	if next == DeployStateFailed {
		return true
	}
	return deployStateOrder(next) == deployStateOrder(current)+1
}

// IsTerminalDeployState reports whether no further transition is allowed.
func IsTerminalDeployState(state DeployState) bool {
	return state == DeployStateDone || state == DeployStateFailed
}

func deployStateOrder(state DeployState) int {
	switch state {
	case DeployStateIdle:
		return 1
	case DeployStateLoading:
		return 2
	case DeployStateBuildingIntegrations:
		return 3
	case DeployStateInjectingData:
		return 4
	case DeployStateAssemblingGraph:
		return 5
	case DeployStatePublishing:
		return 6
	case DeployStateDone:
		return 7
	default:
		return 0
	}
}

// Operation is what a create-or-update call ended up doing remotely.
type Operation string

const (
	OperationCreation Operation = "Creation"
	OperationUpdate   Operation = "Update"
)
