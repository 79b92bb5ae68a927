package domain

import (
	"errors"
	"strings"
)

// DeploymentContext identifies where one deploy invocation lands. It is passed
// by value and never modified once the invocation has started.
type DeploymentContext struct {
	Region      string
	Environment string
	Stage       string
}

func (c DeploymentContext) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Environment) == "" {
		return errors.New("environment is required")
	}
	if strings.ContainsAny(c.Environment, "_ ") {
		return errors.New("environment must not contain underscores or spaces")
	}
	if strings.ContainsAny(c.Stage, "_ ") {
		return errors.New("stage must not contain underscores or spaces")
	}
	return nil
}

// NameCandidates returns the remote names tried for identifier, most specific
// first: {env}_{id}_{stage}, {env}_{id}, {id}. Variants that would repeat an
// earlier one because a label is empty are omitted.
func (c DeploymentContext) NameCandidates(identifier string) []string {
	env := strings.TrimSpace(c.Environment)
	stage := strings.TrimSpace(c.Stage)
	candidates := make([]string, 0, 3)
	if env != "" && stage != "" {
		candidates = append(candidates, env+"_"+identifier+"_"+stage)
	}
	if env != "" {
		candidates = append(candidates, env+"_"+identifier)
	}
	return append(candidates, identifier)
}

// DeployedName is the remote name given to entities this tool creates.
func (c DeploymentContext) DeployedName(identifier string) string {
	env := strings.TrimSpace(c.Environment)
	if env == "" {
		return identifier
	}
	return env + "_" + identifier
}

// APIMarker tags gateway API names so an existing API can be found again
// regardless of its human readable title.
func (c DeploymentContext) APIMarker(apiID string) string {
	return "(" + strings.TrimSpace(c.Environment) + "-" + apiID + ")"
}

// APIName is the full gateway name for an API with the given title.
func (c DeploymentContext) APIName(title, apiID string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = apiID
	}
	return title + " " + c.APIMarker(apiID)
}
