// Package project reads the entities declared in a project tree.
//
// Directory layout (each root is configurable):
//
//	apis/<api>/spec.{json,yaml}                   API base fragments, aggregated from apis/
//	endpoints/<path segments>/<METHOD>/spec.*     endpoint fragments, aggregated from endpoints/
//	models/<name>.{json,yaml}                     schemas
//	lambda/lambdas/<id>/config.{json,yaml}        function deployment parameters
//	iam/roles/<id>.{json,yaml}                    roles
//	iam/policies/<id>.{json,yaml}                 managed policies
//
// Registries hold no cache: every call reads the tree again.
package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Layout names the directories holding each entity kind, relative to Root.
type Layout struct {
	Root               string `yaml:"-"`
	APIs               string `yaml:"apis"`
	Endpoints          string `yaml:"endpoints"`
	Models             string `yaml:"models"`
	Functions          string `yaml:"functions"`
	Roles              string `yaml:"roles"`
	Policies           string `yaml:"policies"`
	FragmentName       string `yaml:"fragmentName"`
	FunctionConfigName string `yaml:"functionConfigName"`
}

// DefaultLayout returns the conventional layout rooted at root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:               root,
		APIs:               "apis",
		Endpoints:          "endpoints",
		Models:             "models",
		Functions:          filepath.Join("lambda", "lambdas"),
		Roles:              filepath.Join("iam", "roles"),
		Policies:           filepath.Join("iam", "policies"),
		FragmentName:       "spec",
		FunctionConfigName: "config",
	}
}

// WithDefaults fills empty fields from DefaultLayout.
func (l Layout) WithDefaults() Layout {
	def := DefaultLayout(l.Root)
	if l.APIs == "" {
		l.APIs = def.APIs
	}
	if l.Endpoints == "" {
		l.Endpoints = def.Endpoints
	}
	if l.Models == "" {
		l.Models = def.Models
	}
	if l.Functions == "" {
		l.Functions = def.Functions
	}
	if l.Roles == "" {
		l.Roles = def.Roles
	}
	if l.Policies == "" {
		l.Policies = def.Policies
	}
	if l.FragmentName == "" {
		l.FragmentName = def.FragmentName
	}
	if l.FunctionConfigName == "" {
		l.FunctionConfigName = def.FunctionConfigName
	}
	return l
}

func (l Layout) Validate() error {
	if strings.TrimSpace(l.Root) == "" {
		return errors.New("project root is required")
	}
	for name, dir := range map[string]string{
		"apis": l.APIs, "endpoints": l.Endpoints, "models": l.Models,
		"functions": l.Functions, "roles": l.Roles, "policies": l.Policies,
	} {
		if filepath.IsAbs(dir) {
			return fmt.Errorf("layout %s must be relative to the project root: %q", name, dir)
		}
	}
	return nil
}

func (l Layout) path(dir string) string {
	return filepath.Join(l.Root, dir)
}
