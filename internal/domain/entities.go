// Package domain holds the in-memory entity graph built for one invocation.
package domain

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/animus-labs/apideploy/internal/spec"
)

// HTTPMethods are the directory names recognised as endpoint leaves.
var HTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "ANY"}

// IsHTTPMethod reports whether name is one of HTTPMethods, ignoring case.
func IsHTTPMethod(name string) bool {
	return slices.Contains(HTTPMethods, strings.ToUpper(name))
}

// ExtensionKey is the reserved fragment key carrying orchestration metadata.
func ExtensionKey(project string) string {
	return "x-" + strings.TrimSpace(project)
}

// Metadata keys inside the extension block.
const (
	MetaAPIs        = "apis"
	MetaIntegration = "integration"
	MetaRole        = "role"
)

// Endpoint is one HTTP method on one resource path.
type Endpoint struct {
	Method       string
	ResourcePath string
	Spec         spec.Fragment
	// APIs lists the APIs this endpoint declares itself exposed by.
	APIs []string
	// Integration is the identifier of the function serving this endpoint.
	Integration string
	// InvocationRole is the role the gateway assumes to call the integration.
	InvocationRole string
}

// EndpointID formats the identity of an endpoint.
func EndpointID(method, resourcePath string) string {
	return strings.ToUpper(method) + " " + resourcePath
}

// ParseEndpointID accepts "GET /a/b" as well as "/a/b/GET".
func ParseEndpointID(id string) (string, string, error) {
	id = strings.TrimSpace(id)
	if method, path, ok := strings.Cut(id, " "); ok && IsHTTPMethod(method) {
		return strings.ToUpper(method), normalizePath(path), nil
	}
	if i := strings.LastIndex(id, "/"); i >= 0 && IsHTTPMethod(id[i+1:]) {
		return strings.ToUpper(id[i+1:]), normalizePath(id[:i]), nil
	}
	return "", "", fmt.Errorf("invalid endpoint identifier %q", id)
}

func normalizePath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return p
}

func (e Endpoint) ID() string {
	return EndpointID(e.Method, e.ResourcePath)
}

// ExposedBy reports whether the endpoint declares membership of apiID.
func (e Endpoint) ExposedBy(apiID string) bool {
	return slices.Contains(e.APIs, apiID)
}

// Clone returns a copy that shares no mutable state with e.
func (e Endpoint) Clone() Endpoint {
	out := e
	out.Spec = spec.Clone(e.Spec)
	out.APIs = slices.Clone(e.APIs)
	return out
}

// Model is a named schema.
type Model struct {
	Name string
	Spec spec.Fragment
	// Refs are the names of other models this schema references.
	Refs []string
}

// API is a gateway API and the graph assembled for it.
type API struct {
	ID        string
	Spec      spec.Fragment
	Endpoints []Endpoint
	Models    []Model
}

// Title returns info.title of the base specification.
func (a API) Title() string {
	return spec.String(a.Spec, "info", "title")
}

// SchemaNames returns the schemas the base specification defines itself,
// under components.schemas or definitions.
func (a API) SchemaNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, path := range [][]string{{"components", "schemas"}, {"definitions"}} {
		v, _ := spec.Lookup(a.Spec, path...)
		schemas, _ := spec.AsMap(v)
		for name := range schemas {
			names[name] = struct{}{}
		}
	}
	return names
}

// FunctionConfig holds the deployment parameters of a compute function.
type FunctionConfig struct {
	Handler     string            `json:"handler" yaml:"handler" validate:"required"`
	Runtime     string            `json:"runtime" yaml:"runtime" validate:"required"`
	Role        string            `json:"role" yaml:"role" validate:"required"`
	Timeout     int32             `json:"timeout" yaml:"timeout" validate:"min=1,max=900"`
	MemorySize  int32             `json:"memorySize" yaml:"memorySize" validate:"min=128,max=10240"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Artifact    string            `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}

// Function defaults applied when a config leaves the field out.
const (
	DefaultTimeout    int32 = 3
	DefaultMemorySize int32 = 128
)

// WithDefaults returns c with a zero Timeout or MemorySize replaced by its
// default.
func (c FunctionConfig) WithDefaults() FunctionConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MemorySize == 0 {
		c.MemorySize = DefaultMemorySize
	}
	return c
}

// Function is a compute deployment unit declared in the project.
type Function struct {
	ID     string
	Dir    string
	Config FunctionConfig
}

// ArtifactPath returns the absolute path of the deployable archive.
func (f Function) ArtifactPath() string {
	artifact := strings.TrimSpace(f.Config.Artifact)
	if artifact == "" {
		artifact = f.ID + ".zip"
	}
	if filepath.IsAbs(artifact) {
		return artifact
	}
	return filepath.Join(f.Dir, artifact)
}

// Role is an access-control role declared in the project.
type Role struct {
	ID               string         `json:"identifier" yaml:"identifier"`
	Description      string         `json:"description,omitempty" yaml:"description,omitempty"`
	AssumeRolePolicy map[string]any `json:"assumeRolePolicyDocument" yaml:"assumeRolePolicyDocument"`
	ManagedPolicies  []string       `json:"managedPolicies,omitempty" yaml:"managedPolicies,omitempty"`
}

// Policy is a managed permission policy declared in the project.
type Policy struct {
	ID          string         `json:"identifier" yaml:"identifier"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Document    map[string]any `json:"document" yaml:"document"`
}
