// Package provider declares the cloud capabilities the deployer and the
// publisher depend on. Remote state is never cached: every call reaches the
// provider.
package provider

import (
	"context"
	"time"
)

// FunctionCode is the deployable archive, inline or by storage location.
type FunctionCode struct {
	ZipFile  []byte
	S3Bucket string
	S3Key    string
}

// FunctionSpec is the desired state of a compute function.
type FunctionSpec struct {
	Name        string
	Runtime     string
	Handler     string
	RoleARN     string
	Description string
	Timeout     int32
	MemorySize  int32
	Environment map[string]string
	Code        FunctionCode
}

// Function is the remote state of a compute function or one of its versions.
type Function struct {
	Name    string
	ARN     string
	Version string
}

// Alias maps a stage name to a published function version.
type Alias struct {
	FunctionName string
	Name         string
	Version      string
	ARN          string
}

// Functions manages compute functions, versions and aliases.
type Functions interface {
	GetFunction(ctx context.Context, name string) (Function, error)
	ListFunctions(ctx context.Context) ([]Function, error)
	CreateFunction(ctx context.Context, spec FunctionSpec) (Function, error)
	UpdateFunctionCode(ctx context.Context, name string, code FunctionCode) (Function, error)
	UpdateFunctionConfiguration(ctx context.Context, spec FunctionSpec) (Function, error)
	PublishVersion(ctx context.Context, name, description string) (Function, error)
	GetAlias(ctx context.Context, functionName, alias string) (Alias, error)
	CreateAlias(ctx context.Context, alias Alias) (Alias, error)
	UpdateAlias(ctx context.Context, alias Alias) (Alias, error)
}

// RoleSpec is the desired state of an access-control role. Documents are
// JSON encoded.
type RoleSpec struct {
	Name             string
	Description      string
	AssumeRolePolicy string
}

type Role struct {
	Name string
	ARN  string
}

type PolicySpec struct {
	Name        string
	Description string
	Document    string
}

type Policy struct {
	Name           string
	ARN            string
	DefaultVersion string
}

// AccessControl manages roles and managed policies.
type AccessControl interface {
	GetRole(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, spec RoleSpec) (Role, error)
	UpdateAssumeRolePolicy(ctx context.Context, name, document string) error
	AttachRolePolicy(ctx context.Context, roleName, policyARN string) error
	GetPolicy(ctx context.Context, name string) (Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)
	CreatePolicy(ctx context.Context, spec PolicySpec) (Policy, error)
	CreatePolicyVersion(ctx context.Context, policyARN, document string) (Policy, error)
}

// RestAPI is a gateway API.
type RestAPI struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Gateway publishes API documents.
type Gateway interface {
	ListRestAPIs(ctx context.Context) ([]RestAPI, error)
	// ImportRestAPI creates a new API from body. The provider may assign a
	// generated name.
	ImportRestAPI(ctx context.Context, body []byte) (RestAPI, error)
	// PutRestAPI replaces the whole definition of an existing API.
	PutRestAPI(ctx context.Context, id string, body []byte) (RestAPI, error)
	RenameRestAPI(ctx context.Context, id, name string) (RestAPI, error)
	CreateDeployment(ctx context.Context, id, stage, description string) (string, error)
}

// Set bundles every capability of one provider.
type Set struct {
	Name          string
	Region        string
	Functions     Functions
	AccessControl AccessControl
	Gateway       Gateway
}
