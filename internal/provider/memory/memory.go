// Package memory is an in-process provider holding all remote state in maps.
// It backs tests and rehearsal runs (--provider memory).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/apideploy/internal/provider"
)

const account = "000000000000"

var (
	_ provider.Functions     = (*Provider)(nil)
	_ provider.AccessControl = (*Provider)(nil)
	_ provider.Gateway       = (*Provider)(nil)
)

// FailFunc decides whether a call fails. name is the resource the call acts
// on (function, role or policy name; API id or title for the gateway).
type FailFunc func(op, name string) error

type function struct {
	spec     provider.FunctionSpec
	versions int
}

type api struct {
	rest        provider.RestAPI
	body        []byte
	deployments []string
}

// Provider stores remote state for every capability.
type Provider struct {
	region string
	now    func() time.Time

	mu        sync.Mutex
	calls     map[string]int
	fail      FailFunc
	functions map[string]*function
	aliases   map[string]provider.Alias
	roles     map[string]provider.RoleSpec
	attached  map[string][]string
	policies  map[string]provider.Policy
	documents map[string][]string
	apis      map[string]*api
	nextAPI   int
}

// New returns an empty provider for region.
func New(region string) *Provider {
	if region == "" {
		region = "us-east-1"
	}
	return &Provider{
		region:    region,
		now:       time.Now,
		calls:     make(map[string]int),
		functions: make(map[string]*function),
		aliases:   make(map[string]provider.Alias),
		roles:     make(map[string]provider.RoleSpec),
		attached:  make(map[string][]string),
		policies:  make(map[string]provider.Policy),
		documents: make(map[string][]string),
		apis:      make(map[string]*api),
	}
}

// Set returns the provider as a capability set.
func (p *Provider) Set() provider.Set {
	return provider.Set{Name: "memory", Region: p.region, Functions: p, AccessControl: p, Gateway: p}
}

// FailWith installs fn as the failure injector. nil clears it.
func (p *Provider) FailWith(fn FailFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fn
}

// Calls returns how often op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Counts returns the number of stored resources per kind.
func (p *Provider) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"functions": len(p.functions),
		"aliases":   len(p.aliases),
		"roles":     len(p.roles),
		"policies":  len(p.policies),
		"apis":      len(p.apis),
	}
}

// Document returns the last body published to API id.
func (p *Provider) Document(id string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.apis[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), a.body...), true
}

// Deployments returns the stage deployments created for API id.
func (p *Provider) Deployments(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.apis[id]; ok {
		return append([]string(nil), a.deployments...)
	}
	return nil
}

// AttachedPolicies returns the policy ARNs attached to role.
func (p *Provider) AttachedPolicies(role string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attached[role]...)
}

// call records op and applies the failure injector. Callers hold mu.
func (p *Provider) call(op, name string) error {
	p.calls[op]++
	if p.fail == nil {
		return nil
	}
	return p.fail(op, name)
}

func notFound(service, op, name string) error {
	return &provider.APIError{Service: service, Operation: op, Code: "NotFound", Message: name + " does not exist", Kind: provider.KindNotFound}
}

func conflict(service, op, name string) error {
	return &provider.APIError{Service: service, Operation: op, Code: "Conflict", Message: name + " already exists", Kind: provider.KindConflict}
}

func (p *Provider) functionARN(name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", p.region, account, name)
}

// Functions.

func (p *Provider) GetFunction(_ context.Context, name string) (provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("GetFunction", name); err != nil {
		return provider.Function{}, err
	}
	if _, ok := p.functions[name]; !ok {
		return provider.Function{}, notFound("lambda", "GetFunction", name)
	}
	return provider.Function{Name: name, ARN: p.functionARN(name), Version: "$LATEST"}, nil
}

func (p *Provider) ListFunctions(context.Context) ([]provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ListFunctions", ""); err != nil {
		return nil, err
	}
	out := make([]provider.Function, 0, len(p.functions))
	for name := range p.functions {
		out = append(out, provider.Function{Name: name, ARN: p.functionARN(name), Version: "$LATEST"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Provider) CreateFunction(_ context.Context, spec provider.FunctionSpec) (provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateFunction", spec.Name); err != nil {
		return provider.Function{}, err
	}
	if _, ok := p.functions[spec.Name]; ok {
		return provider.Function{}, conflict("lambda", "CreateFunction", spec.Name)
	}
	if len(spec.Code.ZipFile) == 0 && spec.Code.S3Key == "" {
		return provider.Function{}, &provider.APIError{Service: "lambda", Operation: "CreateFunction", Code: "InvalidParameterValueException", Message: "code is required", Kind: provider.KindInvalid}
	}
	p.functions[spec.Name] = &function{spec: spec}
	return provider.Function{Name: spec.Name, ARN: p.functionARN(spec.Name), Version: "$LATEST"}, nil
}

func (p *Provider) UpdateFunctionCode(_ context.Context, name string, code provider.FunctionCode) (provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("UpdateFunctionCode", name); err != nil {
		return provider.Function{}, err
	}
	fn, ok := p.functions[name]
	if !ok {
		return provider.Function{}, notFound("lambda", "UpdateFunctionCode", name)
	}
	fn.spec.Code = code
	return provider.Function{Name: name, ARN: p.functionARN(name), Version: "$LATEST"}, nil
}

func (p *Provider) UpdateFunctionConfiguration(_ context.Context, spec provider.FunctionSpec) (provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("UpdateFunctionConfiguration", spec.Name); err != nil {
		return provider.Function{}, err
	}
	fn, ok := p.functions[spec.Name]
	if !ok {
		return provider.Function{}, notFound("lambda", "UpdateFunctionConfiguration", spec.Name)
	}
	code := fn.spec.Code
	fn.spec = spec
	fn.spec.Code = code
	return provider.Function{Name: spec.Name, ARN: p.functionARN(spec.Name), Version: "$LATEST"}, nil
}

func (p *Provider) PublishVersion(_ context.Context, name, _ string) (provider.Function, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("PublishVersion", name); err != nil {
		return provider.Function{}, err
	}
	fn, ok := p.functions[name]
	if !ok {
		return provider.Function{}, notFound("lambda", "PublishVersion", name)
	}
	fn.versions++
	version := strconv.Itoa(fn.versions)
	return provider.Function{Name: name, ARN: p.functionARN(name) + ":" + version, Version: version}, nil
}

func (p *Provider) GetAlias(_ context.Context, functionName, alias string) (provider.Alias, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("GetAlias", functionName); err != nil {
		return provider.Alias{}, err
	}
	a, ok := p.aliases[functionName+":"+alias]
	if !ok {
		return provider.Alias{}, notFound("lambda", "GetAlias", functionName+":"+alias)
	}
	return a, nil
}

func (p *Provider) CreateAlias(_ context.Context, alias provider.Alias) (provider.Alias, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateAlias", alias.FunctionName); err != nil {
		return provider.Alias{}, err
	}
	if _, ok := p.functions[alias.FunctionName]; !ok {
		return provider.Alias{}, notFound("lambda", "CreateAlias", alias.FunctionName)
	}
	key := alias.FunctionName + ":" + alias.Name
	if _, ok := p.aliases[key]; ok {
		return provider.Alias{}, conflict("lambda", "CreateAlias", key)
	}
	alias.ARN = p.functionARN(alias.FunctionName) + ":" + alias.Name
	p.aliases[key] = alias
	return alias, nil
}

func (p *Provider) UpdateAlias(_ context.Context, alias provider.Alias) (provider.Alias, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("UpdateAlias", alias.FunctionName); err != nil {
		return provider.Alias{}, err
	}
	key := alias.FunctionName + ":" + alias.Name
	if _, ok := p.aliases[key]; !ok {
		return provider.Alias{}, notFound("lambda", "UpdateAlias", key)
	}
	alias.ARN = p.functionARN(alias.FunctionName) + ":" + alias.Name
	p.aliases[key] = alias
	return alias, nil
}

// Access control.

func (p *Provider) roleARN(name string) string {
	return "arn:aws:iam::" + account + ":role/" + name
}

func (p *Provider) policyARN(name string) string {
	return "arn:aws:iam::" + account + ":policy/" + name
}

func (p *Provider) GetRole(_ context.Context, name string) (provider.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("GetRole", name); err != nil {
		return provider.Role{}, err
	}
	if _, ok := p.roles[name]; !ok {
		return provider.Role{}, notFound("iam", "GetRole", name)
	}
	return provider.Role{Name: name, ARN: p.roleARN(name)}, nil
}

func (p *Provider) ListRoles(context.Context) ([]provider.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ListRoles", ""); err != nil {
		return nil, err
	}
	out := make([]provider.Role, 0, len(p.roles))
	for name := range p.roles {
		out = append(out, provider.Role{Name: name, ARN: p.roleARN(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Provider) CreateRole(_ context.Context, spec provider.RoleSpec) (provider.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateRole", spec.Name); err != nil {
		return provider.Role{}, err
	}
	if _, ok := p.roles[spec.Name]; ok {
		return provider.Role{}, conflict("iam", "CreateRole", spec.Name)
	}
	p.roles[spec.Name] = spec
	return provider.Role{Name: spec.Name, ARN: p.roleARN(spec.Name)}, nil
}

func (p *Provider) UpdateAssumeRolePolicy(_ context.Context, name, document string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("UpdateAssumeRolePolicy", name); err != nil {
		return err
	}
	spec, ok := p.roles[name]
	if !ok {
		return notFound("iam", "UpdateAssumeRolePolicy", name)
	}
	spec.AssumeRolePolicy = document
	p.roles[name] = spec
	return nil
}

func (p *Provider) AttachRolePolicy(_ context.Context, roleName, policyARN string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("AttachRolePolicy", roleName); err != nil {
		return err
	}
	if _, ok := p.roles[roleName]; !ok {
		return notFound("iam", "AttachRolePolicy", roleName)
	}
	for _, existing := range p.attached[roleName] {
		if existing == policyARN {
			return nil
		}
	}
	p.attached[roleName] = append(p.attached[roleName], policyARN)
	return nil
}

func (p *Provider) GetPolicy(_ context.Context, name string) (provider.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("GetPolicy", name); err != nil {
		return provider.Policy{}, err
	}
	policy, ok := p.policies[name]
	if !ok {
		return provider.Policy{}, notFound("iam", "GetPolicy", name)
	}
	return policy, nil
}

func (p *Provider) ListPolicies(context.Context) ([]provider.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ListPolicies", ""); err != nil {
		return nil, err
	}
	out := make([]provider.Policy, 0, len(p.policies))
	for _, policy := range p.policies {
		out = append(out, policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *Provider) CreatePolicy(_ context.Context, spec provider.PolicySpec) (provider.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreatePolicy", spec.Name); err != nil {
		return provider.Policy{}, err
	}
	if _, ok := p.policies[spec.Name]; ok {
		return provider.Policy{}, conflict("iam", "CreatePolicy", spec.Name)
	}
	policy := provider.Policy{Name: spec.Name, ARN: p.policyARN(spec.Name), DefaultVersion: "v1"}
	p.policies[spec.Name] = policy
	p.documents[policy.ARN] = []string{spec.Document}
	return policy, nil
}

func (p *Provider) CreatePolicyVersion(_ context.Context, policyARN, document string) (provider.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreatePolicyVersion", policyARN); err != nil {
		return provider.Policy{}, err
	}
	for name, policy := range p.policies {
		if policy.ARN != policyARN {
			continue
		}
		p.documents[policyARN] = append(p.documents[policyARN], document)
		policy.DefaultVersion = "v" + strconv.Itoa(len(p.documents[policyARN]))
		p.policies[name] = policy
		return policy, nil
	}
	return provider.Policy{}, notFound("iam", "CreatePolicyVersion", policyARN)
}

// Gateway.

func (p *Provider) ListRestAPIs(context.Context) ([]provider.RestAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("ListRestAPIs", ""); err != nil {
		return nil, err
	}
	out := make([]provider.RestAPI, 0, len(p.apis))
	for _, a := range p.apis {
		out = append(out, a.rest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Provider) ImportRestAPI(_ context.Context, body []byte) (provider.RestAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	title, err := documentTitle(body)
	if err != nil {
		p.calls["ImportRestAPI"]++
		return provider.RestAPI{}, &provider.APIError{Service: "apigateway", Operation: "ImportRestAPI", Code: "BadRequestException", Message: err.Error(), Kind: provider.KindInvalid}
	}
	if err := p.call("ImportRestAPI", title); err != nil {
		return provider.RestAPI{}, err
	}
	p.nextAPI++
	id := fmt.Sprintf("api%04d", p.nextAPI)
	// The import assigns its own name; callers rename afterwards.
	rest := provider.RestAPI{ID: id, Name: "imported-" + id, CreatedAt: p.now().UTC()}
	p.apis[id] = &api{rest: rest, body: append([]byte(nil), body...)}
	return rest, nil
}

func (p *Provider) PutRestAPI(_ context.Context, id string, body []byte) (provider.RestAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("PutRestAPI", id); err != nil {
		return provider.RestAPI{}, err
	}
	a, ok := p.apis[id]
	if !ok {
		return provider.RestAPI{}, notFound("apigateway", "PutRestAPI", id)
	}
	title, err := documentTitle(body)
	if err != nil {
		return provider.RestAPI{}, &provider.APIError{Service: "apigateway", Operation: "PutRestAPI", Code: "BadRequestException", Message: err.Error(), Kind: provider.KindInvalid}
	}
	a.body = append([]byte(nil), body...)
	a.rest.Name = title
	return a.rest, nil
}

func (p *Provider) RenameRestAPI(_ context.Context, id, name string) (provider.RestAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("RenameRestAPI", id); err != nil {
		return provider.RestAPI{}, err
	}
	a, ok := p.apis[id]
	if !ok {
		return provider.RestAPI{}, notFound("apigateway", "RenameRestAPI", id)
	}
	a.rest.Name = name
	return a.rest, nil
}

func (p *Provider) CreateDeployment(_ context.Context, id, stage, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateDeployment", id); err != nil {
		return "", err
	}
	a, ok := p.apis[id]
	if !ok {
		return "", notFound("apigateway", "CreateDeployment", id)
	}
	a.deployments = append(a.deployments, stage)
	return fmt.Sprintf("%s-deployment-%d", id, len(a.deployments)), nil
}

func documentTitle(body []byte) (string, error) {
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode document: %w", err)
	}
	if strings.TrimSpace(doc.Info.Title) == "" {
		return "", fmt.Errorf("document has no info.title")
	}
	return doc.Info.Title, nil
}
