package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/animus-labs/apideploy/internal/deployer"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/integration"
	"github.com/animus-labs/apideploy/internal/openapi"
	"github.com/animus-labs/apideploy/internal/project"
	"github.com/animus-labs/apideploy/internal/provider"
	"github.com/animus-labs/apideploy/internal/provider/memory"
	"github.com/animus-labs/apideploy/internal/spec"
)

var devV0 = domain.DeploymentContext{Region: "eu-west-1", Environment: "DEV", Stage: "v0"}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "apis/spec.json", `{"openapi":"3.0.1","info":{"version":"1.0.0"}}`)
	writeFile(t, root, "apis/public/spec.json", `{"info":{"title":"Public"}}`)
	writeFile(t, root, "apis/admin/spec.json", `{"info":{"title":"Admin"}}`)
	writeFile(t, root, "endpoints/users/GET/spec.json", `{
		"summary": "List users",
		"x-shop": {"apis": ["public", "admin"], "integration": "f1", "role": "gatewayInvoke"},
		"responses": {"200": {"description": "ok", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/User"}}}}}
	}`)
	writeFile(t, root, "endpoints/health/GET/spec.json", `{"x-shop":{"apis":["admin"]},"responses":{"200":{"description":"ok"}}}`)
	writeFile(t, root, "endpoints/orphan/GET/spec.json", `{"responses":{"200":{"description":"ok"}}}`)
	writeFile(t, root, "models/User.json", `{"type":"object","properties":{"address":{"$ref":"#/components/schemas/Address"}}}`)
	writeFile(t, root, "models/Address.json", `{"type":"object","properties":{"city":{"type":"string"}}}`)
	writeFile(t, root, "iam/roles/lambdaExec.json", `{"assumeRolePolicyDocument":{"Version":"2012-10-17"},"managedPolicies":["logs"]}`)
	writeFile(t, root, "iam/roles/gatewayInvoke.json", `{"assumeRolePolicyDocument":{"Version":"2012-10-17"}}`)
	writeFile(t, root, "iam/policies/logs.json", `{"document":{"Version":"2012-10-17","Statement":[]}}`)
	writeFile(t, root, "lambda/lambdas/f1/config.json", `{"handler":"index.handler","runtime":"nodejs20.x","role":"lambdaExec","timeout":10,"memorySize":128}`)
	writeFile(t, root, "lambda/lambdas/f1/f1.zip", "PK-f1")
	return root
}

type harness struct {
	root     string
	registry *project.Registry
	provider *memory.Provider
	deployer *deployer.Deployer
	bus      *hooks.Bus

	mu         sync.Mutex
	operations []domain.Operation
	events     []hooks.Event
}

func newHarness(t *testing.T, root string) *harness {
	t.Helper()
	reg, err := project.New(project.Layout{Root: root}, "shop")
	if err != nil {
		t.Fatalf("project.New() err=%v", err)
	}
	p := memory.New(devV0.Region)
	d, err := deployer.New(p.Set(), reg, devV0, deployer.WithLogger(discard()))
	if err != nil {
		t.Fatalf("deployer.New() err=%v", err)
	}
	h := &harness{root: root, registry: reg, provider: p, deployer: d, bus: hooks.New(nil, discard())}
	if err := h.bus.Register(h.lambdaPlugin()); err != nil {
		t.Fatalf("Register() err=%v", err)
	}
	return h
}

// lambdaPlugin deploys f1 and binds it to the endpoints that reference it.
func (h *harness) lambdaPlugin() hooks.Plugin {
	return hooks.Plugin{
		Name: "test-lambda",
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.LoadIntegrations: hooks.HandleValue(func(ctx context.Context, ev IntegrationsEvent) (IntegrationsEvent, error) {
				fn, err := h.registry.LoadFunction("f1")
				if err != nil {
					return ev, err
				}
				report, err := h.deployer.DeployFunction(ctx, fn)
				if err != nil {
					return ev, err
				}
				h.mu.Lock()
				h.operations = append(h.operations, report.Operation)
				h.mu.Unlock()
				return ev.WithInjector(integration.LambdaInjector{
					Function: "f1",
					ARN:      report.ARN,
					Region:   ev.Context.Region,
					ResolveRole: func(ctx context.Context, ref string) (string, error) {
						return h.deployer.RoleResolver().Resolve(ctx, ref, ev.Context)
					},
				}), nil
			}),
		},
	}
}

// recorder returns a plugin noting every event it sees.
func (h *harness) recorder() hooks.Plugin {
	handlers := make(map[hooks.Event]hooks.Handler)
	for _, event := range hooks.Events {
		handlers[event] = func(_ context.Context, args []any) ([]any, error) {
			h.mu.Lock()
			h.events = append(h.events, event)
			h.mu.Unlock()
			return nil, nil
		}
	}
	return hooks.Plugin{Name: "recorder", Hooks: handlers}
}

func (h *harness) orchestrator(t *testing.T, publish PublishConfig) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Registry: h.registry,
		Bus:      h.bus,
		Gateway:  h.provider.Set().Gateway,
		Context:  devV0,
		Publish:  publish,
	}, WithLogger(discard()))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return o
}

func reportByAPI(t *testing.T, res Result, api string) PublishReport {
	t.Helper()
	for _, r := range res.Reports {
		if r.API == api {
			return r
		}
	}
	t.Fatalf("no report for api %s in %+v", api, res.Reports)
	return PublishReport{}
}

func TestDeployTwiceUpdatesEverything(t *testing.T) {
	h := newHarness(t, fixture(t))
	o := h.orchestrator(t, PublishConfig{})

	first, err := o.Deploy(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	wantStates := []domain.DeployState{
		domain.DeployStateIdle, domain.DeployStateLoading, domain.DeployStateBuildingIntegrations,
		domain.DeployStateInjectingData, domain.DeployStateAssemblingGraph, domain.DeployStatePublishing,
		domain.DeployStateDone,
	}
	if !reflect.DeepEqual(first.Transitions, wantStates) {
		t.Fatalf("Transitions=%v, want %v", first.Transitions, wantStates)
	}
	if first.DeployID == "" || first.Injectors != 1 {
		t.Fatalf("DeployID=%q Injectors=%d", first.DeployID, first.Injectors)
	}
	for _, r := range first.Reports {
		if !r.OK() || r.Operation != domain.OperationCreation {
			t.Fatalf("first report=%+v, want successful Creation", r)
		}
	}
	public := reportByAPI(t, first, "public")
	if public.Name != "Public (DEV-public)" {
		t.Fatalf("Name=%q", public.Name)
	}
	body, ok := h.provider.Document(public.GatewayID)
	if !ok || !strings.Contains(string(body), ":function:DEV_f1:v0/invocations") {
		t.Fatalf("published document lacks f1 invocation uri: %s", body)
	}
	if strings.Contains(string(body), "x-shop") {
		t.Fatalf("published document carries orchestration metadata")
	}

	second, err := o.Deploy(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Deploy() second err=%v", err)
	}
	for _, r := range second.Reports {
		if !r.OK() || r.Operation != domain.OperationUpdate {
			t.Fatalf("second report=%+v, want successful Update", r)
		}
	}
	if !reflect.DeepEqual(h.operations, []domain.Operation{domain.OperationCreation, domain.OperationUpdate}) {
		t.Fatalf("function operations=%v", h.operations)
	}
	counts := h.provider.Counts()
	if counts["apis"] != 2 || counts["functions"] != 1 || counts["roles"] != 2 || counts["policies"] != 1 {
		t.Fatalf("counts=%v, want no duplicates", counts)
	}
	if h.provider.Calls("ImportRestAPI") != 2 || h.provider.Calls("PutRestAPI") != 2 {
		t.Fatalf("Import=%d Put=%d", h.provider.Calls("ImportRestAPI"), h.provider.Calls("PutRestAPI"))
	}
	if second.DeployID == first.DeployID {
		t.Fatalf("deploy ids repeat")
	}
}

func TestDeployAssemblesMembershipAndModels(t *testing.T) {
	h := newHarness(t, fixture(t))
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	got := make(map[string][]string)
	for _, api := range res.APIs {
		for _, e := range api.Endpoints {
			got[api.ID] = append(got[api.ID], e.ID())
		}
		if len(api.Models) != 2 || api.Models[0].Name != "User" || api.Models[1].Name != "Address" {
			t.Fatalf("api %s models=%v", api.ID, api.Models)
		}
	}
	want := map[string][]string{"admin": {"GET /health", "GET /users"}, "public": {"GET /users"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("membership=%v, want %v", got, want)
	}
	admin := reportByAPI(t, res, "admin")
	credentials, _ := spec.Lookup(admin.Document, "paths", "/users", "get", integration.GatewayIntegrationKey, "credentials")
	if s, _ := credentials.(string); !strings.HasSuffix(s, ":role/DEV_gatewayInvoke") {
		t.Fatalf("credentials=%v, want deployed invocation role", credentials)
	}
}

func TestDeployKeepsSchemasOfBaseSpec(t *testing.T) {
	root := fixture(t)
	writeFile(t, root, "apis/public/spec.json", `{"info":{"title":"Public"},"components":{"schemas":{"Error":{"type":"object"}}}}`)
	writeFile(t, root, "endpoints/orders/GET/spec.json", `{
		"x-shop": {"apis": ["public"]},
		"responses": {"400": {"description": "bad", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}}
	}`)
	h := newHarness(t, root)
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	public := reportByAPI(t, res, "public")
	if !public.OK() {
		t.Fatalf("public report err=%v", public.Err)
	}
	if _, ok := spec.Lookup(public.Document, "components", "schemas", "Error"); !ok {
		t.Fatalf("published document lost base schema Error")
	}
	if _, ok := spec.Lookup(public.Document, "components", "schemas", "User"); !ok {
		t.Fatalf("published document misses model User")
	}
}

func TestPublishFailureIsIsolated(t *testing.T) {
	h := newHarness(t, fixture(t))
	h.provider.FailWith(func(op, name string) error {
		if op == "ImportRestAPI" && strings.HasPrefix(name, "Admin") {
			return &provider.APIError{Service: "apigateway", Operation: op, Code: "TooManyRequestsException", Kind: provider.KindThrottling}
		}
		return nil
	})
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Deploy() err=%v, want per-api reports only", err)
	}
	if res.State != domain.DeployStateDone {
		t.Fatalf("State=%q, want done", res.State)
	}
	admin := reportByAPI(t, res, "admin")
	if admin.OK() || admin.Code != "TooManyRequestsException" || admin.Remediation == "" {
		t.Fatalf("admin report=%+v, want throttling failure with remediation", admin)
	}
	if public := reportByAPI(t, res, "public"); !public.OK() {
		t.Fatalf("public report=%+v, want success", public)
	}
	if failed := res.Failed(); len(failed) != 1 || failed[0].API != "admin" {
		t.Fatalf("Failed()=%v", failed)
	}
}

func TestDeployFiresHooksInStageOrder(t *testing.T) {
	h := newHarness(t, fixture(t))
	if err := h.bus.Register(h.recorder()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{APIs: []string{"public"}}); err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	want := []hooks.Event{
		hooks.BeforeAPIsLoad, hooks.BeforeAPILoad, hooks.AfterAPILoad, hooks.AfterAPIsLoad,
		hooks.BeforeEndpointsLoad,
		hooks.BeforeEndpointLoad, hooks.AfterEndpointLoad,
		hooks.BeforeEndpointLoad, hooks.AfterEndpointLoad,
		hooks.BeforeEndpointLoad, hooks.AfterEndpointLoad,
		hooks.AfterEndpointsLoad,
		hooks.LoadIntegrations,
		hooks.BeforeAddIntegrationDataToEndpoints, hooks.AfterAddIntegrationDataToEndpoints,
		hooks.BeforeAddEndpointsToAPIs, hooks.AfterAddEndpointsToAPIs,
		hooks.BeforePublishAPI, hooks.AfterPublishAPI,
	}
	if !reflect.DeepEqual(h.events, want) {
		t.Fatalf("events=%v\nwant %v", h.events, want)
	}
}

func TestBeforePublishCanRewriteDocument(t *testing.T) {
	h := newHarness(t, fixture(t))
	err := h.bus.Register(hooks.Plugin{
		Name: "tagger",
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.BeforePublishAPI: hooks.HandleValue(func(_ context.Context, ev PublishEvent) (PublishEvent, error) {
				doc := spec.Clone(ev.Document)
				doc["x-amazon-apigateway-binary-media-types"] = []any{"image/png"}
				ev.Document = doc
				return ev, nil
			}),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{APIs: []string{"public"}})
	if err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	body, _ := h.provider.Document(res.Reports[0].GatewayID)
	if !strings.Contains(string(body), "image/png") {
		t.Fatalf("document rewrite lost: %s", body)
	}
}

func TestLoadingFailureIsFatal(t *testing.T) {
	root := fixture(t)
	writeFile(t, root, "endpoints/broken/POST/spec.json", `{"summary":`)
	h := newHarness(t, root)
	if err := h.bus.Register(h.recorder()); err != nil {
		t.Fatal(err)
	}
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.State != domain.DeployStateLoading {
		t.Fatalf("Deploy() err=%v, want StageError while loading", err)
	}
	var entityErr *project.EntityError
	if !errors.As(err, &entityErr) || entityErr.Kind != project.KindEndpoint {
		t.Fatalf("Deploy() err=%v, want endpoint EntityError", err)
	}
	if res.State != domain.DeployStateFailed {
		t.Fatalf("State=%q, want failed", res.State)
	}
	for _, e := range h.events {
		if e == hooks.LoadIntegrations {
			t.Fatalf("integrations built after a loading failure")
		}
	}
	if h.provider.Calls("CreateFunction") != 0 || h.provider.Calls("ImportRestAPI") != 0 {
		t.Fatalf("provider called after a loading failure")
	}
}

func TestUnknownAPIIsFatal(t *testing.T) {
	h := newHarness(t, fixture(t))
	_, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{APIs: []string{"nope"}})
	if !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("Deploy() err=%v, want ErrNotFound", err)
	}
}

func TestIntegrationHookErrorIsFatal(t *testing.T) {
	root := fixture(t)
	h := newHarness(t, root)
	boom := errors.New("deploy rejected")
	if err := h.bus.Register(hooks.Plugin{
		Name: "veto",
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.LoadIntegrations: func(context.Context, []any) ([]any, error) { return nil, boom },
		},
	}); err != nil {
		t.Fatal(err)
	}
	res, err := h.orchestrator(t, PublishConfig{}).Deploy(context.Background(), Request{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.State != domain.DeployStateBuildingIntegrations || !errors.Is(err, boom) {
		t.Fatalf("Deploy() err=%v, want StageError while building integrations", err)
	}
	if last := res.Transitions[len(res.Transitions)-1]; last != domain.DeployStateFailed {
		t.Fatalf("last transition=%q", last)
	}
	if len(res.Reports) != 0 {
		t.Fatalf("reports=%v, want none", res.Reports)
	}
}

func TestExistingAPIFoundByMarker(t *testing.T) {
	h := newHarness(t, fixture(t))
	ctx := context.Background()
	old, err := h.provider.ImportRestAPI(ctx, []byte(`{"info":{"title":"Old"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.provider.RenameRestAPI(ctx, old.ID, "Renamed Title (DEV-public)"); err != nil {
		t.Fatal(err)
	}
	res, err := h.orchestrator(t, PublishConfig{DeployStage: true}).Deploy(ctx, Request{APIs: []string{"public"}})
	if err != nil {
		t.Fatalf("Deploy() err=%v", err)
	}
	report := res.Reports[0]
	if report.Operation != domain.OperationUpdate || report.GatewayID != old.ID {
		t.Fatalf("report=%+v, want update of %s", report, old.ID)
	}
	if got := h.provider.Deployments(old.ID); !reflect.DeepEqual(got, []string{"v0"}) {
		t.Fatalf("deployments=%v, want [v0]", got)
	}
	if report.Deployment == "" {
		t.Fatalf("Deployment id not recorded")
	}
}

func TestGenerateSpecMakesNoProviderCalls(t *testing.T) {
	h := newHarness(t, fixture(t))
	docs, err := h.orchestrator(t, PublishConfig{}).GenerateSpec(context.Background(), Request{APIs: []string{"public"}}, openapi.VariantGateway)
	if err != nil {
		t.Fatalf("GenerateSpec() err=%v", err)
	}
	if len(docs) != 1 || spec.String(docs[0].Document, "info", "title") != "Public (DEV-public)" {
		t.Fatalf("docs=%+v", docs)
	}
	if _, ok := spec.Lookup(docs[0].Document, "components", "schemas", "Address"); !ok {
		t.Fatalf("transitive model missing")
	}
	for _, op := range []string{"CreateFunction", "ListRestAPIs", "ImportRestAPI"} {
		if h.provider.Calls(op) != 0 {
			t.Fatalf("%s called during spec generation", op)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	h := newHarness(t, fixture(t))
	if _, err := New(Config{Bus: h.bus, Context: devV0}); err == nil {
		t.Fatalf("New() without registry err=nil")
	}
	if _, err := New(Config{Registry: h.registry, Bus: h.bus, Context: domain.DeploymentContext{}}); err == nil {
		t.Fatalf("New() with empty context err=nil")
	}
	if _, err := New(Config{Registry: h.registry, Bus: h.bus, Context: devV0, Publish: PublishConfig{Interval: -1}}); err == nil {
		t.Fatalf("New() with negative interval err=nil")
	}
}
