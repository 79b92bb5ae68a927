package integration

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/spec"
)

const f1ARN = "arn:aws:lambda:eu-west-1:123456789012:function:DEV_f1:v0"

func endpoint(method, path, integration string, block map[string]any) domain.Endpoint {
	s := spec.Fragment{"summary": path}
	if block != nil {
		s[GatewayIntegrationKey] = block
	}
	return domain.Endpoint{Method: method, ResourcePath: path, Spec: s, Integration: integration}
}

func f1Injector() LambdaInjector {
	return LambdaInjector{
		Function: "f1",
		ARN:      f1ARN,
		Region:   "eu-west-1",
		ResolveRole: func(_ context.Context, ref string) (string, error) {
			return "arn:aws:iam::123456789012:role/DEV_" + ref, nil
		},
	}
}

func TestURI(t *testing.T) {
	want := "arn:aws:apigateway:eu-west-1:lambda:path/2015-03-31/functions/" + f1ARN + "/invocations"
	if got := f1Injector().URI(); got != want {
		t.Fatalf("URI()=%q, want %q", got, want)
	}
	cn := LambdaInjector{ARN: "arn:aws-cn:lambda:cn-north-1:123456789012:function:f", Region: "cn-north-1", APIVersion: "2020-01-01"}
	if got := cn.URI(); got != "arn:aws-cn:apigateway:cn-north-1:lambda:path/2020-01-01/functions/arn:aws-cn:lambda:cn-north-1:123456789012:function:f/invocations" {
		t.Fatalf("URI()=%q", got)
	}
}

func TestApplyTargetsOnlyMatchingEndpoints(t *testing.T) {
	original := map[string]any{"type": "mock", "uri": "keep-me"}
	endpoints := []domain.Endpoint{
		endpoint("GET", "/users", "f1", map[string]any{"passthroughBehavior": "when_no_match"}),
		endpoint("GET", "/other", "f2", original),
		endpoint("GET", "/static", "", nil),
	}
	endpoints[0].InvocationRole = "gatewayInvoke"

	out, err := Apply(context.Background(), []Injector{f1Injector()}, endpoints)
	if err != nil {
		t.Fatalf("Apply() err=%v", err)
	}

	block, _ := spec.AsMap(out[0].Spec[GatewayIntegrationKey])
	want := map[string]any{
		"passthroughBehavior": "when_no_match",
		"uri":                 "arn:aws:apigateway:eu-west-1:lambda:path/2015-03-31/functions/" + f1ARN + "/invocations",
		"httpMethod":          "POST",
		"type":                "aws_proxy",
		"credentials":         "arn:aws:iam::123456789012:role/DEV_gatewayInvoke",
	}
	if !reflect.DeepEqual(block, want) {
		t.Fatalf("f1 block=%v, want %v", block, want)
	}
	if !reflect.DeepEqual(out[1].Spec[GatewayIntegrationKey], map[string]any{"type": "mock", "uri": "keep-me"}) {
		t.Fatalf("f2 block modified: %v", out[1].Spec[GatewayIntegrationKey])
	}
	if _, ok := out[2].Spec[GatewayIntegrationKey]; ok {
		t.Fatalf("endpoint without integration gained a block")
	}
	if _, ok := endpoints[0].Spec[GatewayIntegrationKey].(map[string]any)["uri"]; ok {
		t.Fatalf("input endpoint was mutated")
	}
}

func TestInjectKeepsExplicitType(t *testing.T) {
	e := endpoint("POST", "/orders", "f1", map[string]any{"type": "aws", "httpMethod": "POST"})
	out, err := f1Injector().Inject(context.Background(), e)
	if err != nil {
		t.Fatalf("Inject() err=%v", err)
	}
	block := out.Spec[GatewayIntegrationKey].(map[string]any)
	if block["type"] != "aws" {
		t.Fatalf("type=%v, want aws", block["type"])
	}
	if _, ok := block["credentials"]; ok {
		t.Fatalf("credentials set without a role reference")
	}
}

func TestInjectDefaultRole(t *testing.T) {
	inj := f1Injector()
	inj.DefaultRole = "apiInvoke"
	out, err := inj.Inject(context.Background(), endpoint("GET", "/a", "f1", nil))
	if err != nil {
		t.Fatalf("Inject() err=%v", err)
	}
	if got := out.Spec[GatewayIntegrationKey].(map[string]any)["credentials"]; got != "arn:aws:iam::123456789012:role/DEV_apiInvoke" {
		t.Fatalf("credentials=%v", got)
	}
}

func TestApplyRoleErrorFails(t *testing.T) {
	inj := f1Injector()
	boom := errors.New("role not found")
	inj.ResolveRole = func(context.Context, string) (string, error) { return "", boom }
	e := endpoint("GET", "/a", "f1", nil)
	e.InvocationRole = "ghost"
	if _, err := Apply(context.Background(), []Injector{inj}, []domain.Endpoint{e}); !errors.Is(err, boom) {
		t.Fatalf("Apply() err=%v, want role error", err)
	}
}
