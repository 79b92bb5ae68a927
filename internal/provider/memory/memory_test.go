package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/animus-labs/apideploy/internal/provider"
)

func TestFunctionLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New("eu-west-1")

	if _, err := p.GetFunction(ctx, "DEV_f1"); !provider.IsNotFound(err) {
		t.Fatalf("GetFunction() err=%v, want not found", err)
	}
	spec := provider.FunctionSpec{Name: "DEV_f1", Runtime: "nodejs20.x", Handler: "index.handler", Code: provider.FunctionCode{ZipFile: []byte("zip")}}
	fn, err := p.CreateFunction(ctx, spec)
	if err != nil {
		t.Fatalf("CreateFunction() err=%v", err)
	}
	if fn.ARN != "arn:aws:lambda:eu-west-1:000000000000:function:DEV_f1" {
		t.Fatalf("ARN=%q", fn.ARN)
	}
	if _, err := p.CreateFunction(ctx, spec); !provider.IsAlreadyExists(err) {
		t.Fatalf("CreateFunction(dup) err=%v, want already exists", err)
	}

	v1, _ := p.PublishVersion(ctx, "DEV_f1", "")
	v2, _ := p.PublishVersion(ctx, "DEV_f1", "")
	if v1.Version != "1" || v2.Version != "2" {
		t.Fatalf("versions=%q,%q", v1.Version, v2.Version)
	}

	if _, err := p.UpdateAlias(ctx, provider.Alias{FunctionName: "DEV_f1", Name: "v0", Version: "1"}); !provider.IsNotFound(err) {
		t.Fatalf("UpdateAlias(missing) err=%v, want not found", err)
	}
	alias, err := p.CreateAlias(ctx, provider.Alias{FunctionName: "DEV_f1", Name: "v0", Version: "2"})
	if err != nil {
		t.Fatalf("CreateAlias() err=%v", err)
	}
	if alias.ARN != fn.ARN+":v0" {
		t.Fatalf("alias ARN=%q", alias.ARN)
	}
	if got := p.Counts()["aliases"]; got != 1 {
		t.Fatalf("aliases=%d, want 1", got)
	}
}

func TestImportAssignsGeneratedName(t *testing.T) {
	ctx := context.Background()
	p := New("")
	api, err := p.ImportRestAPI(ctx, []byte(`{"info":{"title":"Shop (DEV-shop)"}}`))
	if err != nil {
		t.Fatalf("ImportRestAPI() err=%v", err)
	}
	if api.Name == "Shop (DEV-shop)" {
		t.Fatalf("Name=%q, want generated name", api.Name)
	}
	renamed, err := p.RenameRestAPI(ctx, api.ID, "Shop (DEV-shop)")
	if err != nil || renamed.Name != "Shop (DEV-shop)" {
		t.Fatalf("RenameRestAPI()=%+v, %v", renamed, err)
	}
	if _, err := p.ImportRestAPI(ctx, []byte(`{}`)); err == nil {
		t.Fatalf("ImportRestAPI(no title) err=nil")
	}
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	p := New("")
	boom := &provider.APIError{Service: "iam", Operation: "CreateRole", Code: "AccessDenied", Kind: provider.KindPermission}
	p.FailWith(func(op, name string) error {
		if op == "CreateRole" && name == "blocked" {
			return boom
		}
		return nil
	})
	if _, err := p.CreateRole(ctx, provider.RoleSpec{Name: "blocked"}); !errors.Is(err, boom) {
		t.Fatalf("CreateRole() err=%v, want injected", err)
	}
	if _, err := p.CreateRole(ctx, provider.RoleSpec{Name: "open"}); err != nil {
		t.Fatalf("CreateRole(open) err=%v", err)
	}
	if got := p.Calls("CreateRole"); got != 2 {
		t.Fatalf("Calls(CreateRole)=%d, want 2", got)
	}
	if provider.Remediation(boom) == "" {
		t.Fatalf("Remediation() empty for permission error")
	}
}
