package arn

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/animus-labs/apideploy/internal/domain"
)

var errMissing = errors.New("missing")

type fakeRemote struct {
	names   map[string]string
	calls   []string
	deploys []string
}

func (f *fakeRemote) lookup(_ context.Context, name string) (string, error) {
	f.calls = append(f.calls, name)
	if arn, ok := f.names[name]; ok {
		return arn, nil
	}
	return "", errMissing
}

func (f *fakeRemote) deploy(_ context.Context, id string) (string, error) {
	f.deploys = append(f.deploys, id)
	return "arn:aws:iam::123456789012:role/DEV_" + id, nil
}

func (f *fakeRemote) resolver(known ...string) Resolver {
	return Resolver{
		Kind:      "role",
		Lookup:    f.lookup,
		IsMissing: func(err error) bool { return errors.Is(err, errMissing) },
		Known: func(id string) bool {
			for _, k := range known {
				if k == id {
					return true
				}
			}
			return false
		},
		Deploy: f.deploy,
	}
}

var devV0 = domain.DeploymentContext{Region: "eu-west-1", Environment: "DEV", Stage: "v0"}

func TestIsARN(t *testing.T) {
	cases := map[string]bool{
		"arn:aws:iam::123456789012:role/Role1":                        true,
		"arn:aws-cn:lambda:cn-north-1:123456789012:function:f1":       true,
		"arn:aws:lambda:eu-west-1:123456789012:function:DEV_f1:v0":    true,
		"arn:aws:iam::aws:policy/ReadOnlyAccess":                      true,
		"Role1":                                                       false,
		"arn:":                                                        false,
		"arn:aws:iam::12345:role/short":                               false,
	}
	for in, want := range cases {
		if got := IsARN(in); got != want {
			t.Fatalf("IsARN(%q)=%v, want %v", in, got, want)
		}
	}
	if got := Partition("arn:aws-cn:lambda:cn-north-1:123456789012:function:f1"); got != "aws-cn" {
		t.Fatalf("Partition()=%q, want aws-cn", got)
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	remote := &fakeRemote{names: map[string]string{"Role1": "arn:aws:iam::123456789012:role/Role1"}}
	res, err := remote.resolver("Role1").Trace(context.Background(), "Role1", devV0)
	if err != nil {
		t.Fatalf("Trace() err=%v", err)
	}
	if want := []string{"DEV_Role1_v0", "DEV_Role1", "Role1"}; !reflect.DeepEqual(remote.calls, want) {
		t.Fatalf("lookups=%v, want %v", remote.calls, want)
	}
	if res.ARN != "arn:aws:iam::123456789012:role/Role1" {
		t.Fatalf("ARN=%q", res.ARN)
	}
	if res.Deployed || len(remote.deploys) != 0 {
		t.Fatalf("deployed=%v deploys=%v, want no auto-deploy", res.Deployed, remote.deploys)
	}
	if !res.Attempts[2].Hit || res.Attempts[0].Hit {
		t.Fatalf("attempts=%+v", res.Attempts)
	}
}

func TestResolveMostSpecificWins(t *testing.T) {
	remote := &fakeRemote{names: map[string]string{
		"DEV_Role1_v0": "arn:aws:iam::123456789012:role/DEV_Role1_v0",
		"Role1":        "arn:aws:iam::123456789012:role/Role1",
	}}
	got, err := remote.resolver().Resolve(context.Background(), "Role1", devV0)
	if err != nil {
		t.Fatalf("Resolve() err=%v", err)
	}
	if got != "arn:aws:iam::123456789012:role/DEV_Role1_v0" || len(remote.calls) != 1 {
		t.Fatalf("Resolve()=%q calls=%v", got, remote.calls)
	}
}

func TestResolveARNPassthrough(t *testing.T) {
	remote := &fakeRemote{}
	in := "arn:aws:iam::123456789012:role/Existing"
	got, err := remote.resolver().Resolve(context.Background(), in, devV0)
	if err != nil || got != in {
		t.Fatalf("Resolve()=%q, %v, want passthrough", got, err)
	}
	if len(remote.calls) != 0 {
		t.Fatalf("lookups=%v, want none", remote.calls)
	}
}

func TestResolveDeploysKnownEntity(t *testing.T) {
	remote := &fakeRemote{}
	res, err := remote.resolver("lambdaExec").Trace(context.Background(), "lambdaExec", devV0)
	if err != nil {
		t.Fatalf("Trace() err=%v", err)
	}
	if !res.Deployed || !reflect.DeepEqual(remote.deploys, []string{"lambdaExec"}) {
		t.Fatalf("deploys=%v, want [lambdaExec]", remote.deploys)
	}
	if len(remote.calls) != 3 {
		t.Fatalf("lookups=%v, want all three candidates first", remote.calls)
	}
}

func TestResolveNotFound(t *testing.T) {
	remote := &fakeRemote{}
	_, err := remote.resolver().Resolve(context.Background(), "ghost", devV0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() err=%v, want ErrNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Identifier != "ghost" {
		t.Fatalf("Resolve() err=%v, want NotFoundError naming ghost", err)
	}
	if len(remote.deploys) != 0 {
		t.Fatalf("deploys=%v, want none for unknown identifier", remote.deploys)
	}
}

func TestResolveProviderErrorStopsChain(t *testing.T) {
	boom := errors.New("access denied")
	r := Resolver{
		Kind:      "role",
		Lookup:    func(context.Context, string) (string, error) { return "", boom },
		IsMissing: func(err error) bool { return errors.Is(err, errMissing) },
	}
	_, err := r.Resolve(context.Background(), "Role1", devV0)
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() err=%v, want provider error", err)
	}
}

func TestResolveWithoutStage(t *testing.T) {
	remote := &fakeRemote{}
	_, _ = remote.resolver().Resolve(context.Background(), "Role1", domain.DeploymentContext{Region: "r", Environment: "PROD"})
	if want := []string{"PROD_Role1", "Role1"}; !reflect.DeepEqual(remote.calls, want) {
		t.Fatalf("lookups=%v, want %v", remote.calls, want)
	}
}
