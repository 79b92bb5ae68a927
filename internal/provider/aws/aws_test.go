package aws

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	"github.com/animus-labs/apideploy/internal/provider"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code     string
		notFound bool
		conflict bool
		throttle bool
		hint     bool
	}{
		{code: "ResourceNotFoundException", notFound: true},
		{code: "NoSuchEntity", notFound: true},
		{code: "NotFoundException", notFound: true},
		{code: "EntityAlreadyExists", conflict: true},
		{code: "ResourceConflictException", conflict: true},
		{code: "TooManyRequestsException", throttle: true, hint: true},
		{code: "AccessDenied", hint: true},
		{code: "BadRequestException", hint: true},
		{code: "InternalFailure"},
	}
	for _, tc := range cases {
		err := classify("svc", "Op", &smithy.GenericAPIError{Code: tc.code, Message: "m"})
		if got := provider.IsNotFound(err); got != tc.notFound {
			t.Fatalf("%s: IsNotFound()=%v, want %v", tc.code, got, tc.notFound)
		}
		if got := provider.IsAlreadyExists(err); got != tc.conflict {
			t.Fatalf("%s: IsAlreadyExists()=%v, want %v", tc.code, got, tc.conflict)
		}
		if got := provider.IsThrottling(err); got != tc.throttle {
			t.Fatalf("%s: IsThrottling()=%v, want %v", tc.code, got, tc.throttle)
		}
		if got := provider.Remediation(err) != ""; got != tc.hint {
			t.Fatalf("%s: Remediation() present=%v, want %v", tc.code, got, tc.hint)
		}
		if provider.Code(err) != tc.code {
			t.Fatalf("%s: Code()=%q", tc.code, provider.Code(err))
		}
	}
}

func TestClassifyNonAPIError(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := classify("lambda", "GetFunction", base)
	if !errors.Is(err, base) {
		t.Fatalf("classify() lost the cause: %v", err)
	}
	if classify("lambda", "GetFunction", nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() without region err=nil")
	}
	cfg.Region = "eu-west-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}
