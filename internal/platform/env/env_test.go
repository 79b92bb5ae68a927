package env

import (
	"reflect"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("REGION"); got != "APIDEPLOY_REGION" {
		t.Fatalf("Key()=%q, want APIDEPLOY_REGION", got)
	}
}

func TestString(t *testing.T) {
	if got := String("APIDEPLOY_TEST_STRING_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("APIDEPLOY_TEST_STRING", "value")
	if got := String("APIDEPLOY_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestOverride(t *testing.T) {
	t.Setenv("APIDEPLOY_TEST_OVERRIDE", " ")
	if got := Override("APIDEPLOY_TEST_OVERRIDE", "file"); got != "file" {
		t.Fatalf("Override(blank)=%q, want file", got)
	}
	t.Setenv("APIDEPLOY_TEST_OVERRIDE", " env ")
	if got := Override("APIDEPLOY_TEST_OVERRIDE", "file"); got != "env" {
		t.Fatalf("Override()=%q, want env", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("APIDEPLOY_TEST_DURATION", "250ms")
	got, err := Duration("APIDEPLOY_TEST_DURATION", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, %v, want 250ms", got, err)
	}

	t.Setenv("APIDEPLOY_TEST_DURATION_BLANK", "  ")
	got, err = Duration("APIDEPLOY_TEST_DURATION_BLANK", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration(blank)=%v, %v, want default", got, err)
	}

	t.Setenv("APIDEPLOY_TEST_DURATION_INVALID", "soon")
	if _, err := Duration("APIDEPLOY_TEST_DURATION_INVALID", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("APIDEPLOY_TEST_BOOL", "false")
	got, err := Bool("APIDEPLOY_TEST_BOOL", true)
	if err != nil || got {
		t.Fatalf("Bool()=%v, %v, want false", got, err)
	}
	t.Setenv("APIDEPLOY_TEST_BOOL_INVALID", "nope")
	if _, err := Bool("APIDEPLOY_TEST_BOOL_INVALID", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("APIDEPLOY_TEST_INT_UNSET", 42)
	if err != nil || got != 42 {
		t.Fatalf("Int()=%v, %v, want 42", got, err)
	}
	t.Setenv("APIDEPLOY_TEST_INT_INVALID", "seven")
	if _, err := Int("APIDEPLOY_TEST_INT_INVALID", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestStrings(t *testing.T) {
	def := []string{"a"}
	if got := Strings("APIDEPLOY_TEST_STRINGS_UNSET", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("Strings()=%v, want default", got)
	}
	t.Setenv("APIDEPLOY_TEST_STRINGS", " public, ,admin ")
	if got := Strings("APIDEPLOY_TEST_STRINGS", def); !reflect.DeepEqual(got, []string{"public", "admin"}) {
		t.Fatalf("Strings()=%v, want [public admin]", got)
	}
}
