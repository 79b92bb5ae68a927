package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/animus-labs/apideploy/internal/orchestrator"
)

const sample = `
project: shop
region: eu-west-1
environment: DEV
stage: v0
layout:
  functions: functions
publish:
  interval: 5s
  deployStage: true
plugins:
  lambda:
    allFunctions: true
  specExport:
    bucket: exports
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"APIDEPLOY_REGION", "APIDEPLOY_ENVIRONMENT", "APIDEPLOY_STAGE", "APIDEPLOY_PROVIDER", "APIDEPLOY_PUBLISH_INTERVAL", "APIDEPLOY_PUBLISH_DEPLOY_STAGE", "AWS_REGION"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	root := writeConfig(t, sample)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.Project != "shop" || cfg.Provider != ProviderAWS || cfg.Root != root {
		t.Fatalf("cfg=%+v", cfg)
	}
	if got := cfg.PublishConfig(); got.Interval != 5*time.Second || !got.DeployStage {
		t.Fatalf("PublishConfig()=%+v", got)
	}
	layout := cfg.ProjectLayout()
	if layout.Functions != "functions" || layout.APIs != "apis" || layout.Root != root {
		t.Fatalf("ProjectLayout()=%+v", layout)
	}
	if cfg.Plugins["lambda"]["allFunctions"] != true || cfg.Plugins["specExport"]["bucket"] != "exports" {
		t.Fatalf("Plugins=%v", cfg.Plugins)
	}
	if ctx := cfg.Context(); ctx.Environment != "DEV" || ctx.Stage != "v0" || ctx.Region != "eu-west-1" {
		t.Fatalf("Context()=%+v", ctx)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APIDEPLOY_ENVIRONMENT", "PROD")
	t.Setenv("APIDEPLOY_STAGE", "v2")
	t.Setenv("APIDEPLOY_PROVIDER", "memory")
	t.Setenv("APIDEPLOY_PUBLISH_INTERVAL", "0s")
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.Environment != "PROD" || cfg.Stage != "v2" || cfg.Provider != ProviderMemory || cfg.PublishInterval() != 0 {
		t.Fatalf("cfg=%+v interval=%v", cfg, cfg.PublishInterval())
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "us-east-2")
	cfg, err := Load(writeConfig(t, "project: shop\nenvironment: DEV\n"))
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if cfg.Region != "us-east-2" || cfg.PublishInterval() != orchestrator.DefaultPublishInterval {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() err=%v, want fs.ErrNotExist", err)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("project: shop\nregoin: eu-west-1\n")); err == nil {
		t.Fatalf("Parse() accepted a misspelled key")
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("APIDEPLOY_PUBLISH_INTERVAL", "soon")
	if _, err := Load(writeConfig(t, sample)); err == nil {
		t.Fatalf("Load() err=nil")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	negative := -time.Second
	cases := map[string]func(*Config){
		"no project":       func(c *Config) { c.Project = "" },
		"unknown provider": func(c *Config) { c.Provider = "gcp" },
		"no region":        func(c *Config) { c.Region = "" },
		"bad environment":  func(c *Config) { c.Environment = "my_env" },
		"negative delay":   func(c *Config) { c.Publish.Interval = &negative },
		"absolute layout":  func(c *Config) { c.Layout.Models = "/models" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate() err=nil", name)
		}
	}
}
