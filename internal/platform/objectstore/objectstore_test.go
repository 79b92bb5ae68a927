package objectstore

import (
	"context"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:       "s3.eu-west-1.amazonaws.com",
		AccessKey:      "a",
		SecretKey:      "b",
		Region:         "eu-west-1",
		UseSSL:         true,
		ArtifactBucket: "artifacts",
		SpecBucket:     "specs",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "https://s3.eu-west-1.amazonaws.com"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}
	invalid = valid
	invalid.SpecBucket = ""
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for missing spec bucket")
	}

	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("disabled Validate() err=%v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("APIDEPLOY_OBJECTSTORE_ENDPOINT", "")
	cfg, err := ConfigFromEnv()
	if err != nil || cfg.Enabled() {
		t.Fatalf("ConfigFromEnv()=%+v, %v, want disabled", cfg, err)
	}
	if _, err := New(cfg); err == nil {
		t.Fatalf("New() on disabled config err=nil")
	}

	t.Setenv("APIDEPLOY_OBJECTSTORE_ENDPOINT", "localhost:9000")
	t.Setenv("APIDEPLOY_OBJECTSTORE_ACCESS_KEY", "minio")
	t.Setenv("APIDEPLOY_OBJECTSTORE_SECRET_KEY", "minio123")
	t.Setenv("APIDEPLOY_OBJECTSTORE_USE_SSL", "false")
	cfg, err = ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if !cfg.Enabled() || cfg.UseSSL || cfg.ArtifactBucket != "apideploy-artifacts" {
		t.Fatalf("cfg=%+v", cfg)
	}
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if store.SpecBucket() != "apideploy-specs" {
		t.Fatalf("SpecBucket()=%q", store.SpecBucket())
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if _, err := s.PutArtifact(context.Background(), "k", nil); err == nil {
		t.Fatalf("PutArtifact() on nil store err=nil")
	}
	if err := s.PutObject(context.Background(), "b", "k", nil, "application/json"); err == nil {
		t.Fatalf("PutObject() on nil store err=nil")
	}
}
