package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/apideploy/internal/platform/env"
)

// Config configures the S3-compatible store holding function artifacts and
// exported specifications. An empty Endpoint disables the store.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	ArtifactBucket string
	SpecBucket     string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool(env.Key("OBJECTSTORE_USE_SSL"), true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       strings.TrimSpace(env.String(env.Key("OBJECTSTORE_ENDPOINT"), "")),
		AccessKey:      env.String(env.Key("OBJECTSTORE_ACCESS_KEY"), ""),
		SecretKey:      env.String(env.Key("OBJECTSTORE_SECRET_KEY"), ""),
		Region:         env.String(env.Key("OBJECTSTORE_REGION"), "us-east-1"),
		UseSSL:         useSSL,
		ArtifactBucket: env.String(env.Key("OBJECTSTORE_ARTIFACT_BUCKET"), "apideploy-artifacts"),
		SpecBucket:     env.String(env.Key("OBJECTSTORE_SPEC_BUCKET"), "apideploy-specs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.ArtifactBucket) == "" {
		return errors.New("artifact bucket is required")
	}
	if strings.TrimSpace(c.SpecBucket) == "" {
		return errors.New("spec bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
