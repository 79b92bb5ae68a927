// Package config loads the project configuration file and applies
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/platform/env"
	"github.com/animus-labs/apideploy/internal/project"
)

// FileName is the configuration file read from the project root.
const FileName = "apideploy.yaml"

// Providers.
const (
	ProviderAWS    = "aws"
	ProviderMemory = "memory"
)

type Publish struct {
	// Interval is the minimum delay between two gateway imports. Nil means
	// orchestrator.DefaultPublishInterval.
	Interval    *time.Duration `yaml:"interval"`
	DeployStage bool           `yaml:"deployStage"`
}

type Config struct {
	// Root is the project directory. It is not read from the file.
	Root        string                    `yaml:"-"`
	Project     string                    `yaml:"project"`
	Region      string                    `yaml:"region"`
	Environment string                    `yaml:"environment"`
	Stage       string                    `yaml:"stage"`
	Provider    string                    `yaml:"provider"`
	Layout      project.Layout            `yaml:"layout"`
	Publish     Publish                   `yaml:"publish"`
	Plugins     map[string]map[string]any `yaml:"plugins"`
}

// Load reads FileName from root and applies environment overrides. The
// result is not validated.
func Load(root string) (Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Root = root
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderAWS
	}
	return cfg, nil
}

// ApplyEnv overrides file values with APIDEPLOY_* variables.
func (c *Config) ApplyEnv() error {
	c.Region = env.Override(env.Key("REGION"), c.Region)
	if strings.TrimSpace(c.Region) == "" {
		c.Region = env.Override("AWS_REGION", "")
	}
	c.Environment = env.Override(env.Key("ENVIRONMENT"), c.Environment)
	c.Stage = env.Override(env.Key("STAGE"), c.Stage)
	c.Provider = env.Override(env.Key("PROVIDER"), c.Provider)

	interval, err := env.Duration(env.Key("PUBLISH_INTERVAL"), c.PublishInterval())
	if err != nil {
		return err
	}
	c.Publish.Interval = &interval
	deployStage, err := env.Bool(env.Key("PUBLISH_DEPLOY_STAGE"), c.Publish.DeployStage)
	if err != nil {
		return err
	}
	c.Publish.DeployStage = deployStage
	return nil
}

// PublishInterval returns the configured interval or the default.
func (c Config) PublishInterval() time.Duration {
	if c.Publish.Interval == nil {
		return orchestrator.DefaultPublishInterval
	}
	return *c.Publish.Interval
}

func (c Config) Context() domain.DeploymentContext {
	return domain.DeploymentContext{
		Region:      strings.TrimSpace(c.Region),
		Environment: strings.TrimSpace(c.Environment),
		Stage:       strings.TrimSpace(c.Stage),
	}
}

// ProjectLayout returns the layout rooted at Root with defaults applied.
func (c Config) ProjectLayout() project.Layout {
	layout := c.Layout
	layout.Root = c.Root
	return layout.WithDefaults()
}

func (c Config) PublishConfig() orchestrator.PublishConfig {
	return orchestrator.PublishConfig{
		Interval:    c.PublishInterval(),
		DeployStage: c.Publish.DeployStage,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return errors.New("project is required")
	}
	if strings.ContainsAny(c.Project, " /") {
		return fmt.Errorf("project %q must not contain spaces or slashes", c.Project)
	}
	switch c.Provider {
	case ProviderAWS, ProviderMemory:
	default:
		return fmt.Errorf("provider must be %s or %s, got %q", ProviderAWS, ProviderMemory, c.Provider)
	}
	if err := c.Context().Validate(); err != nil {
		return err
	}
	if c.PublishInterval() < 0 {
		return errors.New("publish.interval must be >= 0")
	}
	return c.ProjectLayout().Validate()
}
