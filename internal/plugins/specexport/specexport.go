// Package specexport uploads every successfully published gateway document to
// object storage, keyed by environment, API and stage.
package specexport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/openapi"
	"github.com/animus-labs/apideploy/internal/orchestrator"
)

const Name = "spec-export"

// LatestStage names the object of deployments without a stage.
const LatestStage = "latest"

type Config struct {
	// Bucket overrides the store's spec bucket.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// FailOnError marks the publication failed when the upload fails.
	FailOnError bool `yaml:"failOnError"`
}

func Defaults() map[string]any {
	return map[string]any{
		"bucket":      "",
		"prefix":      "",
		"failOnError": false,
	}
}

// Store uploads objects. *objectstore.Store satisfies it.
type Store interface {
	SpecBucket() string
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

type Plugin struct {
	store Store
	log   *slog.Logger
	cfg   Config
}

func New(store Store, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Plugin{store: store, log: logger}
}

func (p *Plugin) Definition() hooks.Plugin {
	return hooks.Plugin{
		Name:      Name,
		Defaults:  Defaults(),
		Configure: p.configure,
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.AfterPublishAPI: hooks.HandleValue(p.afterPublish),
		},
	}
}

func (p *Plugin) configure(raw map[string]any) error {
	var cfg Config
	if err := hooks.DecodeConfig(raw, &cfg); err != nil {
		return err
	}
	if p.store == nil {
		return errors.New("object store is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		cfg.Bucket = p.store.SpecBucket()
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return errors.New("bucket is required")
	}
	p.cfg = cfg
	return nil
}

// Key returns the object key of the document published for report.
func (p *Plugin) Key(report orchestrator.PublishReport) string {
	stage := strings.TrimSpace(report.Context.Stage)
	if stage == "" {
		stage = LatestStage
	}
	return path.Join(p.cfg.Prefix, report.Context.Environment, report.API, stage+".json")
}

func (p *Plugin) afterPublish(ctx context.Context, report orchestrator.PublishReport) (orchestrator.PublishReport, error) {
	if !report.OK() || report.Document == nil {
		return report, nil
	}
	key := p.Key(report)
	log := p.log.With("deploy_id", report.DeployID, "api", report.API, "bucket", p.cfg.Bucket, "key", key)

	err := p.upload(ctx, key, report)
	if err == nil {
		log.Info("spec exported")
		return report, nil
	}
	if p.cfg.FailOnError {
		return report, err
	}
	log.Warn("spec export failed", "error", err)
	return report, nil
}

func (p *Plugin) upload(ctx context.Context, key string, report orchestrator.PublishReport) error {
	body, err := openapi.Marshal(report.Document)
	if err != nil {
		return fmt.Errorf("encode %s: %w", report.API, err)
	}
	if err := p.store.PutObject(ctx, p.cfg.Bucket, key, body, "application/json"); err != nil {
		return fmt.Errorf("export %s: %w", report.API, err)
	}
	return nil
}
