// Package history records every publication report as a deploy history
// event. Recording failures are logged and never change the report.
package history

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/platform/auditlog"
)

const Name = "deploy-history"

// KindAPI is the entity kind of publication events.
const KindAPI = "api"

type Recorder interface {
	Record(ctx context.Context, event auditlog.Event) (int64, error)
}

// DBRecorder inserts events with auditlog.Insert.
type DBRecorder struct {
	DB auditlog.QueryRower
}

func (r DBRecorder) Record(ctx context.Context, event auditlog.Event) (int64, error) {
	return auditlog.Insert(ctx, r.DB, event)
}

type Plugin struct {
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
}

func New(recorder Recorder, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Plugin{recorder: recorder, log: logger, now: time.Now}
}

func (p *Plugin) Definition() hooks.Plugin {
	return hooks.Plugin{
		Name: Name,
		Hooks: map[hooks.Event]hooks.Handler{
			hooks.AfterPublishAPI: hooks.HandleValue(p.afterPublish),
		},
	}
}

// Event converts a publication report to a history event.
func Event(report orchestrator.PublishReport) auditlog.Event {
	outcome := auditlog.OutcomeSucceeded
	if !report.OK() {
		outcome = auditlog.OutcomeFailed
	}
	payload := map[string]any{
		"name":       report.Name,
		"gateway_id": report.GatewayID,
		"deployment": report.Deployment,
	}
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		payload["duration_ms"] = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	}
	if report.Err != nil {
		payload["error"] = report.Err.Error()
	}
	if report.Remediation != "" {
		payload["remediation"] = report.Remediation
	}
	return auditlog.Event{
		OccurredAt:  report.FinishedAt,
		DeployID:    report.DeployID,
		Environment: report.Context.Environment,
		Stage:       report.Context.Stage,
		Region:      report.Context.Region,
		Kind:        KindAPI,
		EntityID:    report.API,
		Operation:   string(report.Operation),
		Outcome:     outcome,
		ErrorCode:   report.Code,
		Payload:     payload,
	}
}

func (p *Plugin) afterPublish(ctx context.Context, report orchestrator.PublishReport) (orchestrator.PublishReport, error) {
	if p.recorder == nil {
		return report, nil
	}
	event := Event(report)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	id, err := p.recorder.Record(ctx, event)
	if err != nil {
		p.log.Warn("deploy history not recorded", "deploy_id", report.DeployID, "api", report.API, "error", err)
		return report, nil
	}
	p.log.Debug("deploy history recorded", "deploy_id", report.DeployID, "api", report.API, "event_id", id)
	return report, nil
}
