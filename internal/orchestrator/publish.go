package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/openapi"
	"github.com/animus-labs/apideploy/internal/provider"
)

// Error codes recorded on reports for failures that do not come from the
// provider.
const (
	CodeInvalidDocument = "InvalidDocument"
	CodeHook            = "HookFailed"
	CodeCanceled        = "Canceled"
)

// publishAll publishes every API, one release per interval. A failure is
// recorded in the API's own report and never stops the others.
func (o *Orchestrator) publishAll(ctx context.Context, deployID string, apis []domain.API) []PublishReport {
	reports := make([]PublishReport, len(apis))
	o.scheduler().Run(ctx, len(apis),
		func(ctx context.Context, i int) {
			reports[i] = o.publishOne(ctx, deployID, apis[i])
		},
		func(i int, err error) {
			now := o.now().UTC()
			reports[i] = o.failed(PublishReport{
				DeployID:   deployID,
				Context:    o.dctx,
				API:        apis[i].ID,
				Name:       o.dctx.APIName(apis[i].Title(), apis[i].ID),
				StartedAt:  now,
				FinishedAt: now,
			}, CodeCanceled, err)
		},
	)
	return reports
}

func (o *Orchestrator) publishOne(ctx context.Context, deployID string, api domain.API) PublishReport {
	report := PublishReport{
		DeployID:  deployID,
		Context:   o.dctx,
		API:       api.ID,
		Name:      o.dctx.APIName(api.Title(), api.ID),
		StartedAt: o.now().UTC(),
	}
	log := o.log.With("deploy_id", deployID, "api", api.ID)

	report = o.publishDocument(ctx, report, api)
	report.FinishedAt = o.now().UTC()
	o.metrics.Publish(report.OK())
	if report.OK() {
		log.Info("api published", "name", report.Name, "gateway_id", report.GatewayID, "operation", report.Operation)
	} else {
		log.Error("api publish failed", "code", report.Code, "error", report.Err)
	}

	after, err := hooks.FireValue(ctx, o.bus, hooks.AfterPublishAPI, report)
	if err != nil {
		log.Error("after publish hook failed", "error", err)
		return o.failed(report, CodeHook, err)
	}
	return after
}

func (o *Orchestrator) publishDocument(ctx context.Context, report PublishReport, api domain.API) PublishReport {
	doc, err := openapi.Render(api, openapi.VariantGateway, openapi.Options{
		ExtensionKey: o.registry.ExtensionKey(),
		Context:      o.dctx,
	})
	if err != nil {
		return o.failed(report, CodeInvalidDocument, err)
	}

	ev, err := hooks.FireValue(ctx, o.bus, hooks.BeforePublishAPI, PublishEvent{
		DeployID: report.DeployID,
		Context:  o.dctx,
		API:      api,
		Document: doc,
	})
	if err != nil {
		return o.failed(report, CodeHook, err)
	}
	report.Document = ev.Document

	if err := openapi.Validate(ctx, ev.Document); err != nil {
		return o.failed(report, CodeInvalidDocument, err)
	}
	body, err := openapi.Marshal(ev.Document)
	if err != nil {
		return o.failed(report, CodeInvalidDocument, err)
	}

	existing, found, err := o.findAPI(ctx, api.ID)
	if err != nil {
		return o.failed(report, "", err)
	}

	var published provider.RestAPI
	if found {
		report.Operation = domain.OperationUpdate
		published, err = o.gateway.PutRestAPI(ctx, existing.ID, body)
	} else {
		report.Operation = domain.OperationCreation
		published, err = o.gateway.ImportRestAPI(ctx, body)
	}
	if err != nil {
		return o.failed(report, "", err)
	}
	report.GatewayID = published.ID

	// Imports replace the name with a generated one.
	if published.Name != report.Name {
		if _, err := o.gateway.RenameRestAPI(ctx, published.ID, report.Name); err != nil {
			return o.failed(report, "", fmt.Errorf("rename api %s: %w", published.ID, err))
		}
	}

	if o.publish.DeployStage && o.dctx.Stage != "" {
		id, err := o.gateway.CreateDeployment(ctx, published.ID, o.dctx.Stage, "apideploy "+report.DeployID)
		if err != nil {
			return o.failed(report, "", fmt.Errorf("deploy stage %s: %w", o.dctx.Stage, err))
		}
		report.Deployment = id
	}
	return report
}

// findAPI looks up the gateway API carrying the marker of apiID. Titles may
// change between deploys; the marker does not.
func (o *Orchestrator) findAPI(ctx context.Context, apiID string) (provider.RestAPI, bool, error) {
	list, err := o.gateway.ListRestAPIs(ctx)
	if err != nil {
		return provider.RestAPI{}, false, fmt.Errorf("list gateway apis: %w", err)
	}
	marker := o.dctx.APIMarker(apiID)
	var matches []provider.RestAPI
	for _, rest := range list {
		if strings.HasSuffix(rest.Name, marker) {
			matches = append(matches, rest)
		}
	}
	if len(matches) == 0 {
		return provider.RestAPI{}, false, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	if len(matches) > 1 {
		o.log.Warn("several gateway apis carry the same marker, updating the oldest", "api", apiID, "marker", marker, "count", len(matches))
	}
	return matches[0], true, nil
}

func (o *Orchestrator) failed(report PublishReport, code string, err error) PublishReport {
	if code == "" {
		code = provider.Code(err)
	}
	if code == "" && errors.Is(err, context.Canceled) {
		code = CodeCanceled
	}
	report.Err = err
	report.Code = code
	report.Remediation = provider.Remediation(err)
	return report
}
