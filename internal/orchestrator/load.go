package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
)

// load reads the selected APIs and every endpoint exposed by at least one of
// them. Broken entities do not stop the others from loading; their errors are
// joined and returned together. Hook errors return immediately.
func (o *Orchestrator) load(ctx context.Context, selected []string) ([]domain.API, []domain.Endpoint, error) {
	apis, err := o.loadAPIs(ctx, selected)
	if err != nil {
		return nil, nil, err
	}
	endpoints, err := o.loadEndpoints(ctx, apis)
	if err != nil {
		return nil, nil, err
	}
	return apis, endpoints, nil
}

func (o *Orchestrator) loadAPIs(ctx context.Context, selected []string) ([]domain.API, error) {
	ids := slices.Clone(selected)
	if len(ids) == 0 {
		all, err := o.registry.APIIDs()
		if err != nil {
			return nil, err
		}
		ids = all
	}
	ids, err := hooks.FireValue(ctx, o.bus, hooks.BeforeAPIsLoad, ids)
	if err != nil {
		return nil, err
	}

	apis := make([]domain.API, 0, len(ids))
	var errs []error
	for _, id := range ids {
		id, err := hooks.FireValue(ctx, o.bus, hooks.BeforeAPILoad, id)
		if err != nil {
			return nil, err
		}
		api, err := o.registry.LoadAPI(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		api, err = hooks.FireValue(ctx, o.bus, hooks.AfterAPILoad, api)
		if err != nil {
			return nil, err
		}
		apis = append(apis, api)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(apis) == 0 {
		return nil, errors.New("no apis selected")
	}
	return hooks.FireValue(ctx, o.bus, hooks.AfterAPIsLoad, apis)
}

func (o *Orchestrator) loadEndpoints(ctx context.Context, apis []domain.API) ([]domain.Endpoint, error) {
	ids, err := o.registry.EndpointIDs()
	if err != nil {
		return nil, err
	}
	ids, err = hooks.FireValue(ctx, o.bus, hooks.BeforeEndpointsLoad, ids)
	if err != nil {
		return nil, err
	}

	endpoints := make([]domain.Endpoint, 0, len(ids))
	var errs []error
	for _, id := range ids {
		id, err := hooks.FireValue(ctx, o.bus, hooks.BeforeEndpointLoad, id)
		if err != nil {
			return nil, err
		}
		e, err := o.registry.LoadEndpoint(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e, err = hooks.FireValue(ctx, o.bus, hooks.AfterEndpointLoad, e)
		if err != nil {
			return nil, err
		}
		if exposedByAny(e, apis) {
			endpoints = append(endpoints, e)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return hooks.FireValue(ctx, o.bus, hooks.AfterEndpointsLoad, endpoints)
}

func exposedByAny(e domain.Endpoint, apis []domain.API) bool {
	for _, api := range apis {
		if e.ExposedBy(api.ID) {
			return true
		}
	}
	return false
}

// assemble attaches to each API the endpoints declaring membership of it and
// the closure of the models those endpoints reference.
func (o *Orchestrator) assemble(ctx context.Context, apis []domain.API, endpoints []domain.Endpoint) ([]domain.API, error) {
	ev, err := hooks.FireValue(ctx, o.bus, hooks.BeforeAddEndpointsToAPIs, AssemblyEvent{APIs: apis, Endpoints: endpoints})
	if err != nil {
		return nil, err
	}

	out := make([]domain.API, 0, len(ev.APIs))
	for _, api := range ev.APIs {
		api.Endpoints = nil
		for _, e := range ev.Endpoints {
			if e.ExposedBy(api.ID) {
				api.Endpoints = append(api.Endpoints, e)
			}
		}
		models, err := o.registry.ResolveModels(api, api.Endpoints)
		if err != nil {
			return nil, fmt.Errorf("resolve models of api %s: %w", api.ID, err)
		}
		api.Models = models
		out = append(out, api)
	}

	ev, err = hooks.FireValue(ctx, o.bus, hooks.AfterAddEndpointsToAPIs, AssemblyEvent{APIs: out, Endpoints: ev.Endpoints})
	if err != nil {
		return nil, err
	}
	return ev.APIs, nil
}
