package orchestrator

import (
	"context"
	"fmt"

	"github.com/animus-labs/apideploy/internal/openapi"
	"github.com/animus-labs/apideploy/internal/spec"
)

// Document is one rendered API document.
type Document struct {
	API      string
	Variant  openapi.Variant
	Document spec.Fragment
}

// GenerateSpec loads and assembles the selected APIs and renders them as
// variant without deploying anything. Integration data is not injected, so
// gateway documents carry the integration blocks as declared in the project.
func (o *Orchestrator) GenerateSpec(ctx context.Context, req Request, variant openapi.Variant) ([]Document, error) {
	apis, endpoints, err := o.load(ctx, req.APIs)
	if err != nil {
		return nil, err
	}
	apis, err = o.assemble(ctx, apis, endpoints)
	if err != nil {
		return nil, err
	}

	opts := openapi.Options{ExtensionKey: o.registry.ExtensionKey(), Context: o.dctx}
	docs := make([]Document, 0, len(apis))
	for _, api := range apis {
		doc, err := openapi.Render(api, variant, opts)
		if err != nil {
			return nil, err
		}
		if variant != openapi.VariantComplete {
			if err := openapi.Validate(ctx, doc); err != nil {
				return nil, fmt.Errorf("api %s: %w", api.ID, err)
			}
		}
		docs = append(docs, Document{API: api.ID, Variant: variant, Document: doc})
	}
	o.log.Info("spec generated", "apis", len(docs), "variant", variant)
	return docs, nil
}
