// Package openapi assembles API graphs into OpenAPI documents and renders the
// variants handed to the gateway, to documentation consumers and to humans
// debugging a project.
package openapi

import (
	"fmt"
	"strings"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/integration"
	"github.com/animus-labs/apideploy/internal/spec"
)

// Variant selects how much of the assembled document is kept.
type Variant string

const (
	VariantGateway  Variant = "gateway"
	VariantDoc      Variant = "doc"
	VariantComplete Variant = "complete"
)

// AnyMethodKey is the path item key the gateway reads for ANY endpoints.
const AnyMethodKey = "x-amazon-apigateway-any-method"

// Gateway keys removed from documentation output.
const (
	authorizerKey = "x-amazon-apigateway-authorizer"
	authTypeKey   = "x-amazon-apigateway-authtype"
)

// ParseVariant maps user input to a Variant.
func ParseVariant(value string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(value))); v {
	case VariantGateway, VariantDoc, VariantComplete:
		return v, nil
	case "":
		return VariantGateway, nil
	default:
		return "", fmt.Errorf("unknown spec variant %q (want gateway, doc or complete)", value)
	}
}

// Options carry what rendering needs beyond the API itself.
type Options struct {
	// ExtensionKey is the orchestration metadata key, "x-<project>".
	ExtensionKey string
	Context      domain.DeploymentContext
}

// IsSwagger2 reports whether doc declares the Swagger 2.0 format.
func IsSwagger2(doc spec.Fragment) bool {
	_, ok := doc["swagger"]
	return ok
}

// Assemble merges the endpoints and models of api into a copy of its base
// document. Endpoints are placed under paths by resource path and method;
// models go to components.schemas, or definitions for Swagger 2 documents.
func Assemble(api domain.API) spec.Fragment {
	doc := spec.Clone(api.Spec)
	if doc == nil {
		doc = spec.Fragment{}
	}

	paths, _ := spec.AsMap(doc["paths"])
	if paths == nil {
		paths = make(map[string]any)
	}
	for _, e := range api.Endpoints {
		item, _ := spec.AsMap(paths[e.ResourcePath])
		if item == nil {
			item = make(map[string]any)
		}
		key := operationKey(e.Method)
		existing, _ := spec.AsMap(item[key])
		item[key] = map[string]any(spec.Merge(spec.Fragment(existing), e.Spec))
		paths[e.ResourcePath] = item
	}
	doc["paths"] = paths

	if len(api.Models) == 0 {
		return doc
	}
	var schemas map[string]any
	if IsSwagger2(doc) {
		schemas, _ = spec.AsMap(doc["definitions"])
		if schemas == nil {
			schemas = make(map[string]any)
		}
		doc["definitions"] = schemas
	} else {
		components, _ := spec.AsMap(doc["components"])
		if components == nil {
			components = make(map[string]any)
		}
		schemas, _ = spec.AsMap(components["schemas"])
		if schemas == nil {
			schemas = make(map[string]any)
		}
		components["schemas"] = schemas
		doc["components"] = components
	}
	for _, m := range api.Models {
		schemas[m.Name] = map[string]any(spec.Clone(m.Spec))
	}
	return doc
}

func operationKey(method string) string {
	method = strings.ToUpper(method)
	if method == "ANY" {
		return AnyMethodKey
	}
	return strings.ToLower(method)
}

// Render assembles api and applies variant.
func Render(api domain.API, variant Variant, opts Options) (spec.Fragment, error) {
	doc := Assemble(api)
	switch variant {
	case VariantComplete:
		return doc, nil
	case VariantGateway:
		return gateway(doc, api.ID, opts), nil
	case VariantDoc:
		return documentation(doc, opts), nil
	default:
		return nil, fmt.Errorf("unknown spec variant %q", variant)
	}
}

func gateway(doc spec.Fragment, apiID string, opts Options) spec.Fragment {
	out := strip(doc, func(parent, key string) bool {
		if key == opts.ExtensionKey && opts.ExtensionKey != "" {
			return true
		}
		return (key == "example" || key == "examples") && !namedMap(parent)
	})
	info, _ := spec.AsMap(out["info"])
	if info == nil {
		info = make(map[string]any)
	}
	title, _ := info["title"].(string)
	info["title"] = opts.Context.APIName(title, apiID)
	out["info"] = info
	return out
}

func documentation(doc spec.Fragment, opts Options) spec.Fragment {
	return strip(doc, func(parent, key string) bool {
		if key == opts.ExtensionKey && opts.ExtensionKey != "" {
			return true
		}
		switch key {
		case integration.GatewayIntegrationKey, authorizerKey, authTypeKey, "securitySchemes", "securityDefinitions":
			return true
		case "security":
			return !namedMap(parent)
		}
		return false
	})
}

// namedMap reports whether the children of parent are user chosen names
// rather than OpenAPI keywords.
func namedMap(parent string) bool {
	switch parent {
	case "properties", "schemas", "definitions", "paths", "responses", "headers", "parameters":
		return true
	}
	return false
}

func strip(doc spec.Fragment, drop func(parent, key string) bool) spec.Fragment {
	return spec.Fragment(stripMap("", doc, drop))
}

func stripMap(parent string, m map[string]any, drop func(parent, key string) bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if drop(parent, k) {
			continue
		}
		out[k] = stripValue(k, v, drop)
	}
	return out
}

func stripValue(parent string, v any, drop func(parent, key string) bool) any {
	if m, ok := spec.AsMap(v); ok {
		return stripMap(parent, m, drop)
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i := range list {
			out[i] = stripValue("", list[i], drop)
		}
		return out
	}
	return spec.CloneValue(v)
}
