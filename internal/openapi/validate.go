package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/animus-labs/apideploy/internal/spec"
)

// ErrInvalidDocument marks documents rejected by schema validation.
var ErrInvalidDocument = errors.New("invalid openapi document")

// Marshal encodes doc as indented JSON. Object keys are sorted, so equal
// documents encode to identical bytes.
func Marshal(doc spec.Fragment) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks doc against the OpenAPI 3 schema rules. Swagger 2 documents
// are converted first.
func Validate(ctx context.Context, doc spec.Fragment) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	var v3 *openapi3.T
	if IsSwagger2(doc) {
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		v3, err = openapi2conv.ToV3(&v2)
		if err != nil {
			return fmt.Errorf("%w: convert swagger 2: %v", ErrInvalidDocument, err)
		}
	} else {
		loader := openapi3.NewLoader()
		loader.Context = ctx
		v3, err = loader.LoadFromData(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	if err := v3.Validate(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}
