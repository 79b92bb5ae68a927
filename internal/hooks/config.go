package hooks

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeConfig copies a merged plugin configuration into out, a pointer to a
// struct with yaml tags. Unknown keys are rejected.
func DecodeConfig(cfg map[string]any, out any) error {
	blob, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode plugin config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode plugin config: %w", err)
	}
	return nil
}
