package spec

import "strings"

// Local schema reference prefixes for OpenAPI 3 and Swagger 2 documents.
const (
	ComponentsPrefix  = "#/components/schemas/"
	DefinitionsPrefix = "#/definitions/"
)

// Refs returns the names of local schemas referenced through "$ref" anywhere
// in v, de-duplicated, in first-seen order. Map keys are visited sorted so the
// order is stable.
func Refs(v any) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		default:
			m, ok := AsMap(v)
			if !ok {
				return
			}
			for _, k := range Keys(m) {
				if k == "$ref" {
					if ref, ok := m[k].(string); ok {
						if name := RefName(ref); name != "" {
							if _, dup := seen[name]; !dup {
								seen[name] = struct{}{}
								out = append(out, name)
							}
						}
					}
					continue
				}
				walk(m[k])
			}
		}
	}
	walk(v)
	return out
}

// RefName extracts the schema name from a local reference, or "" when ref
// does not point at a local schema.
func RefName(ref string) string {
	for _, prefix := range []string{ComponentsPrefix, DefinitionsPrefix} {
		if strings.HasPrefix(ref, prefix) {
			name := strings.TrimPrefix(ref, prefix)
			if i := strings.Index(name, "/"); i >= 0 {
				name = name[:i]
			}
			return name
		}
	}
	return ""
}
