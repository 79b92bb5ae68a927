// Package spec reads specification fragments from a project tree and merges
// them along a directory path.
//
// Fragments are treated as immutable values: every operation in this package
// returns a fresh deep copy so that two entities aggregated from a shared
// parent directory never alias the same nested map.
package spec

import (
	"fmt"
	"sort"
)

// Fragment is a tree-shaped document read from one directory level.
type Fragment map[string]any

// Clone returns a deep copy of f.
func Clone(f Fragment) Fragment {
	if f == nil {
		return nil
	}
	return Fragment(cloneMap(f))
}

// CloneValue deep-copies maps and slices found in v. Scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Fragment:
		return Fragment(cloneMap(t))
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = CloneValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// Merge deep-merges src over dst and returns the result. Object-valued keys
// are merged recursively; any other value in src replaces the one in dst.
// Neither argument is modified.
func Merge(dst, src Fragment) Fragment {
	out := Clone(dst)
	if out == nil {
		out = Fragment{}
	}
	for k, v := range src {
		existing, ok := AsMap(out[k])
		incoming, isMap := AsMap(v)
		if ok && isMap {
			out[k] = map[string]any(Merge(Fragment(existing), Fragment(incoming)))
			continue
		}
		out[k] = CloneValue(v)
	}
	return out
}

// AsMap reports whether v is an object value and returns it as a plain map.
func AsMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case Fragment:
		return map[string]any(t), true
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

// Lookup walks f along keys and returns the value found at the end.
func Lookup(f Fragment, keys ...string) (any, bool) {
	var cur any = map[string]any(f)
	for _, key := range keys {
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string stored at keys, or "" when absent or not a string.
func String(f Fragment, keys ...string) string {
	v, ok := Lookup(f, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Strings converts a list value to a string slice. A single string is
// accepted as a one-element list.
func Strings(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Without returns a deep copy of v with every object key for which drop
// returns true removed, at any depth.
func Without(v any, drop func(key string) bool) any {
	switch t := v.(type) {
	case Fragment:
		return Fragment(withoutMap(t, drop))
	case map[string]any:
		return withoutMap(t, drop)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Without(t[i], drop)
		}
		return out
	default:
		return CloneValue(v)
	}
}

func withoutMap(m map[string]any, drop func(string) bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if drop(k) {
			continue
		}
		out[k] = Without(v, drop)
	}
	return out
}

// Keys returns the sorted keys of m.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize converts YAML decoded maps with non-string keys (for example
// numeric response codes) into string keyed maps.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = Normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case []any:
		for i := range t {
			t[i] = Normalize(t[i])
		}
		return t
	default:
		return v
	}
}
