// Package resolve computes transitive, duplicate-free closures over named
// references between entities of the same kind.
package resolve

import "fmt"

// Graph describes how to walk references for entities of type T.
type Graph[T any] struct {
	// Name returns the identity of an entity.
	Name func(T) string
	// Refs returns the names an entity references.
	Refs func(T) []string
	// Lookup resolves a name to an entity.
	Lookup func(name string) (T, error)
}

// Closure returns every entity transitively referenced by root, each exactly
// once, in depth-first discovery order. root itself is never part of the
// result, even when a reference cycle leads back to it.
func (g Graph[T]) Closure(root T) ([]T, error) {
	refs := g.Refs(root)
	if len(refs) == 0 {
		return nil, nil
	}
	visited := map[string]struct{}{g.Name(root): {}}
	return g.expand(refs, visited)
}

// Expand returns the closure of a set of starting names. Unlike Closure the
// starting entities are part of the result.
func (g Graph[T]) Expand(names []string) ([]T, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return g.expand(names, make(map[string]struct{}))
}

func (g Graph[T]) expand(names []string, visited map[string]struct{}) ([]T, error) {
	var out []T
	var visit func(name string) error
	visit = func(name string) error {
		if _, ok := visited[name]; ok {
			return nil
		}
		visited[name] = struct{}{}
		entity, err := g.Lookup(name)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", name, err)
		}
		out = append(out, entity)
		for _, ref := range g.Refs(entity) {
			if err := visit(ref); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}
