package project

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a named entity is not declared in the project.
var ErrNotFound = errors.New("entity not found")

// Kind names an entity kind.
type Kind string

const (
	KindAPI      Kind = "api"
	KindEndpoint Kind = "endpoint"
	KindModel    Kind = "model"
	KindFunction Kind = "function"
	KindRole     Kind = "role"
	KindPolicy   Kind = "policy"
)

// EntityError is a failure to load one entity. Other entities are unaffected.
type EntityError struct {
	Kind Kind
	ID   string
	Path string
	Err  error
}

func (e *EntityError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load %s %q: %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("load %s %q (%s): %v", e.Kind, e.ID, e.Path, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func entityError(kind Kind, id, path string, err error) error {
	var existing *EntityError
	if errors.As(err, &existing) {
		return err
	}
	return &EntityError{Kind: kind, ID: id, Path: path, Err: err}
}

// LoadAll calls load for every id and returns the entities that loaded. The
// error joins every individual failure, so one broken entity never prevents
// the others from loading.
func LoadAll[T any](ids []string, load func(id string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(ids))
	var errs []error
	for _, id := range ids {
		entity, err := load(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, entity)
	}
	return out, errors.Join(errs...)
}
