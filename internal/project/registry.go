package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/resolve"
	"github.com/animus-labs/apideploy/internal/spec"
)

// Registry turns the fragments of one project into typed entities.
type Registry struct {
	layout    Layout
	extension string
	agg       spec.Aggregator
	validate  *validator.Validate
}

// New returns a registry for the project named project laid out as layout.
func New(layout Layout, project string) (*Registry, error) {
	layout = layout.WithDefaults()
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(project) == "" {
		return nil, errors.New("project name is required")
	}
	return &Registry{
		layout:    layout,
		extension: domain.ExtensionKey(project),
		agg:       spec.Aggregator{Name: layout.FragmentName},
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// ExtensionKey returns the reserved metadata key for this project.
func (r *Registry) ExtensionKey() string {
	return r.extension
}

// Layout returns the resolved layout.
func (r *Registry) Layout() Layout {
	return r.layout
}

// APIIDs lists every directory under the APIs root holding a fragment.
func (r *Registry) APIIDs() ([]string, error) {
	root := r.layout.path(r.layout.APIs)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list apis: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := spec.FindFile(filepath.Join(root, entry.Name()), r.layout.FragmentName); ok {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadAPI aggregates the base specification of one API. Endpoints and models
// are attached later when the graph is assembled.
func (r *Registry) LoadAPI(id string) (domain.API, error) {
	root := r.layout.path(r.layout.APIs)
	dir := filepath.Join(root, id)
	if _, ok := spec.FindFile(dir, r.layout.FragmentName); !ok {
		return domain.API{}, entityError(KindAPI, id, dir, ErrNotFound)
	}
	fragment, err := r.agg.Aggregate(root, id)
	if err != nil {
		return domain.API{}, entityError(KindAPI, id, dir, err)
	}
	return domain.API{ID: id, Spec: fragment}, nil
}

// EndpointIDs lists every endpoint declared in the tree, sorted.
func (r *Registry) EndpointIDs() ([]string, error) {
	index, err := r.endpointIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// endpointIndex maps endpoint identities to their directory relative to the
// endpoints root.
func (r *Registry) endpointIndex() (map[string]string, error) {
	root := r.layout.path(r.layout.Endpoints)
	index := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if !domain.IsHTTPMethod(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		segments, err := spec.Segments(filepath.Dir(rel))
		if err != nil {
			return err
		}
		id := domain.EndpointID(d.Name(), "/"+strings.Join(segments, "/"))
		if prev, dup := index[id]; dup {
			return fmt.Errorf("duplicate endpoint %q declared in %s and %s", id, prev, rel)
		}
		index[id] = rel
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return index, nil
}

// LoadEndpoint aggregates the fragment of one endpoint and extracts its
// orchestration metadata.
func (r *Registry) LoadEndpoint(id string) (domain.Endpoint, error) {
	method, resourcePath, err := domain.ParseEndpointID(id)
	if err != nil {
		return domain.Endpoint{}, entityError(KindEndpoint, id, "", err)
	}
	id = domain.EndpointID(method, resourcePath)
	root := r.layout.path(r.layout.Endpoints)

	rel := filepath.Join(strings.TrimPrefix(resourcePath, "/"), method)
	if info, err := os.Stat(filepath.Join(root, rel)); err != nil || !info.IsDir() {
		index, err := r.endpointIndex()
		if err != nil {
			return domain.Endpoint{}, entityError(KindEndpoint, id, "", err)
		}
		found, ok := index[id]
		if !ok {
			return domain.Endpoint{}, entityError(KindEndpoint, id, "", ErrNotFound)
		}
		rel = found
	}

	fragment, err := r.agg.Aggregate(root, rel)
	if err != nil {
		return domain.Endpoint{}, entityError(KindEndpoint, id, filepath.Join(root, rel), err)
	}
	endpoint := domain.Endpoint{
		Method:       method,
		ResourcePath: resourcePath,
		Spec:         fragment,
	}
	if err := r.applyEndpointMetadata(&endpoint); err != nil {
		return domain.Endpoint{}, entityError(KindEndpoint, id, filepath.Join(root, rel), err)
	}
	return endpoint, nil
}

func (r *Registry) applyEndpointMetadata(e *domain.Endpoint) error {
	raw, ok := e.Spec[r.extension]
	if !ok {
		return nil
	}
	meta, ok := spec.AsMap(raw)
	if !ok {
		return fmt.Errorf("%s must be an object", r.extension)
	}
	issues := &domain.ValidationError{}
	switch v := meta[domain.MetaAPIs].(type) {
	case nil:
	case string, []any:
		e.APIs = spec.Strings(v)
	default:
		issues.Add(fmt.Sprintf("%s.%s must be a list of API identifiers", r.extension, domain.MetaAPIs))
	}
	for key, dst := range map[string]*string{domain.MetaIntegration: &e.Integration, domain.MetaRole: &e.InvocationRole} {
		switch v := meta[key].(type) {
		case nil:
		case string:
			*dst = strings.TrimSpace(v)
		default:
			issues.Add(fmt.Sprintf("%s.%s must be a string", r.extension, key))
		}
	}
	return issues.OrNil()
}

// ModelNames lists every schema file under the models root.
func (r *Registry) ModelNames() ([]string, error) {
	return r.listFiles(r.layout.Models)
}

// LoadModel reads one schema and the names of the schemas it references.
func (r *Registry) LoadModel(name string) (domain.Model, error) {
	dir := r.layout.path(r.layout.Models)
	fragment, path, err := spec.ReadFragment(dir, name)
	if errors.Is(err, spec.ErrNoFragment) {
		return domain.Model{}, entityError(KindModel, name, dir, ErrNotFound)
	}
	if err != nil {
		return domain.Model{}, entityError(KindModel, name, path, err)
	}
	refs := make([]string, 0)
	for _, ref := range spec.Refs(fragment) {
		if ref != name {
			refs = append(refs, ref)
		}
	}
	return domain.Model{Name: name, Spec: fragment, Refs: refs}, nil
}

// Models returns the resolver graph over project schemas.
func (r *Registry) Models() resolve.Graph[domain.Model] {
	return resolve.Graph[domain.Model]{
		Name:   func(m domain.Model) string { return m.Name },
		Refs:   func(m domain.Model) []string { return m.Refs },
		Lookup: r.LoadModel,
	}
}

// ResolveModels returns every project schema reachable from the given
// endpoints, de-duplicated, in discovery order. Schemas defined by the base
// specification of api are neither loaded nor followed.
func (r *Registry) ResolveModels(api domain.API, endpoints []domain.Endpoint) ([]domain.Model, error) {
	defined := api.SchemaNames()
	external := func(refs []string) []string {
		out := make([]string, 0, len(refs))
		for _, ref := range refs {
			if _, ok := defined[ref]; !ok {
				out = append(out, ref)
			}
		}
		return out
	}

	var roots []string
	seen := make(map[string]struct{})
	for _, e := range endpoints {
		for _, ref := range external(spec.Refs(e.Spec)) {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			roots = append(roots, ref)
		}
	}
	graph := r.Models()
	graph.Refs = func(m domain.Model) []string { return external(m.Refs) }
	return graph.Expand(roots)
}

// listFiles returns the base names of fragment files directly inside dir.
func (r *Registry) listFiles(dir string) ([]string, error) {
	root := r.layout.path(dir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	seen := make(map[string]struct{})
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isFragmentExt(ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isFragmentExt(ext string) bool {
	for _, candidate := range spec.Extensions {
		if strings.EqualFold(candidate, ext) {
			return true
		}
	}
	return false
}
