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
	"github.com/animus-labs/apideploy/internal/spec"
)

// FunctionIDs lists every function directory holding a config file.
func (r *Registry) FunctionIDs() ([]string, error) {
	root := r.layout.path(r.layout.Functions)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := spec.FindFile(filepath.Join(root, entry.Name()), r.layout.FunctionConfigName); ok {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadFunction reads and validates the deployment parameters of one function.
func (r *Registry) LoadFunction(id string) (domain.Function, error) {
	dir := filepath.Join(r.layout.path(r.layout.Functions), id)
	path, ok := spec.FindFile(dir, r.layout.FunctionConfigName)
	if !ok {
		return domain.Function{}, entityError(KindFunction, id, dir, ErrNotFound)
	}
	var cfg domain.FunctionConfig
	if err := spec.DecodeInto(path, &cfg); err != nil {
		return domain.Function{}, entityError(KindFunction, id, path, err)
	}
	cfg = cfg.WithDefaults()
	if err := r.check(cfg); err != nil {
		return domain.Function{}, entityError(KindFunction, id, path, err)
	}
	return domain.Function{ID: id, Dir: dir, Config: cfg}, nil
}

// RoleIDs lists every role declared under the roles root. Roles that fail to
// load are left out and reported in the error.
func (r *Registry) RoleIDs() ([]string, error) {
	roles, err := r.roles()
	ids := make([]string, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	sort.Strings(ids)
	return ids, err
}

// LoadRole reads the role whose file is named name.
func (r *Registry) LoadRole(name string) (domain.Role, error) {
	dir := r.layout.path(r.layout.Roles)
	path, ok := spec.FindFile(dir, name)
	if !ok {
		return domain.Role{}, entityError(KindRole, name, dir, ErrNotFound)
	}
	var role domain.Role
	if err := spec.DecodeInto(path, &role); err != nil {
		return domain.Role{}, entityError(KindRole, name, path, err)
	}
	if strings.TrimSpace(role.ID) == "" {
		role.ID = name
	}
	role.AssumeRolePolicy = normalizeDocument(role.AssumeRolePolicy)
	issues := &domain.ValidationError{}
	if len(role.AssumeRolePolicy) == 0 {
		issues.Add("assumeRolePolicyDocument is required")
	}
	for i, p := range role.ManagedPolicies {
		if strings.TrimSpace(p) == "" {
			issues.Add(fmt.Sprintf("managedPolicies[%d] is empty", i))
		}
	}
	if err := issues.OrNil(); err != nil {
		return domain.Role{}, entityError(KindRole, role.ID, path, err)
	}
	return role, nil
}

// RoleByIdentifier finds the project role whose declared identifier is id.
// The file name is tried first.
func (r *Registry) RoleByIdentifier(id string) (domain.Role, error) {
	if role, err := r.LoadRole(id); err == nil && role.ID == id {
		return role, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.Role{}, err
	}
	roles, err := r.roles()
	for _, role := range roles {
		if role.ID == id {
			return role, nil
		}
	}
	return domain.Role{}, errors.Join(entityError(KindRole, id, "", ErrNotFound), err)
}

func (r *Registry) roles() ([]domain.Role, error) {
	names, err := r.listFiles(r.layout.Roles)
	if err != nil {
		return nil, err
	}
	return LoadAll(names, r.LoadRole)
}

// PolicyIDs lists every policy declared under the policies root.
func (r *Registry) PolicyIDs() ([]string, error) {
	policies, err := r.policies()
	ids := make([]string, 0, len(policies))
	for _, policy := range policies {
		ids = append(ids, policy.ID)
	}
	sort.Strings(ids)
	return ids, err
}

// LoadPolicy reads the policy whose file is named name.
func (r *Registry) LoadPolicy(name string) (domain.Policy, error) {
	dir := r.layout.path(r.layout.Policies)
	path, ok := spec.FindFile(dir, name)
	if !ok {
		return domain.Policy{}, entityError(KindPolicy, name, dir, ErrNotFound)
	}
	var policy domain.Policy
	if err := spec.DecodeInto(path, &policy); err != nil {
		return domain.Policy{}, entityError(KindPolicy, name, path, err)
	}
	if strings.TrimSpace(policy.ID) == "" {
		policy.ID = name
	}
	policy.Document = normalizeDocument(policy.Document)
	if len(policy.Document) == 0 {
		return domain.Policy{}, entityError(KindPolicy, policy.ID, path, &domain.ValidationError{Issues: []string{"document is required"}})
	}
	return policy, nil
}

// PolicyByIdentifier finds the project policy whose declared identifier is id.
func (r *Registry) PolicyByIdentifier(id string) (domain.Policy, error) {
	if policy, err := r.LoadPolicy(id); err == nil && policy.ID == id {
		return policy, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.Policy{}, err
	}
	policies, err := r.policies()
	for _, policy := range policies {
		if policy.ID == id {
			return policy, nil
		}
	}
	return domain.Policy{}, errors.Join(entityError(KindPolicy, id, "", ErrNotFound), err)
}

func (r *Registry) policies() ([]domain.Policy, error) {
	names, err := r.listFiles(r.layout.Policies)
	if err != nil {
		return nil, err
	}
	return LoadAll(names, r.LoadPolicy)
}

func (r *Registry) check(cfg domain.FunctionConfig) error {
	err := r.validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	issues := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			issues.Add(fmt.Sprintf("%s is required", lowerFirst(fe.Field())))
		case "min":
			issues.Add(fmt.Sprintf("%s must be >= %s", lowerFirst(fe.Field()), fe.Param()))
		case "max":
			issues.Add(fmt.Sprintf("%s must be <= %s", lowerFirst(fe.Field()), fe.Param()))
		default:
			issues.Add(fmt.Sprintf("%s is invalid (%s)", lowerFirst(fe.Field()), fe.Tag()))
		}
	}
	return issues.OrNil()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func normalizeDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out, _ := spec.Normalize(doc).(map[string]any)
	return out
}
