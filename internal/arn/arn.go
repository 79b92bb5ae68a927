// Package arn resolves human identifiers to cloud-native resource names.
package arn

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/animus-labs/apideploy/internal/domain"
)

// ErrNotFound is returned when no naming convention matches and the
// identifier cannot be deployed on demand.
var ErrNotFound = errors.New("identifier not found")

var pattern = regexp.MustCompile(`^arn:aws[a-zA-Z-]*:[a-z0-9-]+:[a-z0-9-]*:(\d{12}|aws)?:.+$`)

// IsARN reports whether s already has resource name syntax.
func IsARN(s string) bool {
	return pattern.MatchString(strings.TrimSpace(s))
}

// Partition returns the partition field of arn, "aws" when it cannot be read.
func Partition(arn string) string {
	parts := strings.SplitN(arn, ":", 3)
	if len(parts) >= 2 && IsARN(arn) {
		return parts[1]
	}
	return "aws"
}

// LookupFunc returns the resource name of the remote entity called name, or
// an error wrapping provider.ErrNotFound when it does not exist.
type LookupFunc func(ctx context.Context, name string) (string, error)

// DeployFunc deploys the project entity identified by identifier and returns
// its resource name.
type DeployFunc func(ctx context.Context, identifier string) (string, error)

// KnownFunc reports whether identifier is declared in the current project.
type KnownFunc func(identifier string) bool

// Resolver walks the naming fallback chain for one kind of entity.
type Resolver struct {
	// Kind names the entity kind in error messages.
	Kind string
	// Lookup queries the provider for a remote name.
	Lookup LookupFunc
	// IsMissing classifies lookup errors that mean "try the next candidate".
	IsMissing func(error) bool
	// Known and Deploy enable on-demand deploys. Both are optional.
	Known  KnownFunc
	Deploy DeployFunc
}

// Attempt records one step of a resolution.
type Attempt struct {
	Name string
	Hit  bool
}

// Result is the outcome of a resolution.
type Result struct {
	Identifier string
	ARN        string
	Attempts   []Attempt
	Deployed   bool
}

// Resolve returns the resource name for identifier in dctx.
func (r Resolver) Resolve(ctx context.Context, identifier string, dctx domain.DeploymentContext) (string, error) {
	res, err := r.Trace(ctx, identifier, dctx)
	return res.ARN, err
}

// Trace resolves identifier and reports every candidate tried. Candidates are
// tried in order: {env}_{id}_{stage}, {env}_{id}, {id}; then the project
// entity is deployed if it is declared locally.
func (r Resolver) Trace(ctx context.Context, identifier string, dctx domain.DeploymentContext) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	res := Result{Identifier: identifier}
	if identifier == "" {
		return res, fmt.Errorf("resolve %s: identifier is required", r.kind())
	}
	if IsARN(identifier) {
		res.ARN = identifier
		return res, nil
	}
	if r.Lookup == nil {
		return res, fmt.Errorf("resolve %s %q: lookup is required", r.kind(), identifier)
	}

	for _, name := range dctx.NameCandidates(identifier) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		found, err := r.Lookup(ctx, name)
		if err == nil {
			res.Attempts = append(res.Attempts, Attempt{Name: name, Hit: true})
			res.ARN = found
			return res, nil
		}
		if !r.missing(err) {
			return res, fmt.Errorf("resolve %s %q: lookup %q: %w", r.kind(), identifier, name, err)
		}
		res.Attempts = append(res.Attempts, Attempt{Name: name})
	}

	if r.Deploy != nil && (r.Known == nil || r.Known(identifier)) {
		deployed, err := r.Deploy(ctx, identifier)
		if err != nil {
			return res, fmt.Errorf("resolve %s %q: deploy: %w", r.kind(), identifier, err)
		}
		res.ARN = deployed
		res.Deployed = true
		return res, nil
	}
	return res, &NotFoundError{Kind: r.kind(), Identifier: identifier, Tried: names(res.Attempts)}
}

func (r Resolver) kind() string {
	if r.Kind == "" {
		return "entity"
	}
	return r.Kind
}

func (r Resolver) missing(err error) bool {
	if r.IsMissing == nil {
		return false
	}
	return r.IsMissing(err)
}

func names(attempts []Attempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Name)
	}
	return out
}

// NotFoundError names the identifier whose resolution was exhausted.
type NotFoundError struct {
	Kind       string
	Identifier string
	Tried      []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found (tried %s)", e.Kind, e.Identifier, strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
