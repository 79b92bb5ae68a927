// Package hooks is the plugin event bus. Events are fired through every
// registered plugin in registration order; each handler receives the
// arguments as returned by the previous one.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"unicode"

	"github.com/animus-labs/apideploy/internal/spec"
)

var (
	ErrDuplicatePlugin = errors.New("plugin already registered")
	ErrInvalidPlugin   = errors.New("invalid plugin")
	ErrPayloadType     = errors.New("unexpected hook payload type")
)

// Handler processes one event. Returning nil arguments leaves the current
// arguments unchanged.
type Handler func(ctx context.Context, args []any) ([]any, error)

// Extension is a directly callable function exposed by a plugin.
type Extension func(ctx context.Context, args ...any) (any, error)

// Plugin is one extension of the pipeline.
type Plugin struct {
	Name string
	// Defaults is the default configuration. Project overrides are merged
	// on top of it at registration.
	Defaults map[string]any
	// Configure receives the merged configuration once, at registration.
	Configure func(cfg map[string]any) error
	Hooks     map[Event]Handler
	// Extensions are published as "<Name>:<key>".
	Extensions map[string]Extension
}

type registered struct {
	plugin Plugin
	config map[string]any
}

// Bus is the ordered registry of plugins for one process.
type Bus struct {
	log       *slog.Logger
	overrides map[string]map[string]any

	mu         sync.RWMutex
	plugins    []registered
	extensions map[string]Extension
}

// New returns an empty bus. overrides holds project configuration keyed by
// camel-cased plugin name.
func New(overrides map[string]map[string]any, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		log:        logger,
		overrides:  overrides,
		extensions: make(map[string]Extension),
	}
}

// Register appends p to the registry.
func (b *Bus) Register(p Plugin) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlugin)
	}

	b.mu.RLock()
	dup := b.registeredLocked(name)
	b.mu.RUnlock()
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}

	cfg := spec.Merge(spec.Fragment(p.Defaults), spec.Fragment(b.overrides[CamelName(name)]))
	if p.Configure != nil {
		if err := p.Configure(map[string]any(spec.Clone(cfg))); err != nil {
			return fmt.Errorf("configure plugin %s: %w", name, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// A concurrent Register may have won the name while Configure ran.
	if b.registeredLocked(name) {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}
	p.Name = name
	p.Hooks = maps.Clone(p.Hooks)
	b.plugins = append(b.plugins, registered{plugin: p, config: cfg})
	for key, ext := range p.Extensions {
		b.extensions[name+":"+key] = ext
	}
	b.log.Debug("plugin registered", "plugin", name, "hooks", len(p.Hooks), "extensions", len(p.Extensions))
	return nil
}

func (b *Bus) registeredLocked(name string) bool {
	for _, r := range b.plugins {
		if r.plugin.Name == name {
			return true
		}
	}
	return false
}

// Fire runs event through every plugin implementing it and returns the final
// arguments. The first handler error aborts the chain.
func (b *Bus) Fire(ctx context.Context, event Event, args ...any) ([]any, error) {
	for _, r := range b.snapshot() {
		h, ok := r.plugin.Hooks[event]
		if !ok || h == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return args, err
		}
		next, err := h(ctx, args)
		if err != nil {
			return args, fmt.Errorf("hook %s in plugin %s: %w", event, r.plugin.Name, err)
		}
		if next != nil {
			args = next
		}
	}
	return args, nil
}

// Call invokes the extension registered as name ("plugin:extension"). When
// none is registered the last argument is returned unchanged.
func (b *Bus) Call(ctx context.Context, name string, args ...any) (any, error) {
	b.mu.RLock()
	ext, ok := b.extensions[name]
	b.mu.RUnlock()
	if !ok {
		if len(args) == 0 {
			return nil, nil
		}
		return args[len(args)-1], nil
	}
	out, err := ext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("extension %s: %w", name, err)
	}
	return out, nil
}

// HasExtension reports whether name is registered.
func (b *Bus) HasExtension(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.extensions[name]
	return ok
}

// Implements reports whether any plugin handles event.
func (b *Bus) Implements(event Event) bool {
	for _, r := range b.snapshot() {
		if _, ok := r.plugin.Hooks[event]; ok {
			return true
		}
	}
	return false
}

// Config returns a copy of the merged configuration of plugin name.
func (b *Bus) Config(name string) (map[string]any, bool) {
	for _, r := range b.snapshot() {
		if r.plugin.Name == name {
			return map[string]any(spec.Clone(r.config)), true
		}
	}
	return nil, false
}

// Plugins returns registered plugin names in registration order.
func (b *Bus) Plugins() []string {
	snap := b.snapshot()
	out := make([]string, 0, len(snap))
	for _, r := range snap {
		out = append(out, r.plugin.Name)
	}
	return out
}

func (b *Bus) snapshot() []registered {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.plugins[:len(b.plugins):len(b.plugins)]
}

// CamelName converts a plugin name such as "spec-export" to the key used
// for its project configuration ("specExport").
func CamelName(name string) string {
	var sb strings.Builder
	upper := false
	for i, r := range strings.TrimSpace(name) {
		switch {
		case r == '-' || r == '_' || r == ' ' || r == '.':
			upper = sb.Len() > 0
		case upper:
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
		case i == 0:
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// HandleValue adapts a handler over a single typed payload.
func HandleValue[T any](fn func(ctx context.Context, v T) (T, error)) Handler {
	return func(ctx context.Context, args []any) ([]any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: no payload", ErrPayloadType)
		}
		v, ok := args[0].(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("%w: got %T, want %T", ErrPayloadType, args[0], zero)
		}
		out, err := fn(ctx, v)
		if err != nil {
			return nil, err
		}
		next := append([]any{out}, args[1:]...)
		return next, nil
	}
}

// FireValue fires event with a single typed payload and returns the payload
// as transformed by the plugins.
func FireValue[T any](ctx context.Context, b *Bus, event Event, v T) (T, error) {
	args, err := b.Fire(ctx, event, v)
	if err != nil {
		return v, err
	}
	if len(args) == 0 {
		return v, nil
	}
	out, ok := args[0].(T)
	if !ok {
		return v, fmt.Errorf("%w: %s returned %T", ErrPayloadType, event, args[0])
	}
	return out, nil
}

// CallString invokes extension name and expects a string result. A missing
// extension yields the last argument, so fallback must be passed last.
func CallString(ctx context.Context, b *Bus, name string, args ...any) (string, error) {
	out, err := b.Call(ctx, name, args...)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("%w: extension %s returned %T, want string", ErrPayloadType, name, out)
	}
	return s, nil
}

// StringArg returns args[i] as a string.
func StringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrPayloadType, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrPayloadType, i, args[i])
	}
	return s, nil
}
