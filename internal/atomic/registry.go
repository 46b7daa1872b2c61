// Package atomic provides the operation registry and the built-in
// primitives units execute. Operations are registered at process start
// and read concurrently by the interpreter afterwards.
package atomic

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Category groups operations by concern.
type Category string

const (
	CategoryData    Category = "data"
	CategoryControl Category = "control"
	CategoryUnit    Category = "unit"
	CategoryIntel   Category = "intel"
	CategoryTension Category = "tension"
)

// Categories lists the built-in categories in display order. Plugin
// namespaces must not shadow them.
func Categories() []Category {
	return []Category{CategoryData, CategoryControl, CategoryUnit, CategoryIntel, CategoryTension}
}

// Func is the signature every operation implements. Input is the
// node's resolved input, args its static arguments, env the run-scoped
// services.
type Func func(ctx context.Context, input any, args map[string]any, env *Env) (any, error)

// Op describes one registered operation.
type Op struct {
	// Name is the dispatch key. Built-ins use bare names; plugin
	// operations use "namespace.function".
	Name string
	// Category groups the op in listings.
	Category Category
	// Summary is a one-line description for the catalog.
	Summary string
	// Pure marks ops whose result depends only on input and args.
	Pure bool

	Fn Func
}

// Registry maps operation names to implementations. Registration
// happens at startup; lookups are concurrent-read safe.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Op
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Op)}
}

// Register adds an operation. Names are validated, collisions and
// reserved namespaces rejected.
func (r *Registry) Register(op *Op) error {
	if op == nil || op.Fn == nil {
		return core.NewError(core.ErrInvalidArgument, "operation requires a function")
	}
	if err := validateName(op.Name); err != nil {
		return err
	}
	if ns, _, ok := strings.Cut(op.Name, "."); ok {
		for _, c := range Categories() {
			if ns == string(c) {
				return core.NewError(core.ErrInvalidArgument, "namespace %q is reserved", ns)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return core.NewError(core.ErrInvalidArgument, "operation %q already registered", op.Name)
	}
	r.ops[op.Name] = op
	return nil
}

// Lookup resolves an operation by name.
func (r *Registry) Lookup(name string) (*Op, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Dispatch resolves and runs an operation in one step.
func (r *Registry) Dispatch(ctx context.Context, name string, input any, args map[string]any, env *Env) (any, error) {
	op, ok := r.Lookup(name)
	if !ok {
		return nil, core.NewError(core.ErrUnknownOperation, "operation %q is not registered", name)
	}
	return op.Fn(ctx, input, args, env)
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByCategory returns the ops in a category, sorted by name.
func (r *Registry) ByCategory(c Category) []*Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Op
	for _, op := range r.ops {
		if op.Category == c {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every registered op, sorted by name.
func (r *Registry) All() []*Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Op, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// validateName accepts "name" or "namespace.name" where both parts are
// lowercase identifiers.
func validateName(name string) error {
	if name == "" {
		return core.NewError(core.ErrInvalidArgument, "operation name is required")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return core.NewError(core.ErrInvalidArgument, "operation name %q has too many segments", name)
	}
	for _, part := range parts {
		if !isIdent(part) {
			return core.NewError(core.ErrInvalidArgument, "operation name %q is not a valid identifier", name)
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
