package engine

import (
	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/pkg/core"
)

// valueStore is the per-run variable table. Each Execute call owns a
// fresh one; the engine is the only writer and runs nodes sequentially,
// so no locking is needed. Primitives observe it through the
// atomic.Values view.
type valueStore struct {
	vals map[string]any
}

func newValueStore(initial map[string]any) *valueStore {
	vals := make(map[string]any, len(initial))
	for k, v := range initial {
		vals[k] = v
	}
	return &valueStore{vals: vals}
}

func (s *valueStore) Bind(name string, v any) {
	s.vals[name] = v
}

func (s *valueStore) Get(name string) (any, bool) {
	v, ok := s.vals[name]
	return v, ok
}

func (s *valueStore) Snapshot() map[string]any {
	out := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

var _ atomic.Values = (*valueStore)(nil)

// resolveInput materializes a node's input spec against the bound
// values: a "$name" string looks up its binding, a list resolves
// element-wise depth first, anything else is a literal.
func resolveInput(spec any, values atomic.Values) (any, error) {
	if name, ok := core.RefName(spec); ok {
		v, bound := values.Get(name)
		if !bound {
			return nil, core.NewError(core.ErrUnboundVariable, "$%s is not bound", name)
		}
		return v, nil
	}
	if list, ok := spec.([]any); ok {
		out := make([]any, len(list))
		for i, el := range list {
			v, err := resolveInput(el, values)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return spec, nil
}
