package atomic

import (
	"context"

	"github.com/leapstack-labs/structon/pkg/core"
)

// MaxLoopIterations caps loop regardless of what the document asks
// for.
const MaxLoopIterations = 1000

// opIf selects between then and else. An explicit condition argument
// wins; otherwise the input's truthiness decides.
func opIf(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	cond, ok := args["condition"]
	if !ok {
		cond = input
	}
	if truthy(cond) {
		return args["then"], nil
	}
	return args["else"], nil
}

// opLoop runs a named operation repeatedly: over each element of the
// input list, or a fixed number of times with the iteration index as
// input. Results are collected in order.
func opLoop(ctx context.Context, input any, args map[string]any, env *Env) (any, error) {
	var a struct {
		Op    string         `json:"op"`
		Times int            `json:"times"`
		Limit int            `json:"limit"`
		Args  map[string]any `json:"args"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Op == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "loop requires an op argument")
	}
	if env == nil || env.Registry == nil {
		return nil, core.NewError(core.ErrUnknownOperation, "loop has no registry to dispatch %q", a.Op)
	}
	if _, ok := env.Registry.Lookup(a.Op); !ok {
		return nil, core.NewError(core.ErrUnknownOperation, "operation %q is not registered", a.Op)
	}

	limit := MaxLoopIterations
	if a.Limit > 0 && a.Limit < limit {
		limit = a.Limit
	}

	var inputs []any
	switch {
	case a.Times > 0:
		if a.Times > limit {
			return nil, core.NewError(core.ErrInvalidArgument, "loop of %d exceeds the cap of %d", a.Times, limit)
		}
		inputs = make([]any, a.Times)
		for i := range inputs {
			inputs[i] = i
		}
	default:
		inputs = asList(input)
		if len(inputs) > limit {
			return nil, core.NewError(core.ErrInvalidArgument, "loop over %d elements exceeds the cap of %d", len(inputs), limit)
		}
	}

	out := make([]any, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, core.WrapError(core.ErrCancelled, err, "loop interrupted")
		}
		v, err := env.Registry.Dispatch(ctx, a.Op, in, a.Args, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// opBranch selects a value from a cases map keyed by the input's
// string form, falling back to default.
func opBranch(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	cases, ok := args["cases"].(map[string]any)
	if !ok {
		return nil, core.NewError(core.ErrInvalidArgument, "branch requires a cases map argument")
	}
	key := toString(input)
	if v, ok := cases[key]; ok {
		return v, nil
	}
	if v, ok := args["default"]; ok {
		return v, nil
	}
	return nil, core.NewError(core.ErrInvalidArgument, "no case matches %q and no default is set", key)
}
