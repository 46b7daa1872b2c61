package atomic

import "fmt"

// builtins is the full primitive catalog.
var builtins = []*Op{
	// data
	{Name: "get", Category: CategoryData, Summary: "read a key from the input map or bound values", Fn: opGet},
	{Name: "set", Category: CategoryData, Summary: "pass a value through for binding, or override with value", Pure: true, Fn: opSet},
	{Name: "identity", Category: CategoryData, Summary: "return the input unchanged", Pure: true, Fn: opIdentity},
	{Name: "merge", Category: CategoryData, Summary: "combine maps or concatenate lists", Pure: true, Fn: opMerge},
	{Name: "filter", Category: CategoryData, Summary: "keep list elements matching a key/value", Pure: true, Fn: opFilter},
	{Name: "map", Category: CategoryData, Summary: "extract a field or render a template per element", Pure: true, Fn: opMap},
	{Name: "first", Category: CategoryData, Summary: "first element of a list, or the default", Pure: true, Fn: opFirst},
	{Name: "sort", Category: CategoryData, Summary: "order a list by value or by key", Pure: true, Fn: opSort},
	{Name: "diff", Category: CategoryData, Summary: "structural difference of two maps", Pure: true, Fn: opDiff},
	{Name: "emit", Category: CategoryData, Summary: "send the input to the emit sink, pass it through", Fn: opEmit},
	{Name: "log", Category: CategoryData, Summary: "record a message, pass the input through", Fn: opLog},

	// control
	{Name: "if", Category: CategoryControl, Summary: "choose then or else by condition or input truthiness", Pure: true, Fn: opIf},
	{Name: "loop", Category: CategoryControl, Summary: "run an operation over a list or a fixed count", Fn: opLoop},
	{Name: "branch", Category: CategoryControl, Summary: "multi-way select over a cases map", Pure: true, Fn: opBranch},

	// unit
	{Name: "load", Category: CategoryUnit, Summary: "fetch a stored unit document by identifier", Fn: opLoad},
	{Name: "save", Category: CategoryUnit, Summary: "validate and persist a unit document", Fn: opSave},
	{Name: "query", Category: CategoryUnit, Summary: "list stored units matching filters", Fn: opQuery},
	{Name: "create", Category: CategoryUnit, Summary: "build and persist a minimal unit from arguments", Fn: opCreate},
	{Name: "update", Category: CategoryUnit, Summary: "mutate named fields and bump the unit version", Fn: opUpdate},

	// intel
	{Name: "infer", Category: CategoryIntel, Summary: "submit a prompt to the model provider", Fn: opInfer},
	{Name: "parse", Category: CategoryIntel, Summary: "extract structured JSON from raw text", Pure: true, Fn: opParse},
	{Name: "validate", Category: CategoryIntel, Summary: "check a value against the unit document rules", Pure: true, Fn: opValidate},

	// tension
	{Name: "compute", Category: CategoryTension, Summary: "recompute and persist tension for units", Fn: opCompute},
	{Name: "propagate", Category: CategoryTension, Summary: "recompute the pool leaves-first and persist", Fn: opPropagate},
	{Name: "select", Category: CategoryTension, Summary: "pick the highest-tension unit", Fn: opSelect},
}

// DefaultRegistry returns a registry with every built-in registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, op := range builtins {
		if err := r.Register(op); err != nil {
			// Only reachable through a programming error in the
			// table above.
			panic(fmt.Sprintf("builtin registration: %v", err))
		}
	}
	return r
}
