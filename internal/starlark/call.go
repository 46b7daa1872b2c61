package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
)

// CallError reports a failed plugin function call.
type CallError struct {
	Plugin   string
	Function string
	Message  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("plugin %s.%s: %s", e.Plugin, e.Function, e.Message)
}

// Caller invokes plugin functions with engine values. It owns a thread
// pool so concurrent unit executions do not contend on one thread.
type Caller struct {
	pool *ThreadPool
}

// NewCaller creates a caller with the given idle-thread limit.
func NewCaller(poolSize int) *Caller {
	return &Caller{pool: NewThreadPool(poolSize)}
}

// Call invokes fn with the node's resolved input as the single
// positional argument and the static args as keyword arguments. The
// result is converted back to a plain Go value.
func (c *Caller) Call(plugin, function string, fn starlark.Callable, input any, args map[string]any) (any, error) {
	inVal, err := GoToStarlark(input)
	if err != nil {
		return nil, &CallError{Plugin: plugin, Function: function, Message: fmt.Sprintf("input: %v", err)}
	}
	kwargs, err := KwargsFromMap(args)
	if err != nil {
		return nil, &CallError{Plugin: plugin, Function: function, Message: err.Error()}
	}

	thread := c.pool.Get(fmt.Sprintf("%s.%s", plugin, function))
	defer c.pool.Put(thread)

	out, err := starlark.Call(thread, fn, starlark.Tuple{inVal}, kwargs)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, &CallError{Plugin: plugin, Function: function, Message: evalErr.Backtrace()}
		}
		return nil, &CallError{Plugin: plugin, Function: function, Message: err.Error()}
	}

	result, err := ToGo(out)
	if err != nil {
		return nil, &CallError{Plugin: plugin, Function: function, Message: fmt.Sprintf("return value: %v", err)}
	}
	return result, nil
}
