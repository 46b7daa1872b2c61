package atomic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/pkg/core"
)

func TestOpIf(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}
	args := map[string]any{"then": "yes", "else": "no"}

	out, err := dispatch(t, env, "if", true, args)
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	out, err = dispatch(t, env, "if", "", args)
	require.NoError(t, err)
	assert.Equal(t, "no", out)

	// Explicit condition wins over the input.
	out, err = dispatch(t, env, "if", true, map[string]any{"condition": false, "then": "yes", "else": "no"})
	require.NoError(t, err)
	assert.Equal(t, "no", out)

	out, err = dispatch(t, env, "if", []any{1}, map[string]any{"then": "has-elements"})
	require.NoError(t, err)
	assert.Equal(t, "has-elements", out)
}

func TestOpLoop_OverList(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}

	out, err := dispatch(t, env, "loop", []any{"a", "b"}, map[string]any{"op": "identity"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestOpLoop_Times(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}

	out, err := dispatch(t, env, "loop", nil, map[string]any{"op": "identity", "times": 3})
	require.NoError(t, err)
	assert.Equal(t, []any{0, 1, 2}, out)
}

func TestOpLoop_InnerArgs(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}

	out, err := dispatch(t, env, "loop",
		[]any{map[string]any{"n": 1}, map[string]any{"n": 2}},
		map[string]any{"op": "get", "args": map[string]any{"key": "n"}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, out)
}

func TestOpLoop_Guards(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}

	_, err := dispatch(t, env, "loop", []any{1}, nil)
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "missing op argument")

	_, err = dispatch(t, env, "loop", []any{1}, map[string]any{"op": "missing"})
	assert.True(t, core.IsKind(err, core.ErrUnknownOperation))

	_, err = dispatch(t, env, "loop", nil, map[string]any{"op": "identity", "times": MaxLoopIterations + 1})
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "cap exceeded")

	_, err = dispatch(t, env, "loop", []any{1, 2, 3}, map[string]any{"op": "identity", "limit": 2})
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "tighter limit argument")
}

func TestOpLoop_InnerFailureStopsLoop(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}

	_, err := dispatch(t, env, "loop", []any{"{}", "not json"}, map[string]any{"op": "parse"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument))
}

func TestOpBranch(t *testing.T) {
	env := &Env{Registry: DefaultRegistry()}
	args := map[string]any{
		"cases":   map[string]any{"red": "stop", "green": "go"},
		"default": "wait",
	}

	out, err := dispatch(t, env, "branch", "green", args)
	require.NoError(t, err)
	assert.Equal(t, "go", out)

	out, err = dispatch(t, env, "branch", "blue", args)
	require.NoError(t, err)
	assert.Equal(t, "wait", out)

	// Numeric input keys by string form.
	out, err = dispatch(t, env, "branch", 2, map[string]any{"cases": map[string]any{"2": "two"}})
	require.NoError(t, err)
	assert.Equal(t, "two", out)

	_, err = dispatch(t, env, "branch", "blue", map[string]any{"cases": map[string]any{}})
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "no case and no default")

	_, err = dispatch(t, env, "branch", "x", nil)
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "missing cases map")
}
