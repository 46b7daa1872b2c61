package atomic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/pkg/core"
)

func TestOpCompute_SingleUnit(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u1", 0)))

	// Never executed: importance 0.5, urgency falls back to
	// importance, unresolved ratio 1.0, not blocked.
	// 0.5*0.3 + 0.5*0.3 + 1.0*0.2 + 0.0*0.2 = 0.5
	out, err := dispatch(t, env, "compute", "u1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out, 1e-9)

	u, err := store.LoadUnit(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, u.Tension, 1e-9, "score persisted")
}

func TestOpCompute_BlockedUnitScoresHigher(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u1", 0)))
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u2", 0)))
	require.NoError(t, store.AddWaitingEdge(ctx, "u2", "u1"))

	out, err := dispatch(t, env, "compute", "u1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, out, 1e-9, "waiting edge adds the blocking weight")
}

func TestOpCompute_CurrentUnitFallback(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u1", 0)))
	env.Unit = storedUnit("u1", 0)

	out, err := dispatch(t, env, "compute", nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out, 1e-9)

	env.Unit = nil
	_, err = dispatch(t, env, "compute", nil, nil)
	assert.True(t, core.IsKind(err, core.ErrInvalidArgument))
}

func TestOpCompute_All(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u1", 0)))
	require.NoError(t, store.SaveUnit(ctx, storedUnit("u2", 0)))

	out, err := dispatch(t, env, "compute", nil, map[string]any{"all": true})
	require.NoError(t, err)
	scores := out.(map[string]any)
	assert.Len(t, scores, 2)
	assert.InDelta(t, 0.5, scores["u1"], 1e-9)
}

func TestOpPropagate(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()

	parent := storedUnit("p1", 0)
	parent.Kind = core.KindComposite
	parent.Importance = 0.2
	require.NoError(t, store.SaveUnit(ctx, parent))

	child := storedUnit("c1", 0)
	child.ParentID = "p1"
	child.Importance = 0.9
	require.NoError(t, store.SaveUnit(ctx, child))

	out, err := dispatch(t, env, "propagate", nil, nil)
	require.NoError(t, err)
	scores := out.(map[string]any)

	// child own: 0.9*0.6 + 0.2 = 0.74; parent own: 0.2*0.6 + 0.2 =
	// 0.32; parent final: max(0.74*0.7 + 0.74*0.3, 0.32) = 0.74.
	assert.InDelta(t, 0.74, scores["c1"], 1e-9)
	assert.InDelta(t, 0.74, scores["p1"], 1e-9)

	u, err := store.LoadUnit(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 0.74, u.Tension, 1e-9, "propagated score persisted")
}

func TestOpSelect(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("low", 0.2)))
	require.NoError(t, store.SaveUnit(ctx, storedUnit("high", 0.9)))

	out, err := dispatch(t, env, "select", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "high", out)

	// Explicit pool restricts the candidates.
	out, err = dispatch(t, env, "select", []any{"low"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "low", out)
}

func TestOpSelect_TiesKeepEarlier(t *testing.T) {
	env, store := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, storedUnit("a", 0.5)))
	require.NoError(t, store.SaveUnit(ctx, storedUnit("b", 0.5)))

	out, err := dispatch(t, env, "select", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestOpSelect_EmptyPool(t *testing.T) {
	env, _ := newTestEnv(t)

	_, err := dispatch(t, env, "select", nil, nil)
	assert.True(t, core.IsKind(err, core.ErrNotFound))
}
