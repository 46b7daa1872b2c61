package atomic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

// mapValues is a fixed bound-values view for op tests.
type mapValues map[string]any

func (m mapValues) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapValues) Snapshot() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newTestEnv(t *testing.T) (*Env, *state.SQLStore) {
	t.Helper()
	store, err := state.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	env := &Env{
		Store:    store,
		Registry: DefaultRegistry(),
		Values:   mapValues{},
		Now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
	return env, store
}

func storedUnit(id string, tension float64) *core.Unit {
	return &core.Unit{
		ID:         id,
		Kind:       core.KindAtomic,
		Intent:     "op fixture",
		Stages:     []core.Stage{core.StageAct},
		Tension:    tension,
		Importance: 0.5,
		Version:    1,
		Nodes: []core.Node{
			{ID: "main", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Output: "result"},
		},
	}
}
