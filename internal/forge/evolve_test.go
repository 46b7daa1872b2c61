package forge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

const revisedDoc = `{
  "identifier": "later_choice",
  "kind": "composite",
  "intent": "watch the feed and retry on stall",
  "stages": ["perceive", "act"],
  "nodes": [
    {"id": "scan", "stage": "perceive", "role": "input", "operation": "get", "args": {"key": "feed"}, "output": "raw"},
    {"id": "main", "stage": "act", "role": "process", "operation": "identity", "input": "$raw", "output": "result"}
  ]
}`

func seedUnit(t *testing.T, store *state.SQLStore, id string, tension float64) *core.Unit {
	t.Helper()
	u := &core.Unit{
		ID: id, Kind: core.KindAtomic, Intent: "watch the feed",
		Stages: []core.Stage{core.StageAct}, Importance: 0.6, Tension: tension, Version: 1,
		Nodes: []core.Node{
			{ID: "main", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Output: "result"},
		},
	}
	require.NoError(t, store.SaveUnit(context.Background(), u))
	return u
}

func seedRun(t *testing.T, store *state.SQLStore, unitID, runID string, at time.Time, success bool, errMsg string, trace []core.NodeTrace) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, &core.Run{
		ID: runID, UnitID: unitID, UnitVersion: 1,
		Status: core.RunStatusRunning, StartedAt: at,
	}))
	require.NoError(t, store.SaveTrace(ctx, runID, trace))

	status := core.RunStatusCompleted
	if !success {
		status = core.RunStatusFailed
	}
	require.NoError(t, store.CompleteRun(ctx, runID, status, success, errMsg, nil))
}

func TestMetrics(t *testing.T) {
	f, store := newTestForge(t, intel.NewMock())
	ctx := context.Background()
	seedUnit(t, store, "structon_watcher", 0.4)

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedRun(t, store, "structon_watcher", "run_1", t0, false, "node main: feed unreachable", []core.NodeTrace{
		{NodeID: "scan", Outcome: core.OutcomeCompleted, DurationMS: 10},
		{NodeID: "main", Outcome: core.OutcomeFailed, DurationMS: 5, Error: "feed unreachable"},
	})
	seedRun(t, store, "structon_watcher", "run_2", t0.Add(time.Minute), false, "node main: feed stalled", []core.NodeTrace{
		{NodeID: "scan", Outcome: core.OutcomeCompleted, DurationMS: 10},
		{NodeID: "main", Outcome: core.OutcomeFailed, DurationMS: 5, Error: "feed stalled"},
	})
	seedRun(t, store, "structon_watcher", "run_3", t0.Add(2*time.Minute), true, "", []core.NodeTrace{
		{NodeID: "scan", Outcome: core.OutcomeCompleted, DurationMS: 10},
		{NodeID: "main", Outcome: core.OutcomeCompleted, DurationMS: 20},
	})

	m, err := f.Metrics(ctx, "structon_watcher", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Runs)
	assert.Equal(t, 1, m.Successes)
	assert.InDelta(t, 1.0/3.0, m.SuccessRate, 1e-9)
	assert.Equal(t, map[string]int{"main": 2}, m.FailedNodes)
	assert.Equal(t, int64(20), m.AvgDurationMS)
	assert.Equal(t, "node main: feed stalled", m.LastError, "the newest error wins")

	assert.Equal(t, []string{
		"1 of 3 recent runs succeeded",
		"node main failed in 2 of 3 runs",
		"most recent error: node main: feed stalled",
	}, m.Feedback())

	m, err = f.Metrics(ctx, "structon_watcher", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Runs, "the window caps how far back evidence reaches")
	assert.Equal(t, 1.0, m.SuccessRate)
	assert.Empty(t, m.FailedNodes)
}

func TestMetrics_NoRuns(t *testing.T) {
	f, store := newTestForge(t, intel.NewMock())
	seedUnit(t, store, "structon_idle", 0)

	m, err := f.Metrics(context.Background(), "structon_idle", 0)
	require.NoError(t, err)
	assert.Zero(t, m.Runs)
	assert.Zero(t, m.SuccessRate)
	assert.Nil(t, m.Feedback())
}

func TestEvolve(t *testing.T) {
	mock := intel.NewMock(revisedDoc)
	f, store := newTestForge(t, mock)
	ctx := context.Background()
	seedUnit(t, store, "structon_watcher", 0.4)

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedRun(t, store, "structon_watcher", "run_1", t0, false, "node main: feed unreachable", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeFailed, DurationMS: 5, Error: "feed unreachable"},
	})
	seedRun(t, store, "structon_watcher", "run_2", t0.Add(time.Minute), true, "", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeCompleted, DurationMS: 5},
	})

	next, err := f.Evolve(ctx, "structon_watcher", EvolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, "structon_watcher", next.ID, "the identifier survives revision")
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, core.KindAtomic, next.Kind, "the model cannot change the kind")
	assert.Equal(t, "watch the feed and retry on stall", next.Intent)
	assert.Equal(t, 0.6, next.Importance, "an omitted importance inherits the old one")
	assert.Equal(t, 0.4, next.Tension)
	require.Len(t, next.Nodes, 2)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, intel.EvolveSystem, calls[0].System)
	assert.Contains(t, calls[0].Prompt, "Current unit document:")
	assert.Contains(t, calls[0].Prompt, "1 of 2 recent runs succeeded")
	assert.Contains(t, calls[0].Prompt, "node main failed in 1 of 2 runs")

	stored, err := store.LoadUnit(ctx, "structon_watcher")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "watch the feed and retry on stall", stored.Intent)
}

func TestEvolve_NoRuns(t *testing.T) {
	mock := intel.NewMock(revisedDoc)
	f, store := newTestForge(t, mock)
	seedUnit(t, store, "structon_watcher", 0)

	next, err := f.Evolve(context.Background(), "structon_watcher", EvolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
	assert.Contains(t, mock.Calls()[0].Prompt, "(none recorded)")
}

func TestEvolve_UnknownUnit(t *testing.T) {
	f, _ := newTestForge(t, intel.NewMock(revisedDoc))

	_, err := f.Evolve(context.Background(), "structon_ghost", EvolveOptions{})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrNotFound))
}

func TestCandidate(t *testing.T) {
	f, store := newTestForge(t, intel.NewMock())
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seedUnit(t, store, "structon_fresh", 1.0)
	seedUnit(t, store, "structon_fine", 0.95)
	seedRun(t, store, "structon_fine", "fine_1", t0, true, "", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeCompleted, DurationMS: 5},
	})
	seedUnit(t, store, "structon_flaky", 0.9)
	seedRun(t, store, "structon_flaky", "flaky_1", t0, false, "node main: boom", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeFailed, DurationMS: 5, Error: "boom"},
	})
	seedRun(t, store, "structon_flaky", "flaky_2", t0.Add(time.Minute), false, "node main: boom", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeFailed, DurationMS: 5, Error: "boom"},
	})

	u, err := f.Candidate(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "structon_flaky", u.ID,
		"never-run and healthy units are passed over even at higher tension")
}

func TestCandidate_AllHealthy(t *testing.T) {
	f, store := newTestForge(t, intel.NewMock())
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seedUnit(t, store, "structon_fine", 0.8)
	seedRun(t, store, "structon_fine", "fine_1", t0, true, "", []core.NodeTrace{
		{NodeID: "main", Outcome: core.OutcomeCompleted, DurationMS: 5},
	})

	_, err := f.Candidate(context.Background(), 0, 0)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrNotFound))
}
