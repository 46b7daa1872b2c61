package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/internal/engine"
	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

func newTestAPI(t *testing.T) (http.Handler, *state.SQLStore) {
	t.Helper()
	store, err := state.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	eng := engine.New(engine.Config{Store: store})

	mux := chi.NewMux()
	SetupRoutes(mux, NewHandlers(eng, store, nil))
	return mux, store
}

func passThroughUnit(id string, tension float64) *core.Unit {
	return &core.Unit{
		ID:      id,
		Kind:    core.KindAtomic,
		Intent:  "bind and pass a caller value",
		Stages:  []core.Stage{core.StagePerceive, core.StageAct},
		Tension: tension,
		Version: 1,
		Nodes: []core.Node{
			{ID: "s1", Stage: core.StagePerceive, Role: core.RoleInput, Operation: "get", Args: map[string]any{"key": "x"}, Output: "x"},
			{ID: "a1", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$x", Output: "y"},
		},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	api, store := newTestAPI(t)
	require.NoError(t, store.SaveUnit(context.Background(), passThroughUnit("one", 0.1)))

	rec := doRequest(t, api, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["units"])
}

func TestListUnits(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, passThroughUnit("alpha", 0.2)))
	require.NoError(t, store.SaveUnit(ctx, passThroughUnit("beta", 0.8)))

	rec := doRequest(t, api, http.MethodGet, "/api/units", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var units []map[string]any
	decodeBody(t, rec, &units)
	assert.Len(t, units, 2)

	rec = doRequest(t, api, http.MethodGet, "/api/units?by_tension=true&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &units)
	require.Len(t, units, 1)
	assert.Equal(t, "beta", units[0]["identifier"])
}

func TestListUnits_EmptyPool(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/api/units", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestListUnits_BadLimit(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodGet, "/api/units?limit=many", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Contains(t, body["error"], "invalid limit")
}

func TestGetUnit(t *testing.T) {
	api, store := newTestAPI(t)
	require.NoError(t, store.SaveUnit(context.Background(), passThroughUnit("alpha", 0.2)))

	rec := doRequest(t, api, http.MethodGet, "/api/units/alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var unit map[string]any
	decodeBody(t, rec, &unit)
	assert.Equal(t, "alpha", unit["identifier"])

	rec = doRequest(t, api, http.MethodGet, "/api/units/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteUnit(t *testing.T) {
	api, store := newTestAPI(t)
	require.NoError(t, store.SaveUnit(context.Background(), passThroughUnit("alpha", 0.2)))

	rec := doRequest(t, api, http.MethodPost, "/api/units/alpha/execute", `{"values":{"x":7}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Unit    string         `json:"unit"`
		Run     string         `json:"run"`
		Success bool           `json:"success"`
		Values  map[string]any `json:"values"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "alpha", body.Unit)
	assert.NotEmpty(t, body.Run)
	assert.True(t, body.Success)
	assert.Equal(t, float64(7), body.Values["y"])
}

func TestExecuteUnit_EmptyBody(t *testing.T) {
	api, store := newTestAPI(t)
	u := passThroughUnit("alpha", 0.2)
	// Drop the perceive node so the unit needs no initial values.
	u.Nodes = u.Nodes[1:]
	u.Nodes[0].Input = "seed"
	u.Stages = []core.Stage{core.StageAct}
	require.NoError(t, store.SaveUnit(context.Background(), u))

	rec := doRequest(t, api, http.MethodPost, "/api/units/alpha/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteUnit_NotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api, http.MethodPost, "/api/units/missing/execute", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	api, store := newTestAPI(t)
	require.NoError(t, store.SaveUnit(context.Background(), passThroughUnit("alpha", 0.2)))

	rec := doRequest(t, api, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, api, http.MethodGet, "/api/runs?unit=alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	doRequest(t, api, http.MethodPost, "/api/units/alpha/execute", `{"values":{"x":1}}`)

	rec = doRequest(t, api, http.MethodGet, "/api/runs?unit=alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	decodeBody(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "alpha", runs[0]["unit_identifier"])
}

func TestGetRun_WithTrace(t *testing.T) {
	api, store := newTestAPI(t)
	require.NoError(t, store.SaveUnit(context.Background(), passThroughUnit("alpha", 0.2)))

	rec := doRequest(t, api, http.MethodPost, "/api/units/alpha/execute", `{"values":{"x":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var execBody struct {
		Run string `json:"run"`
	}
	decodeBody(t, rec, &execBody)
	require.NotEmpty(t, execBody.Run)

	rec = doRequest(t, api, http.MethodGet, "/api/runs/"+execBody.Run, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string         `json:"status"`
		Trace  []core.NodeRun `json:"trace"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "completed", body.Status)
	require.Len(t, body.Trace, 2)
	assert.Equal(t, "s1", body.Trace[0].NodeID)

	rec = doRequest(t, api, http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTensionReport(t *testing.T) {
	api, store := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, passThroughUnit("cold", 0.1)))
	require.NoError(t, store.SaveUnit(ctx, passThroughUnit("hot", 0.9)))

	rec := doRequest(t, api, http.MethodGet, "/api/tension", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []tensionEntry
	decodeBody(t, rec, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "hot", entries[0].ID)
	assert.True(t, entries[0].Selected)
	assert.False(t, entries[1].Selected)
}
