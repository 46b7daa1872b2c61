package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/structon/internal/engine"
	"github.com/leapstack-labs/structon/internal/tension"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Handlers holds the API endpoint implementations.
type Handlers struct {
	engine *engine.Engine
	store  core.Store
	logger *slog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(eng *engine.Engine, store core.Store, logger *slog.Logger) *Handlers {
	return &Handlers{engine: eng, store: store, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeError maps error kinds onto HTTP status codes and emits the
// JSON error envelope.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsKind(err, core.ErrNotFound):
		status = http.StatusNotFound
	case core.IsKind(err, core.ErrInvalidArgument):
		status = http.StatusBadRequest
	case core.IsKind(err, core.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Health reports server liveness and the size of the unit pool.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	units, err := h.store.QueryUnits(r.Context(), core.UnitQuery{})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"units":  len(units),
	})
}

// ListUnits returns stored units. Query params mirror the CLI list
// filters: kind, stage, parent, intent, roots, by_tension, limit.
func (h *Handlers) ListUnits(w http.ResponseWriter, r *http.Request) {
	q := core.UnitQuery{
		Kind:   core.UnitKind(r.URL.Query().Get("kind")),
		Stage:  core.Stage(r.URL.Query().Get("stage")),
		Parent: r.URL.Query().Get("parent"),
		Intent: r.URL.Query().Get("intent"),
	}
	if r.URL.Query().Get("roots") == "true" {
		q.RootsOnly = true
	}
	if r.URL.Query().Get("by_tension") == "true" {
		q.OrderByTension = true
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, core.NewError(core.ErrInvalidArgument, "invalid limit %q", raw))
			return
		}
		q.Limit = limit
	}

	units, err := h.store.QueryUnits(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if units == nil {
		units = []*core.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}

// GetUnit returns one stored unit document.
func (h *Handlers) GetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.LoadUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type executeRequest struct {
	Values map[string]any `json:"values"`
}

type executeResponse struct {
	Unit string `json:"unit"`
	Run  string `json:"run,omitempty"`
	*core.ExecutionResult
}

// ExecuteUnit runs a stored unit with optional initial values.
func (h *Handlers) ExecuteUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req executeRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, core.NewError(core.ErrInvalidArgument, "failed to read body: %v", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, core.NewError(core.ErrInvalidArgument, "invalid request body: %v", err))
			return
		}
	}

	result, err := h.engine.ExecuteByID(r.Context(), id, req.Values)
	if err != nil {
		h.writeError(w, err)
		return
	}

	runID := ""
	if latest, err := h.store.LatestRun(r.Context(), id); err == nil {
		runID = latest.ID
	}
	writeJSON(w, http.StatusOK, executeResponse{Unit: id, Run: runID, ExecutionResult: result})
}

type runResponse struct {
	*core.Run
	Trace []core.NodeRun `json:"trace,omitempty"`
}

// ListRuns returns the run history of one unit, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	unitID := r.URL.Query().Get("unit")
	if unitID == "" {
		h.writeError(w, core.NewError(core.ErrInvalidArgument, "the unit query parameter is required"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, core.NewError(core.ErrInvalidArgument, "invalid limit %q", raw))
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), unitID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*core.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run with its node trace.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	trace, err := h.store.GetTrace(r.Context(), id)
	if err != nil && !core.IsKind(err, core.ErrNotFound) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Trace: trace})
}

type tensionEntry struct {
	ID       string  `json:"identifier"`
	Tension  float64 `json:"tension"`
	Kind     string  `json:"kind"`
	Intent   string  `json:"intent"`
	Selected bool    `json:"selected"`
}

// TensionReport returns the pool ranked by tension, hottest first.
func (h *Handlers) TensionReport(w http.ResponseWriter, r *http.Request) {
	units, err := h.store.QueryUnits(r.Context(), core.UnitQuery{OrderByTension: true})
	if err != nil {
		h.writeError(w, err)
		return
	}

	pool := make([]tension.Candidate, 0, len(units))
	byID := make(map[string]*core.Unit, len(units))
	for _, u := range units {
		pool = append(pool, tension.Candidate{ID: u.ID, Tension: u.Tension})
		byID[u.ID] = u
	}
	selected, _ := tension.Select(pool)

	entries := make([]tensionEntry, 0, len(pool))
	for _, c := range tension.Rank(pool) {
		u := byID[c.ID]
		entries = append(entries, tensionEntry{
			ID:       c.ID,
			Tension:  c.Tension,
			Kind:     string(u.Kind),
			Intent:   u.Intent,
			Selected: c.ID == selected,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}
