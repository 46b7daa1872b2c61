package core

import "time"

// Outcome is the terminal state of one node within an execution.
type Outcome string

// Node outcome constants.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped marks nodes never started because a dependency
	// failed upstream.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCancelled marks nodes never started because the caller
	// cancelled the run between node boundaries.
	OutcomeCancelled Outcome = "cancelled"
)

// NodeTrace is one ordered entry of an execution's per-node record.
type NodeTrace struct {
	NodeID     string  `json:"node_id"`
	Outcome    Outcome `json:"outcome"`
	DurationMS int64   `json:"duration_ms"`
	// Error holds the node-local failure message, empty on success.
	Error string `json:"error,omitempty"`
}

// ExecutionResult is what one Execute call produces.
type ExecutionResult struct {
	// Values are the final bound variables of the run's value store.
	Values map[string]any `json:"values"`
	// Trace lists every node in execution order with its outcome.
	Trace []NodeTrace `json:"trace"`
	// Success is true iff no node ended in OutcomeFailed.
	Success bool `json:"success"`
	// FailedNodes and SkippedNodes are node ids in trace order.
	FailedNodes  []string `json:"failed_nodes,omitempty"`
	SkippedNodes []string `json:"skipped_nodes,omitempty"`
}

// Outcomes returns one outcome per trace entry, in order. Useful for
// compact assertions and event emission.
func (r *ExecutionResult) Outcomes() []Outcome {
	out := make([]Outcome, len(r.Trace))
	for i, t := range r.Trace {
		out[i] = t.Outcome
	}
	return out
}

// RunStatus is the stored status of a whole execution session.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is a persisted execution session of one unit.
type Run struct {
	ID          string     `json:"id"`
	UnitID      string     `json:"unit_identifier"`
	UnitVersion int        `json:"unit_version"`
	Status      RunStatus  `json:"status"`
	Success     bool       `json:"success"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NodeRun is one persisted trace entry of a run.
type NodeRun struct {
	RunID      string  `json:"run_id"`
	NodeID     string  `json:"node_id"`
	Outcome    Outcome `json:"outcome"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	// Position preserves trace order across storage round-trips.
	Position int `json:"position"`
}

// Experience is a learned record the memory layer keeps about past
// executions: what happened, how strongly it still matters.
type Experience struct {
	ID       string
	Category string
	Summary  string
	Payload  map[string]any
	// Strength decays and reinforces via outcome feedback, in [0,1].
	Strength   float64
	Uses       int
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
