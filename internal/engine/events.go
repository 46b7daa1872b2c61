package engine

import "github.com/leapstack-labs/structon/pkg/core"

// Event names, in emission order within one run.
const (
	EventRunStart     = "run_start"
	EventNodeComplete = "node_complete"
	EventRunComplete  = "run_complete"
)

// Event is one lifecycle notification of a run. Node-level fields are
// set on node_complete only; TotalNodes rides run_start, the outcome
// counters run_complete. The JSON shape is what `run --json` prints,
// one event per line; Timestamp is stamped by the emitter.
type Event struct {
	Event  string `json:"event"`
	RunID  string `json:"run_id"`
	UnitID string `json:"unit_id"`

	NodeID     string       `json:"node_id,omitempty"`
	Outcome    core.Outcome `json:"outcome,omitempty"`
	DurationMS int64        `json:"duration_ms,omitempty"`
	Error      string       `json:"error,omitempty"`

	Status     string `json:"status,omitempty"`
	TotalNodes int    `json:"total_nodes,omitempty"`
	Completed  int    `json:"completed,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
	TotalMS    int64  `json:"total_ms,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}
