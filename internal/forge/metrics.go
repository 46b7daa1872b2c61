package forge

import (
	"context"
	"fmt"
	"sort"

	"github.com/leapstack-labs/structon/pkg/core"
)

// DefaultMetricsRuns is the run window metrics summarize by default.
const DefaultMetricsRuns = 5

// Metrics summarize a unit's recent executions as evolution evidence.
type Metrics struct {
	UnitID      string
	Runs        int
	Successes   int
	SuccessRate float64
	// FailedNodes counts, per node id, how many recent runs it failed in.
	FailedNodes   map[string]int
	AvgDurationMS int64
	// LastError is the most recent run-level error message, if any.
	LastError string
}

// Metrics gathers the unit's last runs and their traces. A unit with no
// runs yields zero metrics, not an error.
func (f *Forge) Metrics(ctx context.Context, unitID string, window int) (*Metrics, error) {
	if window <= 0 {
		window = DefaultMetricsRuns
	}
	runs, err := f.store.ListRuns(ctx, unitID, window)
	if err != nil {
		return nil, err
	}

	m := &Metrics{UnitID: unitID, FailedNodes: make(map[string]int)}
	var totalMS int64
	traced := 0
	for _, r := range runs {
		m.Runs++
		if r.Success {
			m.Successes++
		}
		if r.Error != "" && m.LastError == "" {
			m.LastError = r.Error
		}

		trace, err := f.store.GetTrace(ctx, r.ID)
		if err != nil {
			continue
		}
		var runMS int64
		for _, nr := range trace {
			if nr.Outcome == core.OutcomeFailed {
				m.FailedNodes[nr.NodeID]++
			}
			runMS += nr.DurationMS
		}
		totalMS += runMS
		traced++
	}
	if m.Runs > 0 {
		m.SuccessRate = float64(m.Successes) / float64(m.Runs)
	}
	if traced > 0 {
		m.AvgDurationMS = totalMS / int64(traced)
	}
	return m, nil
}

// Feedback renders the metrics as prompt-ready evidence lines, worst
// offenders first.
func (m *Metrics) Feedback() []string {
	if m.Runs == 0 {
		return nil
	}
	lines := []string{fmt.Sprintf("%d of %d recent runs succeeded", m.Successes, m.Runs)}

	nodes := make([]string, 0, len(m.FailedNodes))
	for id := range m.FailedNodes {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if m.FailedNodes[nodes[i]] != m.FailedNodes[nodes[j]] {
			return m.FailedNodes[nodes[i]] > m.FailedNodes[nodes[j]]
		}
		return nodes[i] < nodes[j]
	})
	for _, id := range nodes {
		lines = append(lines, fmt.Sprintf("node %s failed in %d of %d runs", id, m.FailedNodes[id], m.Runs))
	}

	if m.LastError != "" {
		lines = append(lines, "most recent error: "+m.LastError)
	}
	return lines
}
