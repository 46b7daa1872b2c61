// Package tension computes and propagates the priority signal that
// drives unit selection. All functions are pure; persistence and tree
// loading belong to the callers.
package tension

import (
	"sort"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Factor weights. They sum to 1.0 so an all-ones factor set maps to
// exactly 1.0 before clamping.
const (
	WeightImportance = 0.3
	WeightUrgency    = 0.3
	WeightUnresolved = 0.2
	WeightBlocking   = 0.2
)

// Feedback multipliers applied after a run completes.
const (
	SuccessDamping  = 0.9
	FailureBoosting = 1.15
)

// Factors are the normalized inputs to a tension computation. Each is
// expected in [0, 1]; Compute clamps the result regardless.
type Factors struct {
	// Importance is the caller-declared weight of the unit.
	Importance float64
	// Urgency is deadline proximity, or importance when no deadline.
	Urgency float64
	// UnresolvedRatio is the share of output-bearing nodes with no
	// binding in the latest result. 1.0 for never-executed units.
	UnresolvedRatio float64
	// BlockingFactor is 1.0 when another unit waits on this one.
	BlockingFactor float64
}

// Compute derives a tension score from the weighted factors,
// clamped to [0, 1].
func Compute(f Factors) float64 {
	t := f.Importance*WeightImportance +
		f.Urgency*WeightUrgency +
		f.UnresolvedRatio*WeightUnresolved +
		f.BlockingFactor*WeightBlocking
	return core.Clamp01(t)
}

// Feedback adjusts a tension score after a run: success damps it,
// failure raises it. The result is reclamped.
func Feedback(tension float64, success bool) float64 {
	if success {
		return core.Clamp01(tension * SuccessDamping)
	}
	return core.Clamp01(tension * FailureBoosting)
}

// Candidate is one selectable unit in a scheduling pool.
type Candidate struct {
	ID      string
	Tension float64
}

// Select returns the id of the highest-tension candidate. Ties keep
// the earlier candidate, so pool order decides. The second return is
// false for an empty pool.
func Select(pool []Candidate) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}
	best := pool[0]
	for _, c := range pool[1:] {
		if c.Tension > best.Tension {
			best = c
		}
	}
	return best.ID, true
}

// Rank returns the pool sorted by descending tension. The sort is
// stable, so equal scores keep their pool order.
func Rank(pool []Candidate) []Candidate {
	out := append([]Candidate(nil), pool...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tension > out[j].Tension
	})
	return out
}

// Propagate recomputes tension bottom-up across a unit tree. A parent
// score is max(max(children)*0.7 + mean(children)*0.3, own[parent]),
// so pressure climbs toward the roots but never drops a parent below
// its own computed score. own maps unit id to the unit's own Compute
// result; the return maps every unit id to its propagated score.
//
// Children are found through ParentID back-references. Units whose
// parent is missing from the slice are treated as roots. A corrupt
// parent chain (a cycle) terminates because each unit is visited once.
func Propagate(units []*core.Unit, own map[string]float64) map[string]float64 {
	children := make(map[string][]string)
	ids := make(map[string]bool, len(units))
	for _, u := range units {
		ids[u.ID] = true
	}
	var roots []string
	for _, u := range units {
		if u.ParentID != "" && ids[u.ParentID] {
			children[u.ParentID] = append(children[u.ParentID], u.ID)
		} else {
			roots = append(roots, u.ID)
		}
	}

	result := make(map[string]float64, len(units))
	visited := make(map[string]bool, len(units))

	var walk func(id string) float64
	walk = func(id string) float64 {
		if visited[id] {
			return result[id]
		}
		visited[id] = true

		kids := children[id]
		if len(kids) == 0 {
			result[id] = core.Clamp01(own[id])
			return result[id]
		}

		var max, sum float64
		for i, kid := range kids {
			score := walk(kid)
			sum += score
			if i == 0 || score > max {
				max = score
			}
		}
		mean := sum / float64(len(kids))
		score := max*0.7 + mean*0.3
		if o := own[id]; o > score {
			score = o
		}
		result[id] = core.Clamp01(score)
		return result[id]
	}

	for _, root := range roots {
		walk(root)
	}
	// Units reachable only through a cycle still get their own score.
	for _, u := range units {
		if !visited[u.ID] {
			walk(u.ID)
		}
	}
	return result
}
