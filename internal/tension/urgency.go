package tension

import (
	"time"

	"github.com/leapstack-labs/structon/pkg/core"
)

// DeadlineWindow is the horizon over which an approaching deadline
// ramps urgency from 0 to 1.
const DeadlineWindow = 24 * time.Hour

// Urgency derives the urgency factor for a unit. With a deadline,
// urgency rises linearly as the deadline approaches over a 24-hour
// window and saturates at 1.0 once it passes. Without a deadline,
// urgency falls back to the unit's importance.
func Urgency(deadline *time.Time, importance float64, now time.Time) float64 {
	if deadline == nil {
		return core.Clamp01(importance)
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 1.0
	}
	return core.Clamp01(1.0 - float64(remaining)/float64(DeadlineWindow))
}

// UnresolvedRatio is the share of a unit's output-bearing nodes whose
// variable has no binding in the latest execution result. A unit that
// has never executed is fully unresolved. A unit with no
// output-bearing nodes has nothing left to resolve.
func UnresolvedRatio(u *core.Unit, latest map[string]any, executed bool) float64 {
	outputs := u.OutputNodes()
	if len(outputs) == 0 {
		return 0.0
	}
	if !executed {
		return 1.0
	}
	missing := 0
	for _, n := range outputs {
		if _, ok := latest[n.Output]; !ok {
			missing++
		}
	}
	return float64(missing) / float64(len(outputs))
}

// DeriveFactors assembles the factor set for one unit.
// latest and executed describe the unit's most recent run; blocked
// reports whether an explicit waiting-on edge targets this unit.
func DeriveFactors(u *core.Unit, latest map[string]any, executed bool, blocked bool, now time.Time) Factors {
	f := Factors{
		Importance:      core.Clamp01(u.Importance),
		Urgency:         Urgency(u.Deadline, u.Importance, now),
		UnresolvedRatio: UnresolvedRatio(u, latest, executed),
	}
	if blocked {
		f.BlockingFactor = 1.0
	}
	return f
}
