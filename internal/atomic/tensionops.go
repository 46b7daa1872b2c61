package atomic

import (
	"context"
	"time"

	"github.com/leapstack-labs/structon/internal/tension"
	"github.com/leapstack-labs/structon/pkg/core"
)

// opCompute recomputes and persists tension for the given units: the
// input identifier(s), or the executing unit when input is empty, or
// the whole pool with all: true.
func opCompute(ctx context.Context, input any, args map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	var a struct {
		All bool `json:"all"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var units []*core.Unit
	switch {
	case a.All:
		units, err = store.QueryUnits(ctx, core.UnitQuery{})
		if err != nil {
			return nil, err
		}
	default:
		ids := identifierList(input)
		if len(ids) == 0 && env.Unit != nil {
			ids = []string{env.Unit.ID}
		}
		if len(ids) == 0 {
			return nil, core.NewError(core.ErrInvalidArgument, "compute requires unit identifiers, or all: true")
		}
		for _, id := range ids {
			u, err := store.LoadUnit(ctx, id)
			if err != nil {
				return nil, err
			}
			units = append(units, u)
		}
	}

	now := env.now()
	scores := make(map[string]any, len(units))
	for _, u := range units {
		score, err := scoreUnit(ctx, store, u, now)
		if err != nil {
			return nil, err
		}
		if err := store.UpdateTension(ctx, u.ID, score); err != nil {
			return nil, err
		}
		scores[u.ID] = score
	}
	if len(scores) == 1 && !a.All {
		for _, v := range scores {
			return v, nil
		}
	}
	return scores, nil
}

// opPropagate recomputes the whole pool leaves-first so parents feel
// their children's pressure, then persists every score.
func opPropagate(ctx context.Context, _ any, _ map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	units, err := store.QueryUnits(ctx, core.UnitQuery{})
	if err != nil {
		return nil, err
	}

	now := env.now()
	own := make(map[string]float64, len(units))
	for _, u := range units {
		score, err := scoreUnit(ctx, store, u, now)
		if err != nil {
			return nil, err
		}
		own[u.ID] = score
	}

	final := tension.Propagate(units, own)
	out := make(map[string]any, len(final))
	for id, score := range final {
		if err := store.UpdateTension(ctx, id, score); err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, nil
}

// opSelect picks the highest-tension unit from the input identifiers,
// or from the whole pool. Ties keep the earlier unit.
func opSelect(ctx context.Context, input any, _ map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}

	var pool []tension.Candidate
	if ids := identifierList(input); len(ids) > 0 {
		for _, id := range ids {
			u, err := store.LoadUnit(ctx, id)
			if err != nil {
				return nil, err
			}
			pool = append(pool, tension.Candidate{ID: u.ID, Tension: u.Tension})
		}
	} else {
		units, err := store.QueryUnits(ctx, core.UnitQuery{})
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			pool = append(pool, tension.Candidate{ID: u.ID, Tension: u.Tension})
		}
	}

	id, ok := tension.Select(pool)
	if !ok {
		return nil, core.NewError(core.ErrNotFound, "no units to select from")
	}
	return id, nil
}

// scoreUnit derives a unit's factors from its stored run history and
// waiting edges, then computes its tension.
func scoreUnit(ctx context.Context, store core.Store, u *core.Unit, now time.Time) (float64, error) {
	executed := true
	if _, err := store.LatestRun(ctx, u.ID); err != nil {
		if !core.IsKind(err, core.ErrNotFound) {
			return 0, err
		}
		executed = false
	}

	var latest map[string]any
	if executed {
		values, ok, err := store.LatestValues(ctx, u.ID)
		if err != nil {
			return 0, err
		}
		if ok {
			latest = values
		}
	}

	blocked, err := store.IsBlocked(ctx, u.ID)
	if err != nil {
		return 0, err
	}

	return tension.Compute(tension.DeriveFactors(u, latest, executed, blocked, now)), nil
}

// identifierList accepts a single identifier or a list of them.
func identifierList(input any) []string {
	switch t := input.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			if s, ok := el.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
