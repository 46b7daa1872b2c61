package forge

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/pkg/core"
)

// DefaultSuccessThreshold marks a unit as needing evolution when its
// recent success rate falls below it.
const DefaultSuccessThreshold = 0.5

// EvolveOptions tune unit evolution.
type EvolveOptions struct {
	// Window caps how many recent runs feed the evidence (defaults to
	// DefaultMetricsRuns).
	Window int
}

// Evolve asks the provider for a revision of the unit informed by its
// recent run evidence, then persists it as the next version. Identifier,
// kind, and parent linkage survive; only the version moves.
func (f *Forge) Evolve(ctx context.Context, unitID string, opts EvolveOptions) (*core.Unit, error) {
	u, err := f.store.LoadUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	metrics, err := f.Metrics(ctx, u.ID, opts.Window)
	if err != nil {
		return nil, err
	}

	prompt, err := intel.BuildEvolvePrompt(u, metrics.Feedback())
	if err != nil {
		return nil, err
	}
	f.logger.Debug("requesting unit revision",
		slog.String("unit", u.ID),
		slog.Float64("success_rate", metrics.SuccessRate))

	reply, err := f.provider.Submit(ctx, intel.Request{System: intel.EvolveSystem, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	next, err := f.decodeUnit(reply, u.ID)
	if err != nil {
		return nil, err
	}

	next.Kind = u.Kind
	next.Version = u.Version + 1
	next.ParentID = u.ParentID
	next.Tension = u.Tension
	if next.Importance == 0 {
		next.Importance = u.Importance
	}
	if err := loader.Validate(next); err != nil {
		return nil, err
	}

	if err := f.store.SaveUnit(ctx, next); err != nil {
		return nil, err
	}
	f.logger.Info("unit evolved",
		slog.String("unit", next.ID),
		slog.Int("version", next.Version))
	return next, nil
}

// Candidate picks the stored unit most in need of evolution: the
// highest-tension unit whose recent success rate falls below the
// threshold. Units that never ran are passed over; there is no evidence
// to revise them with.
func (f *Forge) Candidate(ctx context.Context, threshold float64, window int) (*core.Unit, error) {
	if threshold <= 0 {
		threshold = DefaultSuccessThreshold
	}

	units, err := f.store.QueryUnits(ctx, core.UnitQuery{OrderByTension: true})
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		metrics, err := f.Metrics(ctx, u.ID, window)
		if err != nil {
			return nil, err
		}
		if metrics.Runs == 0 {
			continue
		}
		if metrics.SuccessRate < threshold {
			f.logger.Debug("evolution candidate",
				slog.String("unit", u.ID),
				slog.Float64("tension", u.Tension),
				slog.Float64("success_rate", metrics.SuccessRate))
			return u, nil
		}
	}
	return nil, core.NewError(core.ErrNotFound, "no unit needs evolution")
}
