package forge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/pkg/core"
)

// DefaultImportance is assigned to generated units when neither a
// parent nor an explicit override supplies one.
const DefaultImportance = 0.5

// CreateOptions tune unit generation.
type CreateOptions struct {
	// Parent scopes the new unit under an existing one. The child
	// inherits the parent's importance decayed by one level.
	Parent string
	// Importance, when set, overrides the inherited or default value.
	Importance *float64
	// Experiences caps how many activated memories season the prompt;
	// zero disables recall.
	Experiences int
}

// Create asks the provider for a unit that serves the goal, validates
// the reply, and persists it under a freshly minted identifier.
func (f *Forge) Create(ctx context.Context, goal string, opts CreateOptions) (*core.Unit, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "goal is required")
	}

	var parent *core.Unit
	if opts.Parent != "" {
		var err error
		parent, err = f.store.LoadUnit(ctx, opts.Parent)
		if err != nil {
			return nil, err
		}
	}

	var hints []string
	if f.memory != nil && opts.Experiences > 0 {
		recalled, err := f.memory.Activate(ctx, goal, opts.Experiences)
		if err != nil {
			f.logger.Warn("experience recall failed", slog.String("error", err.Error()))
		}
		for _, e := range recalled {
			hints = append(hints, e.Summary)
		}
	}

	prompt := intel.BuildCreatePrompt(goal, f.registry.Names(), parent, hints)
	f.logger.Debug("requesting unit generation",
		slog.String("goal", goal),
		slog.Int("hints", len(hints)))

	reply, err := f.provider.Submit(ctx, intel.Request{System: intel.CreateSystem, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	u, err := f.decodeUnit(reply, core.NewUnitID(f.now()))
	if err != nil {
		return nil, err
	}

	u.Version = 1
	u.Tension = 0
	if parent != nil {
		u.ParentID = parent.ID
		u.Importance = core.Clamp01(parent.Importance * atomic.ImportanceDecay)
	} else if u.Importance == 0 {
		u.Importance = DefaultImportance
	}
	if opts.Importance != nil {
		u.Importance = core.Clamp01(*opts.Importance)
	}
	if err := loader.Validate(u); err != nil {
		return nil, err
	}

	if err := f.store.SaveUnit(ctx, u); err != nil {
		return nil, err
	}
	f.logger.Info("unit created",
		slog.String("unit", u.ID),
		slog.String("intent", u.Intent),
		slog.Int("nodes", len(u.Nodes)))
	return u, nil
}
