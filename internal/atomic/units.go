package atomic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/pkg/core"
)

// ImportanceDecay scales a child's inherited importance per level.
const ImportanceDecay = 0.9

// opLoad fetches a unit by identifier and returns its document.
func opLoad(ctx context.Context, input any, args map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	id, err := unitID(input, args)
	if err != nil {
		return nil, err
	}
	u, err := store.LoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return unitToMap(u)
}

// opSave validates and persists a unit document, returning its
// identifier.
func opSave(ctx context.Context, input any, _ map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	u, err := unitFromValue(input)
	if err != nil {
		return nil, err
	}
	if err := store.SaveUnit(ctx, u); err != nil {
		return nil, err
	}
	return u.ID, nil
}

// opQuery lists stored units matching the argument filters.
func opQuery(ctx context.Context, _ any, args map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	var a struct {
		Kind           string   `json:"kind"`
		Stage          string   `json:"stage"`
		Parent         string   `json:"parent"`
		Intent         string   `json:"intent"`
		RootsOnly      bool     `json:"roots_only"`
		MinTension     *float64 `json:"min_tension"`
		MaxTension     *float64 `json:"max_tension"`
		OrderByTension bool     `json:"order_by_tension"`
		Limit          int      `json:"limit"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	units, err := store.QueryUnits(ctx, core.UnitQuery{
		Kind:           core.UnitKind(a.Kind),
		Stage:          core.Stage(a.Stage),
		Parent:         a.Parent,
		Intent:         a.Intent,
		RootsOnly:      a.RootsOnly,
		MinTension:     a.MinTension,
		MaxTension:     a.MaxTension,
		OrderByTension: a.OrderByTension,
		Limit:          a.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(units))
	for _, u := range units {
		doc, err := unitToMap(u)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// opCreate builds a minimal valid unit from arguments and persists
// it. A child inherits decayed importance from its parent unless the
// importance argument overrides it.
func opCreate(ctx context.Context, _ any, args map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	var a struct {
		Intent     string   `json:"intent"`
		Kind       string   `json:"kind"`
		Stages     []string `json:"stages"`
		Importance float64  `json:"importance"`
		Parent     string   `json:"parent"`
		Deadline   string   `json:"deadline"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Intent == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "create requires an intent argument")
	}

	importance := core.Clamp01(a.Importance)
	if a.Parent != "" {
		parent, err := store.LoadUnit(ctx, a.Parent)
		if err != nil {
			return nil, err
		}
		if _, set := args["importance"]; !set {
			importance = core.Clamp01(parent.Importance * ImportanceDecay)
		}
	}

	u := scaffoldUnit(a.Intent, a.Kind, a.Stages, env.now())
	u.Importance = importance
	u.ParentID = a.Parent
	if a.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, a.Deadline)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidArgument, err, "deadline must be RFC 3339")
		}
		u.Deadline = &deadline
	}
	if err := loader.Validate(u); err != nil {
		return nil, err
	}
	if err := store.SaveUnit(ctx, u); err != nil {
		return nil, err
	}
	return unitToMap(u)
}

// opUpdate mutates named fields on a stored unit and bumps its
// version.
func opUpdate(ctx context.Context, input any, args map[string]any, env *Env) (any, error) {
	store, err := env.requireStore()
	if err != nil {
		return nil, err
	}
	id, err := unitID(input, args)
	if err != nil {
		return nil, err
	}
	u, err := store.LoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}

	if v, ok := args["intent"]; ok {
		u.Intent = toString(v)
	}
	if v, ok := args["importance"]; ok {
		f, isNum := asFloat(v)
		if !isNum {
			return nil, core.NewError(core.ErrInvalidArgument, "importance must be a number")
		}
		u.Importance = core.Clamp01(f)
	}
	if v, ok := args["deadline"]; ok {
		deadline, err := time.Parse(time.RFC3339, toString(v))
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidArgument, err, "deadline must be RFC 3339")
		}
		u.Deadline = &deadline
	}
	if v, ok := args["parent"]; ok {
		u.ParentID = toString(v)
	}

	u.Version++
	if err := loader.Validate(u); err != nil {
		return nil, err
	}
	if err := store.SaveUnit(ctx, u); err != nil {
		return nil, err
	}
	return unitToMap(u)
}

// scaffoldUnit is the smallest unit that passes validation: one
// identity node in a single stage.
func scaffoldUnit(intent, kind string, stages []string, now time.Time) *core.Unit {
	if kind == "" {
		kind = string(core.KindAtomic)
	}
	if len(stages) == 0 {
		stages = []string{string(core.StageAct)}
	}
	coreStages := make([]core.Stage, len(stages))
	for i, s := range stages {
		coreStages[i] = core.Stage(strings.ToLower(s))
	}
	return &core.Unit{
		ID:      core.NewUnitID(now),
		Kind:    core.UnitKind(strings.ToLower(kind)),
		Intent:  intent,
		Stages:  coreStages,
		Version: 1,
		Nodes: []core.Node{
			{ID: "main", Stage: coreStages[0], Role: core.RoleProcess, Operation: "identity", Output: "result"},
		},
	}
}

func unitID(input any, args map[string]any) (string, error) {
	if v, ok := args["id"]; ok {
		if s := toString(v); s != "" {
			return s, nil
		}
	}
	if s, ok := input.(string); ok && s != "" {
		return s, nil
	}
	return "", core.NewError(core.ErrInvalidArgument, "a unit identifier is required (input or id argument)")
}

// unitToMap renders a unit as its document form for the value store.
func unitToMap(u *core.Unit) (map[string]any, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "failed to encode unit %s", u.ID)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "failed to decode unit %s", u.ID)
	}
	return doc, nil
}

// unitFromValue accepts a *core.Unit or a document map and returns a
// validated unit.
func unitFromValue(v any) (*core.Unit, error) {
	switch t := v.(type) {
	case *core.Unit:
		if err := loader.Validate(t); err != nil {
			return nil, err
		}
		return t, nil
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidArgument, err, "failed to encode unit document")
		}
		return loader.Parse(raw, loader.FormatJSON, "<value>")
	default:
		return nil, core.NewError(core.ErrInvalidArgument, "expected a unit document, got %T", v)
	}
}
