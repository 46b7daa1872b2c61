// Package memory layers activation scoring and strength feedback on
// top of the store's experience records. Recording is the caller's
// call; this package decides what surfaces when a cue comes in and
// how strength drifts with outcomes.
package memory

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Tunables with their default values.
const (
	// DefaultStrength is the initial strength of a new record.
	DefaultStrength = 0.5
	// DefaultAlpha weights outcome feedback against prior strength.
	DefaultAlpha = 0.2
	// DefaultHalfLife halves an unused record's recency factor.
	DefaultHalfLife = 7 * 24 * time.Hour
	// DefaultPruneFloor is the strength below which records may be
	// pruned.
	DefaultPruneFloor = 0.2
	// DefaultPruneAge protects recently used records from pruning
	// regardless of strength.
	DefaultPruneAge = 14 * 24 * time.Hour
)

// Options configures a Memory.
type Options struct {
	Logger     *slog.Logger
	Alpha      float64
	HalfLife   time.Duration
	PruneFloor float64
	PruneAge   time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Memory scores and adjusts experience records through a core.Store.
type Memory struct {
	store core.Store
	opts  Options
}

// New creates a Memory over the given store.
func New(store core.Store, optFns ...func(*Options)) *Memory {
	opts := Options{
		Alpha:      DefaultAlpha,
		HalfLife:   DefaultHalfLife,
		PruneFloor: DefaultPruneFloor,
		PruneAge:   DefaultPruneAge,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Memory{store: store, opts: opts}
}

// Record stores a new experience with the default strength.
func (m *Memory) Record(ctx context.Context, category, summary string, payload map[string]any) (*core.Experience, error) {
	if summary == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "experience summary is required")
	}
	e := &core.Experience{
		Category:  category,
		Summary:   summary,
		Payload:   payload,
		Strength:  DefaultStrength,
		CreatedAt: m.opts.Now().UTC(),
	}
	if err := m.store.SaveExperience(ctx, e); err != nil {
		return nil, err
	}
	m.opts.Logger.Debug("recorded experience", "id", e.ID, "category", category)
	return e, nil
}

// Activate returns the k most relevant experiences for a cue and
// stamps each returned record as used. Relevance is the product of
// strength, recency, and term overlap with the cue; an empty cue
// drops the overlap term.
func (m *Memory) Activate(ctx context.Context, cue string, k int) ([]*core.Experience, error) {
	if k <= 0 {
		return nil, nil
	}
	all, err := m.store.ListExperiences(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	now := m.opts.Now().UTC()
	cueTerms := terms(cue)
	scores := make(map[string]float64, len(all))
	for _, e := range all {
		scores[e.ID] = m.score(e, cueTerms, now)
	}
	// ListExperiences orders strength desc then age; a stable sort
	// keeps that order for score ties.
	sort.SliceStable(all, func(i, j int) bool {
		return scores[all[i].ID] > scores[all[j].ID]
	})

	if k > len(all) {
		k = len(all)
	}
	picked := all[:k]
	for _, e := range picked {
		if err := m.store.TouchExperience(ctx, e.ID, e.Strength, now); err != nil {
			return nil, err
		}
		e.Uses++
		used := now
		e.LastUsedAt = &used
	}
	return picked, nil
}

// Feedback folds an outcome in [0, 1] into an experience's strength
// and returns the new value. 1 reinforces, 0 erodes.
func (m *Memory) Feedback(ctx context.Context, id string, outcome float64) (float64, error) {
	e, err := m.store.GetExperience(ctx, id)
	if err != nil {
		return 0, err
	}
	outcome = core.Clamp01(outcome)
	e.Strength = core.Clamp01(e.Strength*(1-m.opts.Alpha) + outcome*m.opts.Alpha)
	if err := m.store.SaveExperience(ctx, e); err != nil {
		return 0, err
	}
	m.opts.Logger.Debug("experience feedback", "id", id, "outcome", outcome, "strength", e.Strength)
	return e.Strength, nil
}

// Prune removes records below the strength floor that have not been
// used within the age window. Returns the number removed.
func (m *Memory) Prune(ctx context.Context) (int64, error) {
	cutoff := m.opts.Now().UTC().Add(-m.opts.PruneAge)
	n, err := m.store.PruneExperiences(ctx, m.opts.PruneFloor, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.opts.Logger.Info("pruned experiences", "removed", n)
	}
	return n, nil
}

func (m *Memory) score(e *core.Experience, cueTerms []string, now time.Time) float64 {
	ref := e.CreatedAt
	if e.LastUsedAt != nil && e.LastUsedAt.After(ref) {
		ref = *e.LastUsedAt
	}
	age := now.Sub(ref)
	if age < 0 {
		age = 0
	}
	recency := math.Pow(0.5, age.Hours()/m.opts.HalfLife.Hours())

	score := e.Strength * recency
	if len(cueTerms) > 0 {
		score *= overlap(cueTerms, terms(e.Category+" "+e.Summary))
	}
	return score
}

// overlap is the fraction of cue terms present in the record's terms.
func overlap(cue, record []string) float64 {
	if len(cue) == 0 {
		return 1
	}
	have := make(map[string]struct{}, len(record))
	for _, t := range record {
		have[t] = struct{}{}
	}
	hits := 0
	for _, t := range cue {
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(cue))
}

func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
