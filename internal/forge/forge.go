// Package forge generates and evolves units through a language-model
// provider. Generation turns a goal into a validated unit document;
// evolution revises an existing unit using evidence from its recent
// runs. The forge is the only writer that bumps unit versions.
package forge

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/internal/memory"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Forge turns goals into units and revises units that underperform.
type Forge struct {
	store    core.Store
	provider intel.Provider
	registry *atomic.Registry
	memory   *memory.Memory
	logger   *slog.Logger
	now      func() time.Time
}

// Config holds forge configuration.
type Config struct {
	// Store persists generated units and supplies run evidence.
	Store core.Store
	// Provider produces and revises unit documents.
	Provider intel.Provider
	// Registry bounds the operation vocabulary offered to the model
	// (defaults to the built-in set).
	Registry *atomic.Registry
	// Memory, when set, seasons generation prompts with activated
	// experience summaries.
	Memory *memory.Memory
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// New creates a forge.
func New(cfg Config) *Forge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	registry := cfg.Registry
	if registry == nil {
		registry = atomic.DefaultRegistry()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Forge{
		store:    cfg.Store,
		provider: cfg.Provider,
		registry: registry,
		memory:   cfg.Memory,
		logger:   logger,
		now:      now,
	}
}

// decodeUnit turns a raw model reply into a validated unit carrying the
// given identifier. The model's own identifier choice is discarded so
// replies cannot collide with or overwrite stored units.
func (f *Forge) decodeUnit(reply, id string) (*core.Unit, error) {
	value, err := intel.ParseJSON(reply)
	if err != nil {
		return nil, err
	}
	doc, ok := value.(map[string]any)
	if !ok {
		return nil, core.NewError(core.ErrInvalidArgument, "model reply is not a unit document")
	}
	doc["identifier"] = id

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "failed to encode model reply")
	}
	return loader.Parse(raw, loader.FormatJSON, "")
}
