// Package engine provides the unit execution interpreter.
// It resolves each unit's node graph into a deterministic order,
// dispatches primitives through the operation registry, threads bound
// values between nodes, and recurses into invoked child units with
// depth and self-reference guards.
package engine

import (
	"io"
	"log/slog"
	"time"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/pkg/core"
)

// DefaultMaxDepth bounds sub-unit invocation nesting.
const DefaultMaxDepth = 10

// Engine executes unit graphs.
type Engine struct {
	store    core.Store
	registry *atomic.Registry
	provider intel.Provider
	logger   *slog.Logger

	maxDepth    int
	nodeTimeout time.Duration
	events      func(Event)
	emit        func(v any)
	now         func() time.Time
}

// Config holds engine configuration.
type Config struct {
	// Store persists runs and resolves sub-unit references (optional).
	Store core.Store
	// Registry supplies the primitives (defaults to the built-in set).
	Registry *atomic.Registry
	// Provider backs the intel primitives (optional).
	Provider intel.Provider
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// MaxDepth bounds sub-unit nesting (defaults to DefaultMaxDepth).
	MaxDepth int
	// NodeTimeout bounds each node's execution; zero means unbounded.
	NodeTimeout time.Duration
	// Events receives run lifecycle notifications (optional).
	Events func(Event)
	// Emit receives values produced by the emit primitive (optional).
	Emit func(v any)
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	registry := cfg.Registry
	if registry == nil {
		registry = atomic.DefaultRegistry()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger.Debug("initializing engine",
		slog.Int("max_depth", maxDepth),
		slog.Int("operations", registry.Count()))

	return &Engine{
		store:       cfg.Store,
		registry:    registry,
		provider:    cfg.Provider,
		logger:      logger,
		maxDepth:    maxDepth,
		nodeTimeout: cfg.NodeTimeout,
		events:      cfg.Events,
		emit:        cfg.Emit,
		now:         now,
	}
}

// Registry returns the operation registry the engine dispatches through.
func (e *Engine) Registry() *atomic.Registry {
	return e.registry
}

// Store returns the wired store, or nil.
func (e *Engine) Store() core.Store {
	return e.store
}

// Provider returns the wired model provider, or nil.
func (e *Engine) Provider() intel.Provider {
	return e.provider
}

func (e *Engine) event(evt Event) {
	if e.events != nil {
		e.events(evt)
	}
}
