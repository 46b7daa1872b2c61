package atomic

import (
	"io"
	"log/slog"
	"time"

	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Values is the read view of a run's bound variables. The interpreter
// owns the writes; operations only observe.
type Values interface {
	// Get returns the value bound to name.
	Get(name string) (any, bool)
	// Snapshot returns a copy of all current bindings.
	Snapshot() map[string]any
}

// Env carries the run-scoped services an operation may use. Fields are
// nil when the surrounding command runs without them; operations that
// need a missing service fail with a descriptive error rather than
// panic.
type Env struct {
	Logger   *slog.Logger
	Store    core.Store
	Provider intel.Provider
	Registry *Registry
	Values   Values

	// Unit is the unit whose node is executing.
	Unit *core.Unit
	// Emit receives values from the emit operation. Defaults to the
	// logger when unset.
	Emit func(v any)
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

func (e *Env) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) lookupValue(name string) (any, bool) {
	if e == nil || e.Values == nil {
		return nil, false
	}
	return e.Values.Get(name)
}

func (e *Env) requireStore() (core.Store, error) {
	if e == nil || e.Store == nil {
		return nil, core.NewError(core.ErrNotFound, "no store configured")
	}
	return e.Store, nil
}

func (e *Env) requireProvider() (intel.Provider, error) {
	if e == nil || e.Provider == nil {
		return nil, core.NewError(core.ErrExternalService, "no model provider configured")
	}
	return e.Provider, nil
}
