package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/dag"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Execute runs a unit to completion. Initial values seed the run's
// value store; cancellation rides the context and is checked between
// nodes. When execution aborts mid-run the returned result still
// carries the full trace; prevalidation failures return a nil result.
func (e *Engine) Execute(ctx context.Context, u *core.Unit, initial map[string]any) (*core.ExecutionResult, error) {
	return e.execute(ctx, u, initial, nil)
}

// ExecuteByID loads a unit from the store and executes it.
func (e *Engine) ExecuteByID(ctx context.Context, id string, initial map[string]any) (*core.ExecutionResult, error) {
	if e.store == nil {
		return nil, core.NewError(core.ErrNotFound, "no store configured")
	}
	u, err := e.store.LoadUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, u, initial, nil)
}

func (e *Engine) execute(ctx context.Context, u *core.Unit, initial map[string]any, ancestors []string) (*core.ExecutionResult, error) {
	logger := e.logger.With(slog.String("unit", u.ID))

	g, err := dag.FromUnit(u)
	if err != nil {
		return nil, err
	}
	if cyclic, path := g.HasCycle(); cyclic {
		return nil, core.NewError(core.ErrCyclicGraph, "unit %s: dependency cycle: %v", u.ID, path)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	if unbound := dag.UnboundRefs(u, initial); len(unbound) > 0 {
		ub := unbound[0]
		return nil, core.NodeError(core.ErrUnboundVariable, ub.NodeID,
			"unit %s: $%s is neither produced by a node nor supplied by the caller", u.ID, ub.Var)
	}
	if err := e.resolveChildRefs(ctx, u); err != nil {
		return nil, err
	}

	runID := core.NewRunID()
	if e.store != nil {
		_ = e.store.CreateRun(ctx, &core.Run{
			ID:          runID,
			UnitID:      u.ID,
			UnitVersion: u.Version,
			Status:      core.RunStatusRunning,
			StartedAt:   e.now(),
		})
	}

	logger.Info("starting run",
		slog.String("run", runID),
		slog.Int("nodes", len(order)),
		slog.Int("depth", len(ancestors)))
	e.event(Event{Event: EventRunStart, RunID: runID, UnitID: u.ID, TotalNodes: len(order)})

	values := newValueStore(initial)
	env := &atomic.Env{
		Logger:   e.logger,
		Store:    e.store,
		Provider: e.provider,
		Registry: e.registry,
		Values:   values,
		Unit:     u,
		Emit:     e.emit,
		Now:      e.now,
	}
	cache := newMemo()

	result := &core.ExecutionResult{Trace: make([]core.NodeTrace, 0, len(order))}
	skip := make(map[string]string)
	runStart := time.Now()
	var fatal error

	for i, gn := range order {
		n := gn.Data.(*core.Node)

		if fatal != nil {
			result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID, Outcome: core.OutcomeSkipped, Error: "run aborted"})
			result.SkippedNodes = append(result.SkippedNodes, n.ID)
			continue
		}

		if ctx.Err() != nil {
			e.cancelRemaining(result, order[i:])
			fatal = core.WrapError(core.ErrCancelled, ctx.Err(),
				"unit %s cancelled after %d of %d nodes", u.ID, i, len(order))
			break
		}

		if reason, ok := skip[n.ID]; ok {
			result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID, Outcome: core.OutcomeSkipped, Error: reason})
			result.SkippedNodes = append(result.SkippedNodes, n.ID)
			e.event(Event{Event: EventNodeComplete, RunID: runID, UnitID: u.ID,
				NodeID: n.ID, Outcome: core.OutcomeSkipped, Error: reason})
			continue
		}

		nodeStart := time.Now()
		out, nodeErr := e.runNode(ctx, env, cache, u, n, ancestors)
		elapsed := time.Since(nodeStart).Milliseconds()

		if nodeErr != nil {
			if core.IsKind(nodeErr, core.ErrCancelled) {
				result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID,
					Outcome: core.OutcomeCancelled, DurationMS: elapsed, Error: nodeErr.Error()})
				e.cancelRemaining(result, order[i+1:])
				fatal = nodeErr
				break
			}

			result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID,
				Outcome: core.OutcomeFailed, DurationMS: elapsed, Error: nodeErr.Error()})
			result.FailedNodes = append(result.FailedNodes, n.ID)
			e.event(Event{Event: EventNodeComplete, RunID: runID, UnitID: u.ID,
				NodeID: n.ID, Outcome: core.OutcomeFailed, DurationMS: elapsed, Error: nodeErr.Error()})

			if abortError(nodeErr) {
				logger.Error("run aborted",
					slog.String("node", n.ID),
					slog.String("error", nodeErr.Error()))
				fatal = nodeErr
				continue
			}

			logger.Warn("node failed",
				slog.String("node", n.ID),
				slog.String("error", nodeErr.Error()))
			for _, dep := range g.Dependents(n.ID) {
				if _, seen := skip[dep]; !seen {
					skip[dep] = fmt.Sprintf("dependency %s failed", n.ID)
				}
			}
			continue
		}

		if n.Output != "" {
			values.Bind(n.Output, out)
		}
		result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID,
			Outcome: core.OutcomeCompleted, DurationMS: elapsed})
		logger.Debug("node completed", slog.String("node", n.ID), slog.Int64("duration_ms", elapsed))
		e.event(Event{Event: EventNodeComplete, RunID: runID, UnitID: u.ID,
			NodeID: n.ID, Outcome: core.OutcomeCompleted, DurationMS: elapsed})
	}

	result.Values = values.Snapshot()
	result.Success = fatal == nil && len(result.FailedNodes) == 0

	status := core.RunStatusCompleted
	errMsg := ""
	switch {
	case fatal != nil && core.IsKind(fatal, core.ErrCancelled):
		status = core.RunStatusCancelled
		errMsg = fatal.Error()
	case fatal != nil:
		status = core.RunStatusFailed
		errMsg = fatal.Error()
	case len(result.FailedNodes) > 0:
		status = core.RunStatusFailed
		errMsg = fmt.Sprintf("%d of %d nodes failed", len(result.FailedNodes), len(order))
	}

	totalMS := time.Since(runStart).Milliseconds()
	if e.store != nil {
		// Runs must land in the store even when the caller's context is
		// already cancelled.
		persistCtx := context.WithoutCancel(ctx)
		_ = e.store.SaveTrace(persistCtx, runID, result.Trace)
		_ = e.store.CompleteRun(persistCtx, runID, status, result.Success, errMsg, result.Values)
	}

	counts := outcomeCounts(result)
	logger.Info("run finished",
		slog.String("run", runID),
		slog.String("status", string(status)),
		slog.Int("completed", counts[core.OutcomeCompleted]),
		slog.Int("failed", counts[core.OutcomeFailed]),
		slog.Int("skipped", counts[core.OutcomeSkipped]),
		slog.Int64("total_ms", totalMS))
	e.event(Event{
		Event:      EventRunComplete,
		RunID:      runID,
		UnitID:     u.ID,
		Status:     string(status),
		TotalNodes: len(order),
		Completed:  counts[core.OutcomeCompleted],
		Failed:     counts[core.OutcomeFailed],
		Skipped:    counts[core.OutcomeSkipped],
		TotalMS:    totalMS,
	})

	if fatal != nil {
		return result, fatal
	}
	return result, nil
}

// runNode resolves the node's input and either dispatches its primitive
// or recurses into the invoked child unit. A per-node timeout, when
// configured, bounds both.
func (e *Engine) runNode(ctx context.Context, env *atomic.Env, cache *memo, u *core.Unit, n *core.Node, ancestors []string) (any, error) {
	input, err := resolveInput(n.Input, env.Values)
	if err != nil {
		return nil, err
	}

	opCtx := ctx
	cancel := func() {}
	if e.nodeTimeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, e.nodeTimeout)
	}
	defer cancel()

	var out any
	if n.Role == core.RoleInvoke {
		out, err = e.invokeChild(opCtx, u, n, input, ancestors)
	} else {
		op, ok := e.registry.Lookup(n.Operation)
		if !ok {
			return nil, core.NodeError(core.ErrUnknownOperation, n.ID, "operation %q is not registered", n.Operation)
		}
		key, keyed := "", false
		if op.Pure {
			if key, keyed = memoKey(n.Operation, input, n.Args); keyed {
				if v, hit := cache.get(key); hit {
					return v, nil
				}
			}
		}
		out, err = op.Fn(opCtx, input, n.Args, env)
		if err == nil && keyed {
			cache.put(key, out)
		}
	}

	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, core.NodeError(core.ErrTimeout, n.ID, "node exceeded the %s timeout", e.nodeTimeout)
		}
		return nil, err
	}
	return out, nil
}

// invokeChild runs the unit an invoke node references, blocking the
// parent. The ancestor chain carries every active unit id so repeated
// and runaway invocations are caught before recursing.
func (e *Engine) invokeChild(ctx context.Context, parent *core.Unit, n *core.Node, input any, ancestors []string) (any, error) {
	chain := make([]string, 0, len(ancestors)+1)
	chain = append(chain, ancestors...)
	chain = append(chain, parent.ID)

	for _, id := range chain {
		if id == n.ChildRef {
			return nil, core.NodeError(core.ErrSelfReferential, n.ID,
				"unit %s invokes %s, which is already active in the invocation chain", parent.ID, n.ChildRef)
		}
	}
	if len(chain) >= e.maxDepth {
		return nil, core.NodeError(core.ErrDepthExceeded, n.ID,
			"invoking %s would exceed the depth limit of %d", n.ChildRef, e.maxDepth)
	}
	if e.store == nil {
		return nil, core.NodeError(core.ErrUnresolvedReference, n.ID,
			"no store configured to resolve unit %s", n.ChildRef)
	}

	child, err := e.store.LoadUnit(ctx, n.ChildRef)
	if err != nil {
		if core.IsKind(err, core.ErrNotFound) {
			return nil, core.NodeError(core.ErrUnresolvedReference, n.ID, "unit %s does not exist", n.ChildRef)
		}
		return nil, fmt.Errorf("loading unit %s: %w", n.ChildRef, err)
	}

	// The waiting edge raises the child's blocking factor for as long
	// as the parent blocks on it.
	_ = e.store.AddWaitingEdge(ctx, parent.ID, child.ID)
	defer func() {
		_ = e.store.RemoveWaitingEdge(context.WithoutCancel(ctx), parent.ID, child.ID)
	}()

	childResult, err := e.execute(ctx, child, childInitialValues(input), chain)
	if err != nil {
		// Guard and cancellation kinds abort the whole invocation
		// stack. Anything else is the child's own defect and fails
		// only the invoking node.
		if core.IsKind(err, core.ErrDepthExceeded) ||
			core.IsKind(err, core.ErrSelfReferential) ||
			core.IsKind(err, core.ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("unit %s failed: %v", child.ID, err)
	}
	if !childResult.Success {
		return nil, fmt.Errorf("unit %s failed: nodes %v", child.ID, childResult.FailedNodes)
	}
	return primaryOutput(child, childResult), nil
}

// resolveChildRefs verifies every invoked unit exists before any node
// runs. Without a store the check defers to invocation time, where the
// same kind is raised.
func (e *Engine) resolveChildRefs(ctx context.Context, u *core.Unit) error {
	if e.store == nil {
		return nil
	}
	for i := range u.Nodes {
		n := &u.Nodes[i]
		if n.Role != core.RoleInvoke {
			continue
		}
		if _, err := e.store.LoadUnit(ctx, n.ChildRef); err != nil {
			if core.IsKind(err, core.ErrNotFound) {
				return core.NodeError(core.ErrUnresolvedReference, n.ID,
					"unit %s: invoked unit %s does not exist", u.ID, n.ChildRef)
			}
			return fmt.Errorf("resolving unit %s: %w", n.ChildRef, err)
		}
	}
	return nil
}

// childInitialValues seeds a child run from the invoke node's resolved
// input: a map seeds its keys directly, any other value binds under
// "input", nil seeds nothing.
func childInitialValues(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return nil
	case map[string]any:
		initial := make(map[string]any, len(v))
		for k, val := range v {
			initial[k] = val
		}
		return initial
	default:
		return map[string]any{"input": input}
	}
}

// primaryOutput is the value an invoke node observes from a child run:
// the final binding of the last completed output-bearing node in trace
// order, or nil when no such node completed.
func primaryOutput(u *core.Unit, r *core.ExecutionResult) any {
	var out any
	for _, t := range r.Trace {
		if t.Outcome != core.OutcomeCompleted {
			continue
		}
		n := u.NodeByID(t.NodeID)
		if n == nil || n.Output == "" {
			continue
		}
		if v, ok := r.Values[n.Output]; ok {
			out = v
		}
	}
	return out
}

// abortError reports whether a node error ends the whole run: the
// recursion guards, plus an invoke reference that cannot be resolved.
// Cyclic and unbound kinds abort only at prevalidation; raised by a
// node at runtime they stay node-local.
func abortError(err error) bool {
	return core.IsKind(err, core.ErrDepthExceeded) ||
		core.IsKind(err, core.ErrSelfReferential) ||
		core.IsKind(err, core.ErrUnresolvedReference)
}

func (e *Engine) cancelRemaining(result *core.ExecutionResult, rest []*dag.Node) {
	for _, gn := range rest {
		n := gn.Data.(*core.Node)
		result.Trace = append(result.Trace, core.NodeTrace{NodeID: n.ID,
			Outcome: core.OutcomeCancelled, Error: "run cancelled"})
	}
}

func outcomeCounts(r *core.ExecutionResult) map[core.Outcome]int {
	counts := make(map[core.Outcome]int, 4)
	for _, t := range r.Trace {
		counts[t.Outcome]++
	}
	return counts
}
