package loader

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/structon/internal/dag"
	"github.com/leapstack-labs/structon/pkg/core"
)

// ValidationError reports a structural problem in a unit document.
type ValidationError struct {
	Unit    string
	Node    string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Unit != "" && e.Node != "":
		return fmt.Sprintf("unit %s: node %s: %s", e.Unit, e.Node, e.Message)
	case e.Unit != "":
		return fmt.Sprintf("unit %s: %s", e.Unit, e.Message)
	default:
		return e.Message
	}
}

func invalid(unit, node, format string, args ...any) error {
	return &ValidationError{Unit: unit, Node: node, Message: fmt.Sprintf(format, args...)}
}

var validKinds = map[core.UnitKind]bool{
	core.KindAtomic:    true,
	core.KindComposite: true,
}

// Validate checks a unit for structural soundness: identifier and kind,
// stage ordering, node roles and operations, edge endpoints, variable
// bindings, and graph acyclicity over both explicit and
// variable-reference edges.
func Validate(u *core.Unit) error {
	if strings.TrimSpace(u.ID) == "" {
		return invalid("", "", "identifier is required")
	}
	if !validKinds[u.Kind] {
		return invalid(u.ID, "", "kind must be %q or %q, got %q", core.KindAtomic, core.KindComposite, u.Kind)
	}
	if strings.TrimSpace(u.Intent) == "" {
		return invalid(u.ID, "", "intent is required")
	}
	if err := validateStages(u); err != nil {
		return err
	}
	if len(u.Nodes) == 0 {
		return invalid(u.ID, "", "at least one node is required")
	}
	if err := validateNodes(u); err != nil {
		return err
	}
	if err := validateEdges(u); err != nil {
		return err
	}
	if err := validateBindings(u); err != nil {
		return err
	}

	// FromUnit adds implicit variable-reference edges, so the cycle
	// check covers cycles the explicit edge list alone would miss.
	g, err := dag.FromUnit(u)
	if err != nil {
		return invalid(u.ID, "", "%s", err.Error())
	}
	if cyclic, path := g.HasCycle(); cyclic {
		return core.NewError(core.ErrCyclicGraph,
			"unit %s: cycle detected: %s", u.ID, strings.Join(path, " -> "))
	}
	return nil
}

// validateStages requires a non-empty stage list that follows the
// canonical perceive, act, reflect order with no repeats.
func validateStages(u *core.Unit) error {
	if len(u.Stages) == 0 {
		return invalid(u.ID, "", "at least one stage is required")
	}
	prev := -1
	for _, s := range u.Stages {
		rank := core.StageRank(s)
		if rank < 0 {
			return invalid(u.ID, "", "unknown stage %q", s)
		}
		if rank == prev {
			return invalid(u.ID, "", "stage %q listed twice", s)
		}
		if rank < prev {
			return invalid(u.ID, "", "stages must follow %v order", core.CanonicalStages())
		}
		prev = rank
	}
	return nil
}

func validateNodes(u *core.Unit) error {
	declared := make(map[core.Stage]bool, len(u.Stages))
	for _, s := range u.Stages {
		declared[s] = true
	}

	seen := make(map[string]bool, len(u.Nodes))
	for i := range u.Nodes {
		n := &u.Nodes[i]
		if strings.TrimSpace(n.ID) == "" {
			return invalid(u.ID, "", "node %d has no id", i)
		}
		if seen[n.ID] {
			return invalid(u.ID, n.ID, "duplicate node id")
		}
		seen[n.ID] = true

		if !declared[n.Stage] {
			return invalid(u.ID, n.ID, "stage %q is not declared by the unit", n.Stage)
		}
		if _, ok := core.NormalizeRole(string(n.Role)); !ok {
			return invalid(u.ID, n.ID, "unknown role %q", n.Role)
		}

		if n.Role == core.RoleInvoke {
			if n.Operation != "" {
				return invalid(u.ID, n.ID, "invocation nodes must not set an operation")
			}
			if strings.TrimSpace(n.ChildRef) == "" {
				return invalid(u.ID, n.ID, "invocation nodes require child_unit_reference")
			}
			if u.Kind == core.KindAtomic {
				return invalid(u.ID, n.ID, "atomic units cannot invoke sub-units")
			}
		} else {
			if strings.TrimSpace(n.Operation) == "" {
				return invalid(u.ID, n.ID, "operation is required for role %q", n.Role)
			}
			if n.ChildRef != "" {
				return invalid(u.ID, n.ID, "child_unit_reference is only valid on invocation nodes")
			}
		}
	}
	return nil
}

// validateBindings flags variable reads that no node produces. The
// one allowance: a key some get node declares names a value expected
// from the caller's initial values, so references to it resolve at
// run time.
func validateBindings(u *core.Unit) error {
	expected := make(map[string]bool)
	for i := range u.Nodes {
		n := &u.Nodes[i]
		if n.Operation != "get" {
			continue
		}
		if key, ok := n.Args["key"].(string); ok && key != "" {
			expected[key] = true
		}
	}

	producers := dag.Producers(u)
	for i := range u.Nodes {
		n := &u.Nodes[i]
		for _, ref := range dag.Refs(n.Input) {
			if producer, ok := producers[ref]; ok && producer != n.ID {
				continue
			}
			if expected[ref] {
				continue
			}
			return core.NewError(core.ErrUnboundVariable,
				"unit %s: node %s reads $%s which no node produces and no get key declares", u.ID, n.ID, ref)
		}
	}
	return nil
}

func validateEdges(u *core.Unit) error {
	ids := make(map[string]bool, len(u.Nodes))
	for i := range u.Nodes {
		ids[u.Nodes[i].ID] = true
	}
	for _, e := range u.Edges {
		if e.From == "" || e.To == "" {
			return invalid(u.ID, "", "edge endpoints must not be empty")
		}
		if !ids[e.From] {
			return invalid(u.ID, "", "edge references unknown node %q", e.From)
		}
		if !ids[e.To] {
			return invalid(u.ID, "", "edge references unknown node %q", e.To)
		}
		if e.From == e.To {
			return core.NewError(core.ErrCyclicGraph,
				"unit %s: edge %s -> %s is a self-loop", u.ID, e.From, e.To)
		}
	}
	return nil
}
