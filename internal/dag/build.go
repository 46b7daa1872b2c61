package dag

import (
	"fmt"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Refs extracts every variable reference in an input spec, depth-first.
// Lists are walked element-wise; a bare "$name" string is a reference.
func Refs(input any) []string {
	var refs []string
	walkRefs(input, &refs)
	return refs
}

func walkRefs(input any, refs *[]string) {
	switch v := input.(type) {
	case []any:
		for _, el := range v {
			walkRefs(el, refs)
		}
	default:
		if name, ok := core.RefName(input); ok {
			*refs = append(*refs, name)
		}
	}
}

// Producers maps each output variable to the earliest-declared node that
// binds it. When several nodes rebind the same variable the earliest one
// is the anchor for implicit dependency edges.
func Producers(u *core.Unit) map[string]string {
	producers := make(map[string]string)
	for _, n := range u.Nodes {
		if n.Output == "" {
			continue
		}
		if _, seen := producers[n.Output]; !seen {
			producers[n.Output] = n.ID
		}
	}
	return producers
}

// FromUnit builds the dependency graph for a unit: its nodes in
// declaration order, its explicit edges, and one implicit edge from each
// variable-reading node back to the earliest producer of that variable.
// Variables with no producing node are expected from initial values and
// contribute no edge.
func FromUnit(u *core.Unit) (*Graph, error) {
	g := NewGraph()
	for i := range u.Nodes {
		g.AddNode(u.Nodes[i].ID, &u.Nodes[i])
	}

	for _, e := range u.Edges {
		if _, ok := g.GetNode(e.From); !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := g.GetNode(e.To); !ok {
			return nil, fmt.Errorf("edge references unknown node %q", e.To)
		}
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}

	producers := Producers(u)
	for _, n := range u.Nodes {
		for _, ref := range Refs(n.Input) {
			producer, ok := producers[ref]
			if !ok || producer == n.ID {
				continue
			}
			if err := g.AddEdge(producer, n.ID); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}

// UnboundRef names a variable a node reads that neither an earlier
// producer nor the supplied initial values can satisfy.
type UnboundRef struct {
	NodeID string
	Var    string
}

// UnboundRefs returns, in declaration order, every variable reference in
// the unit that no producing node binds and the initial value set does
// not supply. A non-empty result makes the unit unexecutable as called.
func UnboundRefs(u *core.Unit, initial map[string]any) []UnboundRef {
	producers := Producers(u)
	var unbound []UnboundRef
	for _, n := range u.Nodes {
		for _, ref := range Refs(n.Input) {
			if producer, ok := producers[ref]; ok && producer != n.ID {
				continue
			}
			if _, ok := initial[ref]; ok {
				continue
			}
			unbound = append(unbound, UnboundRef{NodeID: n.ID, Var: ref})
		}
	}
	return unbound
}
