package dag

import (
	"testing"

	"github.com/leapstack-labs/structon/pkg/core"
)

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("a", "node A")
	g.AddNode("b", "node B")
	g.AddNode("c", "node C")

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	// b depends on a
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// c depends on b
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	err := g.AddEdge("a", "nonexistent")
	if err == nil {
		t.Error("expected error for nonexistent child node")
	}

	err = g.AddEdge("nonexistent", "a")
	if err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	err := g.AddEdge("a", "a")
	if err == nil {
		t.Error("expected error for self-loop")
	}
	if !core.IsKind(err, core.ErrCyclicGraph) {
		t.Errorf("expected cyclic_graph kind, got %v", err)
	}
}

func TestGraph_HasCycle_NoCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	hasCycle, path := g.HasCycle()
	if hasCycle {
		t.Errorf("expected no cycle, but found: %v", path)
	}
}

func TestGraph_HasCycle_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a") // Creates cycle

	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Error("expected cycle to be detected")
	}
	if len(path) == 0 {
		t.Error("expected cycle path to be non-empty")
	}
}

func TestGraph_TopologicalSort_Simple(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	// b depends on a, c depends on b
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	if len(sorted) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(sorted))
	}

	// Verify order: a must come before b, b must come before c
	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.ID] = i
	}

	if positions["a"] >= positions["b"] {
		t.Error("a should come before b")
	}
	if positions["b"] >= positions["c"] {
		t.Error("b should come before c")
	}
}

func TestGraph_TopologicalSort_DeclarationOrderTies(t *testing.T) {
	// c is declared first but depends on z declared last; a and b are
	// unconstrained and must keep their declaration positions.
	g := NewGraph()
	g.AddNode("c", nil)
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("z", nil)

	g.AddEdge("z", "c")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	got := make([]string, len(sorted))
	for i, n := range sorted {
		got[i] = n.ID
	}

	want := []string{"a", "b", "z", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestGraph_TopologicalSort_Diamond(t *testing.T) {
	// Diamond dependency: a -> b, a -> c, b -> d, c -> d
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.ID] = i
	}

	// a must be first
	if positions["a"] != 0 {
		t.Error("a should be first")
	}
	// d must be last
	if positions["d"] != 3 {
		t.Error("d should be last")
	}
	// b keeps declaration priority over c
	if positions["b"] != 1 || positions["c"] != 2 {
		t.Errorf("expected b then c, got positions %v", positions)
	}
}

func TestGraph_TopologicalSort_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	g.AddEdge("a", "b")
	g.AddEdge("b", "a") // Cycle

	_, err := g.TopologicalSort()
	if err == nil {
		t.Error("expected error for cyclic graph")
	}
	if !core.IsKind(err, core.ErrCyclicGraph) {
		t.Errorf("expected cyclic_graph kind, got %v", err)
	}
}

func TestGraph_Dependents(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	// b depends on a, c depends on b, d is independent
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	downstream := g.Dependents("a")
	if len(downstream) != 2 {
		t.Errorf("expected 2 dependents, got %d: %v", len(downstream), downstream)
	}

	set := make(map[string]bool)
	for _, id := range downstream {
		set[id] = true
	}
	if !set["b"] || !set["c"] {
		t.Error("expected b and c to be dependents of a")
	}
	if set["a"] || set["d"] {
		t.Error("a and d should not be in a's dependents")
	}
}

func TestGraph_RootsAndLeaves(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)

	g.AddEdge("a", "c")
	g.AddEdge("b", "c")

	roots := g.Roots()
	if len(roots) != 2 {
		t.Errorf("expected 2 roots, got %d", len(roots))
	}

	leaves := g.Leaves()
	if len(leaves) != 1 || leaves[0] != "c" {
		t.Errorf("expected [c] as leaves, got %v", leaves)
	}
}

func TestGraph_DisconnectedComponents(t *testing.T) {
	g := NewGraph()
	// Two disconnected chains: a->b and c->d
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)

	g.AddEdge("a", "b")
	g.AddEdge("c", "d")

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("failed to sort: %v", err)
	}

	if len(sorted) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(sorted))
	}

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.ID] = i
	}

	if positions["a"] >= positions["b"] {
		t.Error("a should come before b")
	}
	if positions["c"] >= positions["d"] {
		t.Error("c should come before d")
	}
}

func TestGraph_DuplicateEdges(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	// Add same edge twice
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")

	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge (no duplicates), got %d", g.EdgeCount())
	}
}

func TestRefs(t *testing.T) {
	refs := Refs([]any{"$x", "literal", []any{"$y", 3}, "$x"})
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %v", refs)
	}
	if refs[0] != "x" || refs[1] != "y" || refs[2] != "x" {
		t.Errorf("unexpected refs: %v", refs)
	}

	if got := Refs("plain"); len(got) != 0 {
		t.Errorf("expected no refs in a plain literal, got %v", got)
	}
	if got := Refs(nil); len(got) != 0 {
		t.Errorf("expected no refs in nil input, got %v", got)
	}
}

func TestFromUnit_ImplicitEdges(t *testing.T) {
	u := &core.Unit{
		ID:     "u1",
		Kind:   core.KindAtomic,
		Stages: []core.Stage{core.StagePerceive, core.StageAct},
		Nodes: []core.Node{
			{ID: "s1", Stage: core.StagePerceive, Role: core.RoleInput, Operation: "get", Args: map[string]any{"key": "x"}, Output: "x"},
			{ID: "a1", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$x", Output: "y"},
		},
	}

	g, err := FromUnit(u)
	if err != nil {
		t.Fatalf("FromUnit failed: %v", err)
	}

	// a1 reads $x which s1 produces: one implicit edge
	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 implicit edge, got %d", g.EdgeCount())
	}
	children := g.GetChildren("s1")
	if len(children) != 1 || children[0] != "a1" {
		t.Errorf("expected s1 -> a1, got %v", children)
	}
}

func TestFromUnit_UnknownEdgeEndpoint(t *testing.T) {
	u := &core.Unit{
		ID:     "u1",
		Kind:   core.KindAtomic,
		Stages: []core.Stage{core.StageAct},
		Nodes: []core.Node{
			{ID: "a1", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity"},
		},
		Edges: []core.Edge{{From: "a1", To: "ghost"}},
	}

	if _, err := FromUnit(u); err == nil {
		t.Error("expected error for edge to unknown node")
	}
}

func TestUnboundRefs(t *testing.T) {
	u := &core.Unit{
		ID:     "u1",
		Kind:   core.KindAtomic,
		Stages: []core.Stage{core.StageAct},
		Nodes: []core.Node{
			{ID: "a1", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$missing", Output: "y"},
			{ID: "a2", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$y"},
		},
	}

	unbound := UnboundRefs(u, nil)
	if len(unbound) != 1 {
		t.Fatalf("expected 1 unbound ref, got %v", unbound)
	}
	if unbound[0].NodeID != "a1" || unbound[0].Var != "missing" {
		t.Errorf("unexpected unbound ref: %+v", unbound[0])
	}

	// Supplying the variable as an initial value clears it
	unbound = UnboundRefs(u, map[string]any{"missing": 1})
	if len(unbound) != 0 {
		t.Errorf("expected no unbound refs, got %v", unbound)
	}
}

func TestGraph_Levels_Diamond(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	g.AddNode("c", nil)
	g.AddNode("d", nil)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "d")
	_ = g.AddEdge("c", "d")

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %d", len(want), len(levels))
	}
	for i := range want {
		if len(levels[i]) != len(want[i]) {
			t.Fatalf("level %d = %v, want %v", i, levels[i], want[i])
		}
		for j := range want[i] {
			if levels[i][j] != want[i][j] {
				t.Errorf("level %d = %v, want %v", i, levels[i], want[i])
			}
		}
	}
}

func TestGraph_Levels_Independent(t *testing.T) {
	g := NewGraph()
	g.AddNode("x", nil)
	g.AddNode("y", nil)
	g.AddNode("z", nil)

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 3 {
		t.Fatalf("expected one level of 3 nodes, got %v", levels)
	}
}

func TestGraph_Levels_WithCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "a")

	if _, err := g.Levels(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}
