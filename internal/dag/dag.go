// Package dag provides directed acyclic graph operations for unit node
// dependencies. It supports cycle detection with path reporting,
// declaration-order deterministic topological sorting, and downstream
// closure for failure skip marking.
package dag

import (
	"fmt"

	"github.com/leapstack-labs/structon/pkg/core"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (node id within the unit)
	ID string
	// Data holds arbitrary node data
	Data interface{}
}

// Graph represents a directed acyclic graph. Node insertion order is
// preserved and is the tie-breaker everywhere order matters.
type Graph struct {
	nodes   map[string]*Node
	order   []string            // insertion (declaration) order
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, data interface{}) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Data: data}
		g.order = append(g.order, id)
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		// Update data if node already exists
		g.nodes[id].Data = data
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	// Ensure both nodes exist
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	// A self-loop is the smallest possible cycle
	if parentID == childID {
		return core.NewError(core.ErrCyclicGraph, "self-loop detected: %s", parentID)
	}

	// Add edge (avoid duplicates)
	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}

	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle detects cycles using DFS with a recursion stack.
// Returns true and the cycle path if found.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var cycleStart, cycleEnd string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, child := range g.edges[id] {
			if !visited[child] {
				parent[child] = id
				if visit(child) {
					return true
				}
			} else if recStack[child] {
				cycleStart = child
				cycleEnd = id
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] {
			if visit(id) {
				// Walk back from cycleEnd to cycleStart, then close the loop
				var path []string
				for at := cycleEnd; ; at = parent[at] {
					path = append([]string{at}, path...)
					if at == cycleStart {
						break
					}
				}
				path = append(path, cycleStart)
				return true, path
			}
		}
	}

	return false, nil
}

// TopologicalSort returns nodes in dependency order: every node appears
// after all of its parents. Among nodes with no remaining ordering
// constraint the earliest-declared node runs first, so the order is
// deterministic and reproducible for an identical graph.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}

	sorted := make([]*Node, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))

	// In-degree elimination, scanning declaration order each round.
	for len(sorted) < len(g.nodes) {
		picked := ""
		for _, id := range g.order {
			if !done[id] && indegree[id] == 0 {
				picked = id
				break
			}
		}
		if picked == "" {
			_, path := g.HasCycle()
			return nil, core.NewError(core.ErrCyclicGraph, "dependency cycle: %v", path)
		}
		done[picked] = true
		sorted = append(sorted, g.nodes[picked])
		for _, child := range g.edges[picked] {
			indegree[child]--
		}
	}

	return sorted, nil
}

// Levels groups nodes into execution levels: every node in level N
// depends only on nodes in levels below N, so nodes within a level are
// free to run side by side. Within a level declaration order holds.
func (g *Graph) Levels() ([][]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}

	done := make(map[string]bool, len(g.nodes))
	var levels [][]string
	placed := 0

	for placed < len(g.nodes) {
		var level []string
		for _, id := range g.order {
			if !done[id] && indegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			_, path := g.HasCycle()
			return nil, core.NewError(core.ErrCyclicGraph, "dependency cycle: %v", path)
		}
		for _, id := range level {
			done[id] = true
			for _, child := range g.edges[id] {
				indegree[child]--
			}
		}
		levels = append(levels, level)
		placed += len(level)
	}

	return levels, nil
}

// Dependents returns every node transitively downstream of id, in
// breadth-first declaration-stable order, excluding id itself. These are
// the nodes that must be skipped when id fails.
func (g *Graph) Dependents(id string) []string {
	seen := map[string]bool{id: true}
	frontier := []string{id}
	var out []string

	for len(frontier) > 0 {
		next := []string{}
		for _, cur := range frontier {
			for _, child := range g.edges[cur] {
				if !seen[child] {
					seen[child] = true
					next = append(next, child)
					out = append(out, child)
				}
			}
		}
		frontier = next
	}

	return out
}

// Roots returns nodes with no parents, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns nodes with no children, in declaration order.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.order {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
