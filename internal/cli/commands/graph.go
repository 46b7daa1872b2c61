package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/dag"
	"github.com/leapstack-labs/structon/pkg/core"
)

// GraphQuerier provides read-only access to a node graph.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [unit-id]",
		Short: "Show the unit tree or one unit's node graph",
		Long: `Without arguments, display the unit tree: parents above children,
annotated with kind, tension, and any waiting edges.

With a unit id, display that unit's node graph grouped by execution
level. Nodes in the same level share no dependency and are free to run
side by side.`,
		Example: `  # Show the whole pool as a tree
  structon graph

  # Show one unit's node graph
  structon graph feed_watcher

  # Output as JSON
  structon graph feed_watcher --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, args)
		},
	}

	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 1 {
		return renderNodeGraph(cmd.Context(), cc, args[0])
	}
	return renderUnitTree(cmd.Context(), cc)
}

// Node graph of a single unit

// graphLevel is one execution level in the JSON output.
type graphLevel struct {
	Level int         `json:"level"`
	Nodes []graphNode `json:"nodes"`
}

type graphNode struct {
	ID        string   `json:"id"`
	Stage     string   `json:"stage"`
	Operation string   `json:"operation"`
	ReadsFrom []string `json:"reads_from,omitempty"`
	Feeds     []string `json:"feeds,omitempty"`
}

func renderNodeGraph(ctx context.Context, cc *CommandContext, id string) error {
	u, err := cc.Store.LoadUnit(ctx, id)
	if err != nil {
		return err
	}

	g, err := dag.FromUnit(u)
	if err != nil {
		return err
	}
	levels, err := g.Levels()
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return nodeGraphJSON(r, u, g, levels)
	case output.ModeMarkdown:
		return nodeGraphMarkdown(r, u, g, levels)
	default:
		return nodeGraphText(r, u, g, levels)
	}
}

func nodeGraphText(r *output.Renderer, u *core.Unit, g GraphQuerier, levels [][]string) error {
	styles := r.Styles()

	r.Header(1, fmt.Sprintf("%s node graph", u.ID))

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			n := u.NodeByID(id)
			label := id
			if n != nil {
				label = fmt.Sprintf("%s (%s %s)", id, n.Stage, nodeOperation(*n))
			}
			r.Printf("  %s\n", styles.Bold.Render(label))
			if parents := g.GetParents(id); len(parents) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("reads from:"), strings.Join(parents, ", "))
			}
			if children := g.GetChildren(id); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("feeds:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d dependencies", g.NodeCount(), g.EdgeCount())))
	return nil
}

func nodeGraphMarkdown(r *output.Renderer, u *core.Unit, g GraphQuerier, levels [][]string) error {
	r.Println(output.FormatHeader(1, fmt.Sprintf("%s node graph", u.ID)))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, id := range level {
			n := u.NodeByID(id)
			if n != nil {
				r.Printf("- **%s** (%s %s)\n", id, n.Stage, nodeOperation(*n))
			} else {
				r.Printf("- **%s**\n", id)
			}
			if parents := g.GetParents(id); len(parents) > 0 {
				r.Printf("  - reads from: %s\n", strings.Join(parents, ", "))
			}
			if children := g.GetChildren(id); len(children) > 0 {
				r.Printf("  - feeds: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatKeyValue("Total Nodes", fmt.Sprintf("%d", g.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", g.EdgeCount())))
	return nil
}

func nodeGraphJSON(r *output.Renderer, u *core.Unit, g GraphQuerier, levels [][]string) error {
	out := struct {
		Unit   string       `json:"unit"`
		Levels []graphLevel `json:"levels"`
		Nodes  int          `json:"total_nodes"`
		Edges  int          `json:"total_edges"`
	}{
		Unit:  u.ID,
		Nodes: g.NodeCount(),
		Edges: g.EdgeCount(),
	}

	for i, level := range levels {
		gl := graphLevel{Level: i, Nodes: make([]graphNode, 0, len(level))}
		for _, id := range level {
			gn := graphNode{ID: id, ReadsFrom: g.GetParents(id), Feeds: g.GetChildren(id)}
			if n := u.NodeByID(id); n != nil {
				gn.Stage = string(n.Stage)
				gn.Operation = nodeOperation(*n)
			}
			gl.Nodes = append(gl.Nodes, gn)
		}
		out.Levels = append(out.Levels, gl)
	}

	enc := json.NewEncoder(r.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Tree of the whole pool

// treeNode is one unit in the JSON tree output.
type treeNode struct {
	ID       string   `json:"identifier"`
	Kind     string   `json:"kind"`
	Tension  float64  `json:"tension"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
	WaitsOn  []string `json:"waits_on,omitempty"`
}

func renderUnitTree(ctx context.Context, cc *CommandContext) error {
	units, err := cc.Store.QueryUnits(ctx, core.UnitQuery{})
	if err != nil {
		return err
	}

	waits := make(map[string][]string)
	edges, err := cc.Store.ListWaitingEdges(ctx)
	if err != nil {
		return err
	}
	for _, e := range edges {
		waits[e.Waiter] = append(waits[e.Waiter], e.Blocker)
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return unitTreeJSON(r, units, waits)
	case output.ModeMarkdown:
		return unitTreeMarkdown(r, units, waits, len(edges))
	default:
		return unitTreeText(r, units, waits, len(edges))
	}
}

// treeRoots returns the top-level units: those without a parent, or
// whose parent is not in the pool. Children are grouped under their
// parent in pool order.
func treeRoots(units []*core.Unit) (roots []*core.Unit, children map[string][]*core.Unit) {
	inPool := make(map[string]bool, len(units))
	for _, u := range units {
		inPool[u.ID] = true
	}
	children = make(map[string][]*core.Unit)
	for _, u := range units {
		if u.ParentID != "" && inPool[u.ParentID] {
			children[u.ParentID] = append(children[u.ParentID], u)
			continue
		}
		roots = append(roots, u)
	}
	return roots, children
}

func unitTreeText(r *output.Renderer, units []*core.Unit, waits map[string][]string, edgeCount int) error {
	styles := r.Styles()

	if len(units) == 0 {
		r.Println("(no units)")
		return nil
	}

	r.Header(1, "Unit Tree")

	roots, children := treeRoots(units)
	var render func(u *core.Unit, depth int)
	render = func(u *core.Unit, depth int) {
		indent := strings.Repeat("  ", depth)
		line := fmt.Sprintf("%s%s %s", indent, styles.Bold.Render(u.ID),
			styles.Muted.Render(fmt.Sprintf("[%s v%d] tension %.2f", u.Kind, u.Version, u.Tension)))
		r.Println(line)
		if blockers := waits[u.ID]; len(blockers) > 0 {
			r.Printf("%s  %s %s\n", indent, styles.Muted.Render("waits on:"), strings.Join(blockers, ", "))
		}
		for _, c := range children[u.ID] {
			render(c, depth+1)
		}
	}
	for _, root := range roots {
		render(root, 0)
	}

	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d units, %d waiting edges", len(units), edgeCount)))
	return nil
}

func unitTreeMarkdown(r *output.Renderer, units []*core.Unit, waits map[string][]string, edgeCount int) error {
	r.Println(output.FormatHeader(1, "Unit Tree"))
	r.Println("")

	roots, children := treeRoots(units)
	var render func(u *core.Unit, depth int)
	render = func(u *core.Unit, depth int) {
		indent := strings.Repeat("  ", depth)
		r.Printf("%s- **%s** [%s v%d] tension %.2f\n", indent, u.ID, u.Kind, u.Version, u.Tension)
		if blockers := waits[u.ID]; len(blockers) > 0 {
			r.Printf("%s  - waits on: %s\n", indent, strings.Join(blockers, ", "))
		}
		for _, c := range children[u.ID] {
			render(c, depth+1)
		}
	}
	for _, root := range roots {
		render(root, 0)
	}

	r.Println("")
	r.Println(output.FormatKeyValue("Total Units", fmt.Sprintf("%d", len(units))))
	r.Println(output.FormatKeyValue("Waiting Edges", fmt.Sprintf("%d", edgeCount)))
	return nil
}

func unitTreeJSON(r *output.Renderer, units []*core.Unit, waits map[string][]string) error {
	_, children := treeRoots(units)

	nodes := make([]treeNode, 0, len(units))
	for _, u := range units {
		tn := treeNode{
			ID:      u.ID,
			Kind:    string(u.Kind),
			Tension: u.Tension,
			Parent:  u.ParentID,
			WaitsOn: waits[u.ID],
		}
		for _, c := range children[u.ID] {
			tn.Children = append(tn.Children, c.ID)
		}
		sort.Strings(tn.Children)
		nodes = append(nodes, tn)
	}

	enc := json.NewEncoder(r.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}
