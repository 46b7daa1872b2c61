package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/pkg/core"
)

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <unit-id>",
		Short: "Show a unit's document and recent runs",
		Long: `Show a stored unit: its intent, stages, node graph, and the most
recent runs. With --output json the stored document is printed as-is,
which makes show the inverse of loading a unit file.`,
		Example: `  # Show a unit
  structon show structon_watcher

  # Dump the stored document
  structon show structon_watcher --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args[0])
		},
	}
	return cmd
}

func runShow(cmd *cobra.Command, id string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	u, err := cc.Store.LoadUnit(ctx, id)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(u)
	}

	runs, err := cc.Store.ListRuns(ctx, u.ID, 5)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		return showMarkdown(r, u, runs)
	}
	return showText(r, u, runs)
}

func showText(r *output.Renderer, u *core.Unit, runs []*core.Run) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render(u.ID))
	r.Println("")
	r.Printf("  %s: %s\n", styles.Bold.Render("Intent"), u.Intent)
	r.Printf("  %s: %s\n", styles.Bold.Render("Kind"), u.Kind)
	r.Printf("  %s: %s\n", styles.Bold.Render("Stages"), joinStages(u.Stages))
	r.Printf("  %s: %d\n", styles.Bold.Render("Version"), u.Version)
	r.Printf("  %s: %.2f\n", styles.Bold.Render("Tension"), u.Tension)
	r.Printf("  %s: %.2f\n", styles.Bold.Render("Importance"), u.Importance)
	if u.ParentID != "" {
		r.Printf("  %s: %s\n", styles.Bold.Render("Parent"), u.ParentID)
	}
	if u.Deadline != nil {
		r.Printf("  %s: %s\n", styles.Bold.Render("Deadline"), u.Deadline.Format(time.RFC3339))
	}

	r.Println("")
	r.Println(styles.Header2.Render(fmt.Sprintf("Nodes (%d)", len(u.Nodes))))
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Stage", "Role", "Operation", "Input", "Output"})
	for _, n := range u.Nodes {
		t.AppendRow(table.Row{n.ID, n.Stage, n.Role, nodeOperation(n), formatInput(n.Input), n.Output})
	}
	t.Render()

	if len(u.Edges) > 0 {
		r.Println("")
		r.Println(styles.Header2.Render("Edges"))
		for _, e := range u.Edges {
			r.Printf("  %s -> %s\n", e.From, e.To)
		}
	}

	if len(runs) > 0 {
		r.Println("")
		r.Println(styles.Header2.Render("Recent Runs"))
		for _, run := range runs {
			extra := run.StartedAt.Format(time.RFC3339)
			if run.Error != "" {
				extra += "  " + truncateOneLine(run.Error, 60)
			}
			r.StatusLine(run.ID, string(run.Status), extra)
		}
	}
	r.Println("")
	return nil
}

func showMarkdown(r *output.Renderer, u *core.Unit, runs []*core.Run) error {
	r.Println(output.FormatHeader(1, u.ID))
	r.Println("")
	r.Println(output.FormatKeyValue("Intent", u.Intent))
	r.Println(output.FormatKeyValue("Kind", string(u.Kind)))
	r.Println(output.FormatKeyValue("Stages", joinStages(u.Stages)))
	r.Println(output.FormatKeyValue("Version", fmt.Sprintf("%d", u.Version)))
	r.Println(output.FormatKeyValue("Tension", fmt.Sprintf("%.2f", u.Tension)))
	r.Println(output.FormatKeyValue("Importance", fmt.Sprintf("%.2f", u.Importance)))
	if u.ParentID != "" {
		r.Println(output.FormatKeyValue("Parent", u.ParentID))
	}

	r.Println("")
	r.Println(output.FormatHeader(2, fmt.Sprintf("Nodes (%d)", len(u.Nodes))))
	r.Println("")
	r.Println("| ID | Stage | Role | Operation | Input | Output |")
	r.Println("| --- | --- | --- | --- | --- | --- |")
	for _, n := range u.Nodes {
		r.Printf("| %s | %s | %s | %s | %s | %s |\n",
			n.ID, n.Stage, n.Role, nodeOperation(n), formatInput(n.Input), n.Output)
	}

	if len(runs) > 0 {
		r.Println("")
		r.Println(output.FormatHeader(2, "Recent Runs"))
		r.Println("")
		for _, run := range runs {
			r.Println(output.FormatKeyValue(run.ID, string(run.Status)))
		}
	}
	return nil
}

// nodeOperation names what a node does: its operation, or the invoked
// child for invoke-role nodes.
func nodeOperation(n core.Node) string {
	if n.Role == core.RoleInvoke {
		return "invoke:" + n.ChildRef
	}
	return n.Operation
}

func joinStages(stages []core.Stage) string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

// formatInput renders a node input spec for display: references keep
// their $ prefix, lists join their elements, literals print as-is.
func formatInput(input any) string {
	switch t := input.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, el := range t {
			parts[i] = fmt.Sprintf("%v", el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
