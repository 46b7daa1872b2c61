package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/tension"
	"github.com/leapstack-labs/structon/pkg/core"
)

// tensionRow is the JSON shape of one pool report entry.
type tensionRow struct {
	ID       string  `json:"identifier"`
	Tension  float64 `json:"tension"`
	Kind     string  `json:"kind"`
	Blocked  bool    `json:"blocked"`
	Selected bool    `json:"selected"`
	Intent   string  `json:"intent"`
}

// NewTensionCommand creates the tension command.
func NewTensionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tension",
		Short: "Report or recompute unit tension",
		Long: `Report the pool ranked by tension, or recompute scores. The compute
subcommand rescores units from their run history and deadlines; the
propagate subcommand pushes children's pressure up to their parents.`,
		Example: `  # Ranked pool report
  structon tension

  # Recompute every unit's score
  structon tension compute

  # Recompute two units
  structon tension compute feed_watcher inbox_triage

  # Recompute and propagate through the hierarchy
  structon tension propagate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTensionReport(cmd)
		},
	}

	cmd.AddCommand(newTensionComputeCommand())
	cmd.AddCommand(newTensionPropagateCommand())
	return cmd
}

func newTensionComputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compute [unit-id...]",
		Short: "Recompute tension scores",
		Long: `Recompute and persist tension for the named units, or for the whole
pool when no identifiers are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTensionOp(cmd, "compute", args)
		},
	}
}

func newTensionPropagateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "propagate",
		Short: "Recompute scores and propagate child pressure upward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTensionOp(cmd, "propagate", nil)
		},
	}
}

// runTensionOp dispatches a tension operation through the registry, so
// the command takes the same path a reflect node would.
func runTensionOp(cmd *cobra.Command, opName string, ids []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	var input any
	args := map[string]any{}
	switch {
	case len(ids) > 0:
		input = ids
	default:
		args["all"] = true
	}

	env := &atomic.Env{
		Logger: cc.Logger,
		Store:  cc.Store,
	}
	result, err := cc.Engine.Registry().Dispatch(ctx, opName, input, args, env)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(result)
	}

	scores, ok := result.(map[string]any)
	if !ok {
		// Single-unit compute returns the bare score.
		r.Printf("%s: %.2f\n", ids[0], result)
		return nil
	}
	sorted := make([]string, 0, len(scores))
	for id := range scores {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		r.Printf("%s: %.2f\n", id, scores[id])
	}
	r.Success(fmt.Sprintf("Updated %d units", len(scores)))
	return nil
}

func runTensionReport(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	units, err := cc.Store.QueryUnits(ctx, core.UnitQuery{OrderByTension: true})
	if err != nil {
		return err
	}

	pool := make([]tension.Candidate, 0, len(units))
	for _, u := range units {
		pool = append(pool, tension.Candidate{ID: u.ID, Tension: u.Tension})
	}
	selected, _ := tension.Select(pool)

	rows := make([]tensionRow, 0, len(units))
	for _, c := range tension.Rank(pool) {
		u := unitByID(units, c.ID)
		blocked, err := cc.Store.IsBlocked(ctx, c.ID)
		if err != nil {
			return err
		}
		rows = append(rows, tensionRow{
			ID:       c.ID,
			Tension:  c.Tension,
			Kind:     string(u.Kind),
			Blocked:  blocked,
			Selected: c.ID == selected,
			Intent:   truncateOneLine(u.Intent, 40),
		})
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rows)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Tension Pool (%d units)", len(rows))))
		r.Println("")
		r.Println("| ID | Tension | Kind | Blocked | Intent |")
		r.Println("|----|---------|------|---------|--------|")
		for _, row := range rows {
			id := row.ID
			if row.Selected {
				id = "**" + id + "**"
			}
			r.Printf("| %s | %.2f | %s | %t | %s |\n", id, row.Tension, row.Kind, row.Blocked, row.Intent)
		}
		return nil
	default:
		renderTensionTable(cc, rows)
		return nil
	}
}

func renderTensionTable(cc *CommandContext, rows []tensionRow) {
	r := cc.Renderer
	styles := r.Styles()

	if len(rows) == 0 {
		r.Println(styles.Muted.Render("(no units)"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "ID", "Tension", "Kind", "Blocked", "Intent"})
	for _, row := range rows {
		marker := ""
		if row.Selected {
			marker = ">"
		}
		blocked := ""
		if row.Blocked {
			blocked = "yes"
		}
		t.AppendRow(table.Row{marker, row.ID, tensionBar(row.Tension), row.Kind, blocked, row.Intent})
	}
	t.Render()
	r.Println(styles.Muted.Render(fmt.Sprintf("(%d units, > marks the next selection)", len(rows))))
}

// tensionBar renders a score as a ten-cell bar plus the number, so a
// glance at the column shows the pool's shape.
func tensionBar(score float64) string {
	filled := int(core.Clamp01(score)*10 + 0.5)
	bar := ""
	for i := 0; i < 10; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("%s %.2f", bar, score)
}

func unitByID(units []*core.Unit, id string) *core.Unit {
	for _, u := range units {
		if u.ID == id {
			return u
		}
	}
	return &core.Unit{ID: id}
}
