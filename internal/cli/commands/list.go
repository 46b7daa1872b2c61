package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/pkg/core"
)

// ListOptions holds options for the list command.
type ListOptions struct {
	Kind      string
	Stage     string
	Parent    string
	Intent    string
	Roots     bool
	ByTension bool
	Limit     int
}

// unitRow is the JSON shape of one listed unit.
type unitRow struct {
	ID      string  `json:"identifier"`
	Kind    string  `json:"kind"`
	Stages  string  `json:"stages"`
	Version int     `json:"version"`
	Tension float64 `json:"tension"`
	Intent  string  `json:"intent"`
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored units",
		Long: `List the units in the store with their kind, stages, version, and
current tension score.`,
		Example: `  # List all units
  structon list

  # List only root units, hottest first
  structon list --roots --by-tension

  # List the children of a unit
  structon list --parent structon_watcher

  # List composite units declaring the act stage
  structon list --kind composite --stage act

  # List units whose intent mentions a topic
  structon list --intent "feed"`,
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Filter by kind (atomic|composite)")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "Filter by declared stage (perceive|act|reflect)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "Filter to children of a unit")
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "Filter by intent substring")
	cmd.Flags().BoolVar(&opts.Roots, "roots", false, "Only units without a parent")
	cmd.Flags().BoolVar(&opts.ByTension, "by-tension", false, "Order by descending tension")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Cap the number of results (0 = all)")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	units, err := cc.Store.QueryUnits(cmd.Context(), core.UnitQuery{
		Kind:           core.UnitKind(opts.Kind),
		Stage:          core.Stage(opts.Stage),
		Parent:         opts.Parent,
		Intent:         opts.Intent,
		RootsOnly:      opts.Roots,
		OrderByTension: opts.ByTension,
		Limit:          opts.Limit,
	})
	if err != nil {
		return err
	}

	rows := make([]unitRow, 0, len(units))
	for _, u := range units {
		stages := make([]string, len(u.Stages))
		for i, s := range u.Stages {
			stages[i] = string(s)
		}
		rows = append(rows, unitRow{
			ID:      u.ID,
			Kind:    string(u.Kind),
			Stages:  strings.Join(stages, ","),
			Version: u.Version,
			Tension: u.Tension,
			Intent:  truncateOneLine(u.Intent, 48),
		})
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rows)
	case output.ModeMarkdown:
		return listMarkdown(r, rows)
	default:
		return listText(r, rows)
	}
}

func listText(r *output.Renderer, rows []unitRow) error {
	if len(rows) == 0 {
		r.Println("(no units)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Kind", "Stages", "Ver", "Tension", "Intent"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.ID, row.Kind, row.Stages, row.Version, fmt.Sprintf("%.2f", row.Tension), row.Intent})
	}
	t.Render()
	r.Printf("(%d units)\n", len(rows))
	return nil
}

func listMarkdown(r *output.Renderer, rows []unitRow) error {
	r.Println(output.FormatHeader(1, fmt.Sprintf("Units (%d total)", len(rows))))
	r.Println("")
	if len(rows) == 0 {
		return nil
	}
	r.Println("| ID | Kind | Stages | Ver | Tension | Intent |")
	r.Println("| --- | --- | --- | --- | --- | --- |")
	for _, row := range rows {
		r.Printf("| %s | %s | %s | %d | %.2f | %s |\n",
			row.ID, row.Kind, row.Stages, row.Version, row.Tension, row.Intent)
	}
	return nil
}

// truncateOneLine flattens newlines and truncates to maxLen.
func truncateOneLine(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
