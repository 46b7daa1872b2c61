package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/pkg/core"
)

// TraceOptions holds options for the trace command.
type TraceOptions struct {
	Unit string
}

// traceOutput is the JSON shape of a rendered trace.
type traceOutput struct {
	Run   *core.Run      `json:"run"`
	Trace []core.NodeRun `json:"trace"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand() *cobra.Command {
	opts := &TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show the node trace of a run",
		Long: `Show one run's recorded trace: every node with its outcome, duration,
and error, in execution order. With --unit the latest run of that unit
is traced instead of an explicit run id.`,
		Example: `  # Trace a specific run
  structon trace 0d4f1c6a-9b1e-4a8e-bb6a-1f2d3c4b5a69

  # Trace the latest run of a unit
  structon trace --unit structon_watcher`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Unit, "unit", "", "Trace the latest run of this unit")

	return cmd
}

func runTrace(cmd *cobra.Command, args []string, opts *TraceOptions) error {
	if (opts.Unit == "") == (len(args) == 0) {
		return fmt.Errorf("provide a run id or --unit, not both")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	var run *core.Run
	if opts.Unit != "" {
		run, err = cc.Store.LatestRun(ctx, opts.Unit)
	} else {
		run, err = cc.Store.GetRun(ctx, args[0])
	}
	if err != nil {
		return err
	}

	trace, err := cc.Store.GetTrace(ctx, run.ID)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(traceOutput{Run: run, Trace: trace})
	case output.ModeMarkdown:
		return traceMarkdown(r, run, trace)
	default:
		return traceText(r, run, trace)
	}
}

func traceText(r *output.Renderer, run *core.Run, trace []core.NodeRun) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render(fmt.Sprintf("Run %s", run.ID)))
	r.Println("")
	r.Printf("  %s: %s (v%d)\n", styles.Bold.Render("Unit"), run.UnitID, run.UnitVersion)
	r.Printf("  %s: %s\n", styles.Bold.Render("Status"), run.Status)
	r.Printf("  %s: %s\n", styles.Bold.Render("Started"), run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		r.Printf("  %s: %s\n", styles.Bold.Render("Completed"), run.CompletedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		r.Printf("  %s: %s\n", styles.Bold.Render("Error"), styles.Error.Render(run.Error))
	}

	r.Println("")
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Node", "Outcome", "Duration", "Error"})
	for _, nr := range trace {
		t.AppendRow(table.Row{nr.Position, nr.NodeID, nr.Outcome, fmt.Sprintf("%dms", nr.DurationMS), nr.Error})
	}
	t.Render()
	r.Println("")
	return nil
}

func traceMarkdown(r *output.Renderer, run *core.Run, trace []core.NodeRun) error {
	r.Println(output.FormatHeader(1, fmt.Sprintf("Run %s", run.ID)))
	r.Println("")
	r.Println(output.FormatKeyValue("Unit", fmt.Sprintf("%s (v%d)", run.UnitID, run.UnitVersion)))
	r.Println(output.FormatKeyValue("Status", string(run.Status)))
	r.Println(output.FormatKeyValue("Started", run.StartedAt.Format(time.RFC3339)))
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")
	r.Println("| # | Node | Outcome | Duration | Error |")
	r.Println("| --- | --- | --- | --- | --- |")
	for _, nr := range trace {
		r.Printf("| %d | %s | %s | %dms | %s |\n",
			nr.Position, nr.NodeID, nr.Outcome, nr.DurationMS, nr.Error)
	}
	return nil
}
