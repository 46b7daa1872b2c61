package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/forge"
	"github.com/leapstack-labs/structon/internal/memory"
)

// EvolveOptions holds options for the evolve command.
type EvolveOptions struct {
	Auto      bool
	Window    int
	Threshold float64
}

// NewEvolveCommand creates the evolve command.
func NewEvolveCommand() *cobra.Command {
	opts := &EvolveOptions{}

	cmd := &cobra.Command{
		Use:   "evolve [unit-id]",
		Short: "Revise a unit using its run evidence",
		Long: `Ask the model provider to revise a unit informed by its recent run
history, then store the revision as the next version. With --auto, the
highest-tension unit whose recent success rate falls below the
threshold is picked instead of a named one.`,
		Example: `  # Evolve a specific unit
  structon evolve feed_watcher

  # Evolve whichever unit most needs it
  structon evolve --auto

  # Widen the evidence window, raise the bar
  structon evolve --auto --window 10 --threshold 0.8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvolve(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Auto, "auto", false, "Pick the unit most in need of evolution")
	cmd.Flags().IntVar(&opts.Window, "window", forge.DefaultMetricsRuns, "Recent runs that feed the evidence")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", forge.DefaultSuccessThreshold, "Success rate below which --auto considers a unit")
	return cmd
}

func runEvolve(cmd *cobra.Command, args []string, opts *EvolveOptions) error {
	if opts.Auto == (len(args) == 1) {
		return fmt.Errorf("provide a unit id or --auto, not both")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	f := forge.New(forge.Config{
		Store:    cc.Store,
		Provider: cc.Engine.Provider(),
		Registry: cc.Engine.Registry(),
		Memory:   memory.New(cc.Store),
		Logger:   cc.Logger,
	})

	unitID := ""
	if opts.Auto {
		candidate, err := f.Candidate(ctx, opts.Threshold, opts.Window)
		if err != nil {
			return err
		}
		unitID = candidate.ID
	} else {
		unitID = args[0]
	}

	metrics, err := f.Metrics(ctx, unitID, opts.Window)
	if err != nil {
		return err
	}

	u, err := f.Evolve(ctx, unitID, forge.EvolveOptions{Window: opts.Window})
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(u)
	}

	r.Success(fmt.Sprintf("Evolved %s to v%d", u.ID, u.Version))
	styles := r.Styles()
	for _, line := range metrics.Feedback() {
		r.Println(styles.Muted.Render("  evidence: " + line))
	}
	r.Printf("  %s: %s\n", styles.Bold.Render("Intent"), u.Intent)
	r.Printf("  %s: %d\n", styles.Bold.Render("Nodes"), len(u.Nodes))
	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("Run the revision with 'structon run %s'.", u.ID)))
	return nil
}
