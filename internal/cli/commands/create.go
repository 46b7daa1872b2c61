package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/forge"
	"github.com/leapstack-labs/structon/internal/memory"
)

// CreateOptions holds options for the create command.
type CreateOptions struct {
	Parent      string
	Importance  float64
	Experiences int
}

// NewCreateCommand creates the create command.
func NewCreateCommand() *cobra.Command {
	opts := &CreateOptions{}

	cmd := &cobra.Command{
		Use:   "create <goal>",
		Short: "Generate a unit from a goal",
		Long: `Ask the model provider to generate a unit that serves the goal, then
validate and store it. Past experiences matching the goal season the
prompt unless recall is disabled.`,
		Example: `  # Generate a unit
  structon create "watch the news feed and summarize new items"

  # Generate a child of an existing unit
  structon create "deduplicate summaries" --parent feed_watcher

  # Pin importance, skip experience recall
  structon create "archive old runs" --importance 0.2 --experiences 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "parent", "", "Parent unit identifier")
	cmd.Flags().Float64Var(&opts.Importance, "importance", 0, "Importance override in [0,1]")
	cmd.Flags().IntVar(&opts.Experiences, "experiences", 3, "Max experiences recalled into the prompt (0 disables)")
	return cmd
}

func runCreate(cmd *cobra.Command, goal string, opts *CreateOptions) error {
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

	createOpts := forge.CreateOptions{
		Parent:      opts.Parent,
		Experiences: opts.Experiences,
	}
	if cmd.Flags().Changed("importance") {
		createOpts.Importance = &opts.Importance
	}

	u, err := f.Create(ctx, goal, createOpts)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(u)
	}

	r.Success(fmt.Sprintf("Created %s (v%d)", u.ID, u.Version))
	styles := r.Styles()
	r.Printf("  %s: %s\n", styles.Bold.Render("Intent"), u.Intent)
	r.Printf("  %s: %s\n", styles.Bold.Render("Kind"), u.Kind)
	r.Printf("  %s: %s\n", styles.Bold.Render("Stages"), joinStages(u.Stages))
	r.Printf("  %s: %d\n", styles.Bold.Render("Nodes"), len(u.Nodes))
	if u.ParentID != "" {
		r.Printf("  %s: %s\n", styles.Bold.Render("Parent"), u.ParentID)
	}
	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("Inspect it with 'structon show %s', run it with 'structon run %s'.", u.ID, u.ID)))
	return nil
}
