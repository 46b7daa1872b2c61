package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/engine"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	File        string
	Set         []string
	Pool        bool
	JSONOutput  bool
	MaxDepth    int
	NodeTimeout time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [unit-id]",
		Short: "Execute a unit",
		Long: `Execute a stored unit by identifier, a unit document from a file, or
the highest-tension unit in the pool.

Nodes run stage by stage (perceive, act, reflect) in dependency order
within each stage. Every run is recorded in the store together with
its per-node trace.`,
		Example: `  # Run a stored unit
  structon run structon_watcher

  # Run a unit document from a file
  structon run --file units/watch_feed.json

  # Seed initial values for the run
  structon run structon_watcher --set feed=news --set retries=3

  # Run whatever the pool says is most pressing
  structon run --pool

  # Run with JSON lines output for CI integration
  structon run structon_watcher --json`,
		Aliases: []string{"exec"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Run a unit document from a file")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Initial value as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Pool, "pool", false, "Run the highest-tension unit in the pool")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "Override the sub-unit nesting limit")
	cmd.Flags().DurationVar(&opts.NodeTimeout, "node-timeout", 0, "Override the per-node timeout")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	if opts.Pool && (opts.File != "" || len(args) > 0) {
		return fmt.Errorf("--pool cannot be combined with a unit id or --file")
	}
	if !opts.Pool && opts.File == "" && len(args) == 0 {
		return fmt.Errorf("provide a unit id, --file, or --pool")
	}

	initial, err := parseSetValues(opts.Set)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	optFns := []func(*engine.Config){
		func(c *engine.Config) {
			if opts.MaxDepth > 0 {
				c.MaxDepth = opts.MaxDepth
			}
			if opts.NodeTimeout > 0 {
				c.NodeTimeout = opts.NodeTimeout
			}
		},
	}
	if opts.JSONOutput {
		optFns = append(optFns, func(c *engine.Config) {
			c.Events = func(evt engine.Event) {
				emitRunEvent(out, evt)
			}
		})
	} else {
		optFns = append(optFns, func(c *engine.Config) {
			c.Emit = func(v any) {
				fmt.Fprintf(out, "emit: %v\n", v)
			}
		})
	}

	cc, cleanup, err := NewCommandContext(cmd, optFns...)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	u, err := resolveRunTarget(ctx, cc, args, opts)
	if err != nil {
		return err
	}

	startTime := time.Now()
	if !opts.JSONOutput {
		cc.Renderer.Printf("Running %s (v%d): %s\n", u.ID, u.Version, u.Intent)
	}

	result, err := cc.Engine.Execute(ctx, u, initial)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if opts.JSONOutput {
		if !result.Success {
			return fmt.Errorf("run failed: %d of %d nodes failed", len(result.FailedNodes), len(result.Trace))
		}
		return nil
	}
	return renderRunResult(cc, u, result, time.Since(startTime))
}

// resolveRunTarget picks the unit to execute: an explicit id, a file,
// or the pool's highest-tension unit.
func resolveRunTarget(ctx context.Context, cc *CommandContext, args []string, opts *RunOptions) (*core.Unit, error) {
	switch {
	case opts.Pool:
		units, err := cc.Store.QueryUnits(ctx, core.UnitQuery{OrderByTension: true, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(units) == 0 {
			return nil, fmt.Errorf("no units in the pool")
		}
		return units[0], nil
	case opts.File != "":
		u, err := loader.ParseFile(opts.File)
		if err != nil {
			return nil, err
		}
		// Save so the run history attaches to the stored unit.
		if err := cc.Store.SaveUnit(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	default:
		u, err := cc.Store.LoadUnit(ctx, args[0])
		if core.IsKind(err, core.ErrNotFound) {
			// The id may name a unit file that was never discovered.
			// Sync the whole directory so invoked children land too.
			if _, syncErr := syncUnitsDir(ctx, cc.Store, cc.Cfg.UnitsDir); syncErr != nil {
				return nil, syncErr
			}
			return cc.Store.LoadUnit(ctx, args[0])
		}
		return u, err
	}
}

// renderRunResult prints the per-node trace and the final values.
func renderRunResult(cc *CommandContext, u *core.Unit, result *core.ExecutionResult, elapsed time.Duration) error {
	r := cc.Renderer
	styles := r.Styles()

	for _, nt := range result.Trace {
		extra := fmt.Sprintf("%dms", nt.DurationMS)
		if nt.Error != "" {
			extra = nt.Error
		}
		r.StatusLine(nt.NodeID, string(nt.Outcome), extra)
	}

	var completed, failed, skipped, cancelled int
	for _, outcome := range result.Outcomes() {
		switch outcome {
		case core.OutcomeCompleted:
			completed++
		case core.OutcomeFailed:
			failed++
		case core.OutcomeSkipped:
			skipped++
		case core.OutcomeCancelled:
			cancelled++
		}
	}
	summary := fmt.Sprintf("%d completed, %d failed, %d skipped in %s",
		completed, failed, skipped, elapsed.Round(time.Millisecond))
	if cancelled > 0 {
		summary = fmt.Sprintf("%d completed, %d failed, %d skipped, %d cancelled in %s",
			completed, failed, skipped, cancelled, elapsed.Round(time.Millisecond))
	}

	r.Println("")
	if result.Success {
		r.Success(summary)
	} else {
		r.Error(summary)
	}

	if len(result.Values) > 0 {
		r.Println("")
		r.Header(2, "Values")
		data, err := json.MarshalIndent(result.Values, "", "  ")
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Println(output.FormatCodeBlock("json", string(data)))
		} else {
			r.Println(styles.Muted.Render(string(data)))
		}
	}

	if !result.Success {
		return fmt.Errorf("run failed: %d of %d nodes failed", len(result.FailedNodes), len(result.Trace))
	}
	return nil
}

// emitRunEvent outputs a run event as a JSON line.
func emitRunEvent(w io.Writer, event engine.Event) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, _ := json.Marshal(event)
	fmt.Fprintln(w, string(data))
}
