package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/loader"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Format string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}
	cmd := &cobra.Command{
		Use:   "export <unit-id>",
		Short: "Write a stored unit back out as a unit document",
		Long: `Encode a stored unit as a JSON or YAML unit document.

This is the inverse of discover: forged or evolved units live only in
the store until exported, and exporting brings them under version
control next to the hand-written ones.`,
		Example: `  # Export as JSON (the default)
  structon export feed_watcher > units/feed_watcher.json

  # Export as YAML
  structon export feed_watcher --format yaml > units/feed_watcher.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "json", "Document format: json, yaml")

	return cmd
}

func runExport(cmd *cobra.Command, id string, opts *ExportOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	u, err := cc.Store.LoadUnit(cmd.Context(), id)
	if err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(opts.Format) {
	case "json":
		data, err = loader.EncodeJSON(u)
	case "yaml", "yml":
		data, err = loader.EncodeYAML(u)
	default:
		return fmt.Errorf("unknown format %q (expected json or yaml)", opts.Format)
	}
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, fmt.Sprintf("Unit document: %s", id)))
		r.Println("")
		r.Println(output.FormatCodeBlock(strings.ToLower(opts.Format), strings.TrimRight(string(data), "\n")))
		return nil
	}

	// The document goes to stdout untouched so redirection round-trips.
	r.Printf("%s", data)
	return nil
}
