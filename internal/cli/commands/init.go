package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new structon project",
		Long: `Initialize a new structon project with default directory structure and
configuration.

This creates:
  - units/ directory for unit documents (JSON or YAML)
  - plugins/ directory for Starlark operation plugins
  - structon.yaml configuration file

Use --example to scaffold a working demo: a composite unit invoking a
child, a reflect-stage rescoring unit, and a sample plugin.`,
		Example: `  # Initialize in current directory
  structon init

  # Initialize with a working example
  structon init --example

  # Initialize in a new directory
  structon init my-project --example

  # Force overwrite existing config
  structon init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			// Create renderer
			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Scaffold a working example project")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareProjectDir(dir, force); err != nil {
		return err
	}

	// Copy minimal template
	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files
	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("structon project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Put unit documents in units/")
	r.Println("  2. Run 'structon run hello --set name=you'")
	r.Println("  3. Run 'structon list' to see stored units")
	r.Println("  4. Run 'structon ops' to browse the operation catalog")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	if err := prepareProjectDir(dir, force); err != nil {
		return err
	}

	// Copy example template
	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files by category
	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Units")
	for _, f := range groups["units"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Plugins")
	for _, f := range groups["plugins"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("structon project initialized with example units!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  structon discover           Load the example units into the store")
	r.Println("  structon run feed_watcher   Run the composite demo unit")
	r.Println("  structon tension            See the pool ranked by tension")
	r.Println("  structon ops textops.shout  Inspect a plugin operation")
	r.Println("  structon serve              Expose the JSON API")

	return nil
}

// prepareProjectDir creates the target directory and guards against
// clobbering an existing configuration.
func prepareProjectDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := dir + "/structon.yaml"
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("structon.yaml already exists. Use --force to overwrite")
	}
	return nil
}
