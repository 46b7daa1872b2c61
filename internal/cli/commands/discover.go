package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Sync statuses reported per discovered unit.
const (
	syncCreated = "created"
	syncUpdated = "updated"
	syncSkipped = "skipped"
)

// syncedUnit records what discovery did with one unit file.
type syncedUnit struct {
	ID            string `json:"identifier"`
	Kind          string `json:"kind"`
	Version       int    `json:"version"`
	StoredVersion int    `json:"stored_version,omitempty"`
	Nodes         int    `json:"nodes"`
	Path          string `json:"path"`
	Status        string `json:"status"`
}

// syncSummary aggregates a discovery pass.
type syncSummary struct {
	Units    []syncedUnit `json:"units"`
	Created  int          `json:"created"`
	Updated  int          `json:"updated"`
	Skipped  int          `json:"skipped"`
	UnitsDir string       `json:"units_dir"`
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Load unit files from the units directory into the store",
		Long: `Scan the units directory for unit documents and save them into the
state database.

Files define units; the store runs them. Discovery makes the two agree:
new files create units, edited files update them. A unit whose stored
version is ahead of its file is skipped, so revisions produced by
'structon evolve' survive a rescan.`,
		Example: `  # Sync units/ into the store
  structon discover

  # Machine-readable sync report
  structon discover --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd)
		},
	}

	return cmd
}

func runDiscover(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := syncUnitsDir(cmd.Context(), cc.Store, cc.Cfg.UnitsDir)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return discoverJSON(r, summary)
	case output.ModeMarkdown:
		return discoverMarkdown(r, summary)
	default:
		return discoverText(r, summary)
	}
}

// syncUnitsDir parses every unit document under dir and upserts it
// into the store. A missing directory yields an empty summary rather
// than an error, so fresh projects without a units directory still
// work. Units whose stored version is newer than the file are left
// alone.
func syncUnitsDir(ctx context.Context, store *state.SQLStore, dir string) (*syncSummary, error) {
	summary := &syncSummary{UnitsDir: dir}
	if dir == "" {
		return summary, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return summary, nil
	}

	discovered, err := loader.Discover(dir)
	if err != nil {
		return nil, err
	}

	for _, d := range discovered {
		status := syncCreated
		storedVersion := 0
		stored, err := store.LoadUnit(ctx, d.Unit.ID)
		switch {
		case err == nil && stored.Version > d.Unit.Version:
			status = syncSkipped
			storedVersion = stored.Version
		case err == nil:
			status = syncUpdated
		case !core.IsKind(err, core.ErrNotFound):
			return nil, err
		}

		if status != syncSkipped {
			if err := store.SaveUnit(ctx, d.Unit); err != nil {
				return nil, fmt.Errorf("save %s: %w", d.Unit.ID, err)
			}
		}

		summary.Units = append(summary.Units, syncedUnit{
			ID:            d.Unit.ID,
			Kind:          string(d.Unit.Kind),
			Version:       d.Unit.Version,
			StoredVersion: storedVersion,
			Nodes:         len(d.Unit.Nodes),
			Path:          d.Path,
			Status:        status,
		})
		switch status {
		case syncCreated:
			summary.Created++
		case syncUpdated:
			summary.Updated++
		case syncSkipped:
			summary.Skipped++
		}
	}

	return summary, nil
}

func discoverText(r *output.Renderer, summary *syncSummary) error {
	if len(summary.Units) == 0 {
		r.Printf("No unit files found in %s\n", summary.UnitsDir)
		return nil
	}

	styles := r.Styles()
	for _, u := range summary.Units {
		extra := fmt.Sprintf("%s, %d nodes", u.Kind, u.Nodes)
		if u.Status == syncSkipped {
			extra = fmt.Sprintf("store has v%d, file has v%d", u.StoredVersion, u.Version)
		}
		r.StatusLine(u.ID, statusForSync(u.Status), extra)
	}

	r.Println("")
	r.Success(fmt.Sprintf("Synced %d units from %s (%d created, %d updated, %d skipped)",
		len(summary.Units), summary.UnitsDir, summary.Created, summary.Updated, summary.Skipped))
	if summary.Skipped > 0 {
		r.Println(styles.Muted.Render("Skipped units have newer revisions in the store. Bump the file's version to take over."))
	}
	return nil
}

// statusForSync maps a sync status onto a StatusLine status word.
func statusForSync(status string) string {
	if status == syncSkipped {
		return "skipped"
	}
	return "success"
}

func discoverMarkdown(r *output.Renderer, summary *syncSummary) error {
	r.Println(output.FormatHeader(1, "Discovery Results"))
	r.Println("")
	r.Println(output.FormatKeyValue("Units Dir", summary.UnitsDir))
	r.Println(output.FormatKeyValue("Created", fmt.Sprintf("%d", summary.Created)))
	r.Println(output.FormatKeyValue("Updated", fmt.Sprintf("%d", summary.Updated)))
	r.Println(output.FormatKeyValue("Skipped", fmt.Sprintf("%d", summary.Skipped)))
	r.Println("")

	if len(summary.Units) > 0 {
		r.Println(output.FormatHeader(2, "Units"))
		for _, u := range summary.Units {
			r.Printf("- **%s** (%s, %d nodes) - %s\n", u.ID, u.Kind, u.Nodes, u.Status)
		}
	}
	return nil
}

func discoverJSON(r *output.Renderer, summary *syncSummary) error {
	enc := json.NewEncoder(r.Writer())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
