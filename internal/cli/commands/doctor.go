package commands

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/cli/config"
	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/internal/loader"
	"github.com/leapstack-labs/structon/internal/plugin"
	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a project health check",
		Long: `Analyze the project for problems before they bite at run time.

The report covers four areas:
- Setup: config file, state database, model provider, plugins
- Units: unit files parse and agree with the store
- Graph: stored graphs validate, invocations and parents resolve
- Runs: recent outcomes and waiting edges

Each finding comes with a health score (0-100) and recommendations.`,
		Example: `  # Run health check
  structon doctor

  # Output as JSON
  structon doctor --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         PoolSummary   `json:"summary"`
	HealthChecks    []HealthCheck `json:"health_checks"`
	Score           int           `json:"score"`
	Recommendations []string      `json:"recommendations"`
	IssueCount      int           `json:"issue_count"`
}

// PoolSummary contains pool-level statistics.
type PoolSummary struct {
	Units      int `json:"units"`
	Atomic     int `json:"atomic"`
	Composite  int `json:"composite"`
	Nodes      int `json:"nodes"`
	Operations int `json:"operations"`
	Plugins    int `json:"plugins"`
	Runs       int `json:"runs"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	CheckID    string   `json:"check_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	mode := output.Mode(cfg.OutputFormat)
	if opts.Format != "" {
		mode = output.Mode(opts.Format)
	}
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	// The doctor builds its pieces by hand instead of through
	// NewCommandContext so a broken plugin or unreachable store turns
	// into a finding rather than a fatal error.
	d := &doctor{ctx: cmd.Context(), cfg: cfg, logger: logger}

	d.checkConfig()
	store := d.checkStore()
	if store != nil {
		defer store.Close()
	}
	d.checkProvider()
	modules := d.checkPlugins()

	var units []*core.Unit
	if store != nil {
		var err error
		units, err = store.QueryUnits(d.ctx, core.UnitQuery{})
		if err != nil {
			return err
		}
	}

	d.checkUnitFiles(store, units)
	d.checkGraphs(units)
	d.checkInvocations(store, units)
	d.checkParents(store, units)
	d.checkDeadlines(units)
	runs := d.checkRecentRuns(store, units)
	d.checkWaitingEdges(store, units)

	out := buildDoctorOutput(d.checks, summarizePool(units, modules, runs))

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// doctor accumulates health checks against one project.
type doctor struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	checks []HealthCheck
}

func (d *doctor) add(id, name, group string, issues []string, severity string) {
	status := "pass"
	if len(issues) > 0 {
		status = severity
	}
	d.checks = append(d.checks, HealthCheck{
		CheckID:    id,
		Name:       name,
		Group:      group,
		Status:     status,
		IssueCount: len(issues),
		Details:    issues,
	})
}

func (d *doctor) checkConfig() {
	var issues []string
	if config.GetConfigFileUsed() == "" {
		issues = append(issues, "no structon.yaml found, running on defaults")
	}
	d.add("SE01", "Configuration file", "setup", issues, "warn")
}

// checkStore opens and migrates the configured store. On failure the
// store-dependent checks are skipped and the failure becomes the
// finding.
func (d *doctor) checkStore() *state.SQLStore {
	store, err := openStore(d.cfg, d.logger)
	if err != nil {
		d.add("SE02", "State database", "setup", []string{err.Error()}, "error")
		return nil
	}
	version, err := store.MigrationVersion()
	detail := "unreachable migration version"
	if err == nil {
		detail = fmt.Sprintf("migrated to version %d", version)
	}
	d.checks = append(d.checks, HealthCheck{
		CheckID: "SE02",
		Name:    "State database",
		Group:   "setup",
		Status:  "pass",
		Details: []string{fmt.Sprintf("%s, %s", d.cfg.GetStoreConfig().Driver, detail)},
	})
	return store
}

func (d *doctor) checkProvider() {
	pc := d.cfg.GetProviderConfig()
	var issues []string
	if _, err := intel.New(pc.Name, pc.Model, pc.APIKey); err != nil {
		issues = append(issues, err.Error())
		d.add("SE03", "Model provider", "setup", issues, "error")
		return
	}
	switch pc.Name {
	case "anthropic":
		if pc.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
			issues = append(issues, "provider is anthropic but no API key is configured (set ANTHROPIC_API_KEY)")
		}
	case "openai":
		if pc.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			issues = append(issues, "provider is openai but no API key is configured (set OPENAI_API_KEY)")
		}
	}
	d.add("SE03", "Model provider", "setup", issues, "warn")
}

func (d *doctor) checkPlugins() []*plugin.Module {
	modules, err := plugin.NewLoader(d.cfg.PluginsDir, d.logger).Load()
	if err != nil {
		d.add("SE04", "Plugins", "setup", []string{err.Error()}, "error")
		return nil
	}
	funcs := 0
	for _, m := range modules {
		funcs += len(m.Functions)
	}
	d.checks = append(d.checks, HealthCheck{
		CheckID: "SE04",
		Name:    "Plugins",
		Group:   "setup",
		Status:  "pass",
		Details: []string{fmt.Sprintf("%d namespaces, %d operations", len(modules), funcs)},
	})
	return modules
}

// checkUnitFiles parses every unit file under the units directory and
// compares the result with the store.
func (d *doctor) checkUnitFiles(store *state.SQLStore, units []*core.Unit) {
	var parseIssues, syncIssues []string

	if _, err := os.Stat(d.cfg.UnitsDir); os.IsNotExist(err) {
		d.add("UN01", "Unit files parse", "units",
			[]string{fmt.Sprintf("units directory %s not found", d.cfg.UnitsDir)}, "warn")
		d.add("UN02", "Files synced with store", "units", nil, "warn")
		return
	}

	stored := make(map[string]bool, len(units))
	for _, u := range units {
		stored[u.ID] = true
	}

	_ = filepath.WalkDir(d.cfg.UnitsDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !isUnitFile(path) {
			return nil
		}
		u, err := loader.ParseFile(path)
		if err != nil {
			parseIssues = append(parseIssues, err.Error())
			return nil
		}
		if store != nil && !stored[u.ID] {
			syncIssues = append(syncIssues, fmt.Sprintf("%s (%s) is not in the store", u.ID, filepath.Base(path)))
		}
		return nil
	})

	d.add("UN01", "Unit files parse", "units", parseIssues, "error")
	d.add("UN02", "Files synced with store", "units", syncIssues, "warn")
}

// checkGraphs validates every stored unit. Units reach the store
// through parsing or forging, both of which validate, but hand edits
// to the database or older revisions can still drift.
func (d *doctor) checkGraphs(units []*core.Unit) {
	var issues []string
	for _, u := range units {
		if err := loader.Validate(u); err != nil {
			issues = append(issues, err.Error())
		}
	}
	d.add("GR01", "Stored graphs validate", "graph", issues, "error")
}

func (d *doctor) checkInvocations(store *state.SQLStore, units []*core.Unit) {
	var issues []string
	if store != nil {
		for _, u := range units {
			for _, n := range u.Nodes {
				if n.ChildRef == "" {
					continue
				}
				if _, err := store.LoadUnit(d.ctx, n.ChildRef); core.IsKind(err, core.ErrNotFound) {
					issues = append(issues, fmt.Sprintf("%s node %s invokes missing unit %q", u.ID, n.ID, n.ChildRef))
				}
			}
		}
	}
	d.add("GR02", "Invocation targets exist", "graph", issues, "error")
}

func (d *doctor) checkParents(store *state.SQLStore, units []*core.Unit) {
	var issues []string
	if store != nil {
		for _, u := range units {
			if u.ParentID == "" {
				continue
			}
			if _, err := store.LoadUnit(d.ctx, u.ParentID); core.IsKind(err, core.ErrNotFound) {
				issues = append(issues, fmt.Sprintf("%s names missing parent %q", u.ID, u.ParentID))
			}
		}
	}
	d.add("GR03", "Parent links resolve", "graph", issues, "warn")
}

func (d *doctor) checkDeadlines(units []*core.Unit) {
	var issues []string
	now := time.Now()
	for _, u := range units {
		if u.Deadline != nil && u.Deadline.Before(now) {
			issues = append(issues, fmt.Sprintf("%s deadline passed %s ago", u.ID, now.Sub(*u.Deadline).Round(time.Minute)))
		}
	}
	d.add("GR04", "Deadlines", "graph", issues, "warn")
}

// checkRecentRuns flags units whose recent runs mostly fail. Returns
// the total run count for the summary.
func (d *doctor) checkRecentRuns(store *state.SQLStore, units []*core.Unit) int {
	var issues []string
	total := 0
	if store != nil {
		for _, u := range units {
			runs, err := store.ListRuns(d.ctx, u.ID, 0)
			if err != nil {
				continue
			}
			total += len(runs)

			window := runs
			if len(window) > 5 {
				window = window[:5]
			}
			failures := 0
			for _, run := range window {
				if run.Status == core.RunStatusFailed || (run.Status == core.RunStatusCompleted && !run.Success) {
					failures++
				}
			}
			if len(window) > 0 && failures*2 > len(window) {
				issues = append(issues, fmt.Sprintf("%s failed %d of its last %d runs", u.ID, failures, len(window)))
			}
		}
	}
	d.add("RN01", "Recent runs succeed", "runs", issues, "warn")
	return total
}

func (d *doctor) checkWaitingEdges(store *state.SQLStore, units []*core.Unit) {
	var issues []string
	if store != nil {
		known := make(map[string]bool, len(units))
		for _, u := range units {
			known[u.ID] = true
		}
		edges, err := store.ListWaitingEdges(d.ctx)
		if err == nil {
			for _, e := range edges {
				switch {
				case !known[e.Waiter]:
					issues = append(issues, fmt.Sprintf("edge %s -> %s names missing waiter", e.Waiter, e.Blocker))
				case !known[e.Blocker]:
					issues = append(issues, fmt.Sprintf("edge %s -> %s names missing blocker", e.Waiter, e.Blocker))
				}
			}
		}
	}
	d.add("RN02", "Waiting edges resolve", "runs", issues, "warn")
}

func summarizePool(units []*core.Unit, modules []*plugin.Module, runs int) PoolSummary {
	summary := PoolSummary{
		Units:   len(units),
		Plugins: len(modules),
		Runs:    runs,
	}
	for _, u := range units {
		summary.Nodes += len(u.Nodes)
		switch u.Kind {
		case core.KindComposite:
			summary.Composite++
		default:
			summary.Atomic++
		}
	}
	for _, m := range modules {
		summary.Operations += len(m.Functions)
	}
	return summary
}

func buildDoctorOutput(checks []HealthCheck, summary PoolSummary) *DoctorOutput {
	sort.Slice(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return groupOrder(checks[i].Group) < groupOrder(checks[j].Group)
		}
		return checks[i].CheckID < checks[j].CheckID
	})

	issueCount := 0
	for _, c := range checks {
		issueCount += c.IssueCount
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks, summary.Units),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issueCount,
	}
}

// groupOrder keeps the report reading top-down: setup problems first,
// run history last.
func groupOrder(group string) int {
	switch group {
	case "setup":
		return 0
	case "units":
		return 1
	case "graph":
		return 2
	default:
		return 3
	}
}

// calculateHealthScore computes a health score from 0-100. Errors
// count double, and bigger pools dilute the penalty per issue.
func calculateHealthScore(checks []HealthCheck, unitCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if unitCount > 10 {
		basePenalty = 3.0
	}
	if unitCount > 50 {
		basePenalty = 2.0
	}
	if unitCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= float64(check.IssueCount) * basePenalty * 2
		case "warn":
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on
// findings, capped at the five most pressing.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.CheckID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

func getRecommendation(checkID string) string {
	switch checkID {
	case "SE01":
		return "Create a project config with 'structon init'"
	case "SE02":
		return "Fix the state database connection before running units"
	case "SE03":
		return "Set the provider API key or switch provider.name to mock"
	case "SE04":
		return "Fix or remove plugin files that fail to load"
	case "UN01":
		return "Fix parse errors in the listed unit files"
	case "UN02":
		return "Run 'structon discover' to sync unit files into the store"
	case "GR01":
		return "Fix validation errors in the listed units"
	case "GR02":
		return "Create the missing invoked units or remove the invoke nodes"
	case "GR03":
		return "Create the missing parents or clear parent_identifier"
	case "GR04":
		return "Run or reschedule units whose deadlines have passed"
	case "RN01":
		return "Evolve failing units with 'structon evolve --auto'"
	case "RN02":
		return "Remove waiting edges that reference deleted units"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("structon health report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Pool Summary"))
	r.Printf("   Units: %d (%d atomic, %d composite) | Nodes: %d\n",
		out.Summary.Units, out.Summary.Atomic, out.Summary.Composite, out.Summary.Nodes)
	r.Printf("   Plugins: %d namespaces, %d operations | Runs recorded: %d\n",
		out.Summary.Plugins, out.Summary.Operations, out.Summary.Runs)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.StatusFailed.String()
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.CheckID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		// Show the first three details per finding.
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# structon health report")
	r.Println("")

	r.Println("## Pool Summary")
	r.Println("")
	r.Printf("- **Units**: %d (%d atomic, %d composite)\n", out.Summary.Units, out.Summary.Atomic, out.Summary.Composite)
	r.Printf("- **Nodes**: %d\n", out.Summary.Nodes)
	r.Printf("- **Plugins**: %d namespaces, %d operations\n", out.Summary.Plugins, out.Summary.Operations)
	r.Printf("- **Runs recorded**: %d\n", out.Summary.Runs)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s: %s", status, check.CheckID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
