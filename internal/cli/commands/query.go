package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/structon/internal/cli/config"
	"github.com/spf13/cobra"

	// sqlite driver for state database queries.
	_ "modernc.org/sqlite"
)

// resolveStatePath returns the state database path from config or the default.
func resolveStatePath(cfg *config.Config) string {
	if cfg.StatePath != "" {
		return cfg.StatePath
	}
	return config.DefaultStateFile
}

// openStateDBReadOnly opens the state database in read-only mode.
func openStateDBReadOnly(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path+"?mode=ro")
}

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the state database",
		Long: `Query the structon state database directly.

Execute SQL against the state database to inspect units, runs, node
traces, and recorded experiences. Supports multiple output formats for
scripting and integration.

When invoked without arguments, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  structon query "SELECT identifier, tension FROM units ORDER BY tension DESC"

  # List available tables
  structon query tables

  # Show schema for a table
  structon query schema runs

  # Full-text search across units
  structon query search "feed"

  # Output as JSON
  structon query "SELECT * FROM runs" --format json

  # Interactive mode
  structon query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	// Flags
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	// Subcommands
	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))
	cmd.AddCommand(newQuerySearchCommand(opts))

	return cmd
}

// queryStatePath resolves the sqlite state path, rejecting postgres
// stores. The query command reads the sqlite file directly; a postgres
// store is better served by psql.
func queryStatePath(cmd *cobra.Command) (string, error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store := cmdCtx.Cfg.GetStoreConfig()
	if store.Driver == config.DriverPostgres {
		return "", fmt.Errorf("query reads the sqlite state database, but store.driver is postgres (connect with psql instead)")
	}
	statePath := resolveStatePath(cmdCtx.Cfg)
	if statePath == ":memory:" {
		return "", fmt.Errorf("state database is in-memory, nothing to query")
	}
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return "", fmt.Errorf("state database not found at %s (run 'structon run' first)", statePath)
	}
	return statePath, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	statePath, err := queryStatePath(cmd)
	if err != nil {
		return err
	}

	// Determine SQL source
	var sqlQuery string

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, statePath, opts)
	}

	// Execute the query
	return executeAndRender(cmd.Context(), cmd, statePath, sqlQuery, opts.Format)
}

func executeAndRender(ctx context.Context, cmd *cobra.Command, statePath, sqlQuery, format string) error {
	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List all tables in the state database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statePath, err := queryStatePath(cmd)
			if err != nil {
				return err
			}
			return listTables(cmd, statePath, opts.Format)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show schema for a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, err := queryStatePath(cmd)
			if err != nil {
				return err
			}
			return showSchema(cmd, statePath, args[0], opts.Format)
		},
	}
}

// newQuerySearchCommand creates the search subcommand.
func newQuerySearchCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Full-text search across units",
		Long: `Search units using SQLite FTS5 full-text search.

Searches across unit identifiers, intents, and the full document JSON,
so operation names and static args match too.`,
		Example: `  structon query search "feed"
  structon query search "summarize" --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statePath, err := queryStatePath(cmd)
			if err != nil {
				return err
			}
			return searchUnits(cmd, statePath, args[0], opts.Format)
		},
	}
}

func searchUnits(cmd *cobra.Command, statePath, term, format string) error {
	// FTS5 query
	query := `
		SELECT
			u.identifier,
			u.kind,
			u.tension,
			highlight(units_fts, 1, '>>>', '<<<') AS match_context
		FROM units_fts
		JOIN units u ON units_fts.rowid = u.rowid
		WHERE units_fts MATCH ?
		ORDER BY rank
		LIMIT 50
	`

	db, err := openStateDBReadOnly(statePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(cmd.Context(), query, term)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return renderResults(cmd.OutOrStdout(), rows, format)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
