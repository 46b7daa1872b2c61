package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/internal/state"
	"github.com/leapstack-labs/structon/pkg/core"
)

// newQueryStateDB seeds a state database file with two units and
// reopens it read-only, the way the query command does.
func newQueryStateDB(t *testing.T) (string, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := state.OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	watcher := doctorUnit("feed_watcher")
	watcher.Intent = "watch the news feed for fresh items"
	watcher.Tension = 0.8
	require.NoError(t, store.SaveUnit(ctx, watcher))

	rescore := doctorUnit("pool_rescore")
	rescore.Intent = "push pressure up the unit tree"
	rescore.Tension = 0.2
	require.NoError(t, store.SaveUnit(ctx, rescore))

	require.NoError(t, store.Close())

	db, err := openStateDBReadOnly(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return path, db
}

func queryRows(t *testing.T, db *sql.DB, query string) *sql.Rows {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), query)
	require.NoError(t, err)
	return rows
}

func TestRenderResultsTableFormat(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	rows := queryRows(t, db, "SELECT identifier, tension FROM units ORDER BY identifier")
	require.NoError(t, renderResults(buf, rows, "table"))

	out := buf.String()
	assert.Contains(t, out, "IDENTIFIER")
	assert.Contains(t, out, "feed_watcher")
	assert.Contains(t, out, "pool_rescore")
	assert.Contains(t, out, "(2 rows)")
}

func TestRenderResultsJSONFormat(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	rows := queryRows(t, db, "SELECT identifier FROM units ORDER BY identifier")
	require.NoError(t, renderResults(buf, rows, "json"))

	var results []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "feed_watcher", results[0]["identifier"])
}

func TestRenderResultsCSVFormat(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	rows := queryRows(t, db, "SELECT identifier, kind FROM units ORDER BY identifier")
	require.NoError(t, renderResults(buf, rows, "csv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "identifier,kind", lines[0])
	assert.Equal(t, "feed_watcher,atomic", lines[1])
}

func TestRenderResultsMarkdownFormat(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	rows := queryRows(t, db, "SELECT identifier FROM units ORDER BY identifier")
	require.NoError(t, renderResults(buf, rows, "markdown"))

	out := buf.String()
	assert.Contains(t, out, "| identifier |")
	assert.Contains(t, out, "| --- |")
	assert.Contains(t, out, "| feed_watcher |")
}

func TestRenderResultsEmpty(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	rows := queryRows(t, db, "SELECT identifier FROM units WHERE identifier = 'nope'")
	require.NoError(t, renderResults(buf, rows, "table"))

	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestListTablesFromDB(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	require.NoError(t, listTablesFromDB(context.Background(), buf, db, "csv"))

	out := buf.String()
	for _, table := range []string{"units", "runs", "node_runs", "waiting_edges", "experiences"} {
		assert.Contains(t, out, table)
	}
	// Search index internals and migration bookkeeping stay hidden.
	assert.NotContains(t, out, "units_fts")
	assert.NotContains(t, out, "goose")
}

func TestShowSchemaFromDB(t *testing.T) {
	_, db := newQueryStateDB(t)

	buf := new(bytes.Buffer)
	require.NoError(t, showSchemaFromDB(context.Background(), buf, db, "units", "text"))

	out := buf.String()
	assert.Contains(t, out, "Table: units")
	assert.Contains(t, out, "identifier")
	assert.Contains(t, out, "(primary key)")
	assert.Contains(t, out, "tension")
}

func TestShowSchemaFromDB_UnknownTable(t *testing.T) {
	_, db := newQueryStateDB(t)

	err := showSchemaFromDB(context.Background(), new(bytes.Buffer), db, "missing_table", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_table")
}

// Saving a unit keeps the search index current through the content
// table triggers.
func TestSearchUnitsMatchesIntent(t *testing.T) {
	path, _ := newQueryStateDB(t)

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	require.NoError(t, searchUnits(cmd, path, "fresh", "csv"))

	out := buf.String()
	assert.Contains(t, out, "feed_watcher")
	assert.Contains(t, out, ">>>fresh<<<")
	assert.NotContains(t, out, "pool_rescore")
}

func TestQueryCommandMissingState(t *testing.T) {
	setupProjectEnv(t)

	cmd := NewQueryCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"SELECT 1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state database not found")
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with,comma", `"with,comma"`},
		{`with"quote`, `"with""quote"`},
		{"with\nnewline", "\"with\nnewline\""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeCSV(tt.in))
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "7", formatValue(7))
	assert.Equal(t, "0.5", formatValue(0.5))
}

func TestUpdateTensionRefreshesSearchIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := state.OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	u := doctorUnit("drifting")
	u.Intent = "chase a moving target"
	require.NoError(t, store.SaveUnit(ctx, u))
	require.NoError(t, store.UpdateTension(ctx, "drifting", 0.9))
	require.NoError(t, store.Close())

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	require.NoError(t, searchUnits(cmd, path, "moving", "csv"))
	assert.Contains(t, buf.String(), "drifting")
}
