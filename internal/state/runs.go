package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/structon/pkg/core"
)

// CreateRun records the start of a unit execution. StartedAt defaults
// to now when unset.
func (s *SQLStore) CreateRun(ctx context.Context, run *core.Run) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = core.RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO runs (id, unit_identifier, unit_version, status, success, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		run.ID, run.UnitID, run.UnitVersion, string(run.Status), boolInt(run.Success), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun closes a run with its final status, outcome, and the
// values it produced.
func (s *SQLStore) CompleteRun(ctx context.Context, id string, status core.RunStatus, success bool, errMsg string, values map[string]any) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	var valuesJSON sql.NullString
	if values != nil {
		var err error
		valuesJSON, err = marshalJSON(values)
		if err != nil {
			return err
		}
	}

	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE runs SET status = ?, success = ?, completed_at = ?, error = ?, values_json = ?
		 WHERE id = ?`),
		string(status), boolInt(success), time.Now().UTC(), nullString(errMsg), valuesJSON, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("run", id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *SQLStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, unit_identifier, unit_version, status, success, started_at, completed_at, error
		 FROM runs WHERE id = ?`), id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs for a unit, newest first. A zero limit returns
// all of them.
func (s *SQLStore) ListRuns(ctx context.Context, unitID string, limit int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	query := `SELECT id, unit_identifier, unit_version, status, success, started_at, completed_at, error
	 FROM runs WHERE unit_identifier = ? ORDER BY started_at DESC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run for a unit, or a NotFound
// error when the unit never executed.
func (s *SQLStore) LatestRun(ctx context.Context, unitID string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT id, unit_identifier, unit_version, status, success, started_at, completed_at, error
		 FROM runs WHERE unit_identifier = ? ORDER BY started_at DESC, id ASC LIMIT 1`), unitID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("latest run for", unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	run := &core.Run{}
	var status string
	var success int
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&run.ID, &run.UnitID, &run.UnitVersion, &status, &success,
		&run.StartedAt, &completedAt, &errMsg)
	if err != nil {
		return nil, err
	}
	run.Status = core.RunStatus(status)
	run.Success = success != 0
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}

// SaveTrace stores the node-level trace of a run in one transaction.
// Positions follow trace order.
func (s *SQLStore) SaveTrace(ctx context.Context, runID string, trace []core.NodeTrace) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if len(trace) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO node_runs (run_id, position, node_id, outcome, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer stmt.Close()

	for i, nt := range trace {
		if _, err := stmt.ExecContext(ctx, runID, i, nt.NodeID, string(nt.Outcome), nt.DurationMS, nullString(nt.Error)); err != nil {
			return fmt.Errorf("failed to insert trace row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetTrace returns a run's node trace in execution order.
func (s *SQLStore) GetTrace(ctx context.Context, runID string) ([]core.NodeRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT run_id, position, node_id, outcome, duration_ms, error
		 FROM node_runs WHERE run_id = ? ORDER BY position ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	defer rows.Close()

	var trace []core.NodeRun
	for rows.Next() {
		var nr core.NodeRun
		var outcome string
		var errMsg sql.NullString
		if err := rows.Scan(&nr.RunID, &nr.Position, &nr.NodeID, &outcome, &nr.DurationMS, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		nr.Outcome = core.Outcome(outcome)
		if errMsg.Valid {
			nr.Error = errMsg.String
		}
		trace = append(trace, nr)
	}
	return trace, rows.Err()
}

// LatestValues returns the value bindings of a unit's most recent
// completed run. The second return is false when the unit has no run
// with recorded values.
func (s *SQLStore) LatestValues(ctx context.Context, unitID string) (map[string]any, bool, error) {
	if s.db == nil {
		return nil, false, fmt.Errorf("database not opened")
	}
	var valuesJSON sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT values_json FROM runs
		 WHERE unit_identifier = ? AND values_json IS NOT NULL
		 ORDER BY started_at DESC, id ASC LIMIT 1`), unitID,
	).Scan(&valuesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest values: %w", err)
	}

	values := map[string]any{}
	if err := json.Unmarshal([]byte(valuesJSON.String), &values); err != nil {
		return nil, false, fmt.Errorf("failed to decode run values: %w", err)
	}
	return values, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
