package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/structon/pkg/core"
)

// stagesColumn renders the stage list as ",perceive,act," so a single
// LIKE per stage can filter without false substring matches.
func stagesColumn(stages []core.Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return "," + strings.Join(parts, ",") + ","
}

// SaveUnit inserts or replaces a unit document. The whole document is
// stored as JSON; queryable fields are mirrored into columns.
func (s *SQLStore) SaveUnit(ctx context.Context, u *core.Unit) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode unit %s: %w", u.ID, err)
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO units (identifier, kind, intent, stages, tension, importance, version,
		                    parent_identifier, deadline, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET
		   kind = excluded.kind,
		   intent = excluded.intent,
		   stages = excluded.stages,
		   tension = excluded.tension,
		   importance = excluded.importance,
		   version = excluded.version,
		   parent_identifier = excluded.parent_identifier,
		   deadline = excluded.deadline,
		   document = excluded.document,
		   updated_at = excluded.updated_at`),
		u.ID, string(u.Kind), u.Intent, stagesColumn(u.Stages), u.Tension, u.Importance, u.Version,
		nullString(u.ParentID), nullTime(u.Deadline), string(doc), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save unit %s: %w", u.ID, err)
	}
	return nil
}

// LoadUnit retrieves a unit by identifier. The tension column is
// authoritative over the stored document, since feedback updates touch
// only the column.
func (s *SQLStore) LoadUnit(ctx context.Context, id string) (*core.Unit, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	var doc string
	var tension float64

	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT document, tension FROM units WHERE identifier = ?`), id,
	).Scan(&doc, &tension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("unit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %s: %w", id, err)
	}

	return decodeUnit(doc, tension)
}

func decodeUnit(doc string, tension float64) (*core.Unit, error) {
	var u core.Unit
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, fmt.Errorf("failed to decode unit document: %w", err)
	}
	u.Tension = tension
	return &u, nil
}

// QueryUnits lists units matching the query. Results come back in
// creation order unless the query asks for tension ordering.
func (s *SQLStore) QueryUnits(ctx context.Context, q core.UnitQuery) ([]*core.Unit, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	where, args := buildUnitWhere(q)

	query := `SELECT document, tension FROM units` + where
	if q.OrderByTension {
		query += ` ORDER BY tension DESC, created_at ASC, identifier ASC`
	} else {
		query += ` ORDER BY created_at ASC, identifier ASC`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var units []*core.Unit
	for rows.Next() {
		var doc string
		var tension float64
		if err := rows.Scan(&doc, &tension); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		u, err := decodeUnit(doc, tension)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// DeleteUnit removes a unit by identifier.
func (s *SQLStore) DeleteUnit(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM units WHERE identifier = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete unit %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("unit", id)
	}
	return nil
}

// UpdateTension sets a unit's tension score without rewriting the
// document.
func (s *SQLStore) UpdateTension(ctx context.Context, id string, tension float64) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE units SET tension = ?, updated_at = ? WHERE identifier = ?`),
		core.Clamp01(tension), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update tension for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("unit", id)
	}
	return nil
}

// ListChildren returns the units whose parent_identifier matches, in
// creation order.
func (s *SQLStore) ListChildren(ctx context.Context, parentID string) ([]*core.Unit, error) {
	return s.QueryUnits(ctx, core.UnitQuery{Parent: parentID})
}
