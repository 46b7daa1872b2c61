package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/structon/pkg/core"
)

// SaveExperience inserts or replaces an experience record. A missing
// id gets a fresh UUID; a zero CreatedAt gets the current time.
func (s *SQLStore) SaveExperience(ctx context.Context, e *core.Experience) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var payload sql.NullString
	if len(e.Payload) > 0 {
		p, err := marshalJSON(e.Payload)
		if err != nil {
			return err
		}
		payload = p
	}

	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO experiences (id, category, summary, payload, strength, uses, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   category = excluded.category,
		   summary = excluded.summary,
		   payload = excluded.payload,
		   strength = excluded.strength,
		   uses = excluded.uses,
		   last_used_at = excluded.last_used_at`),
		e.ID, e.Category, e.Summary, payload, e.Strength, e.Uses, e.CreatedAt, nullTime(e.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save experience: %w", err)
	}
	return nil
}

// GetExperience loads a single experience by id.
func (s *SQLStore) GetExperience(ctx context.Context, id string) (*core.Experience, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, category, summary, payload, strength, uses, created_at, last_used_at
		 FROM experiences WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, notFound("experience", id)
	}
	return scanExperience(rows)
}

// ListExperiences returns experiences in a category, strongest first.
// An empty category matches all. A zero limit returns everything.
func (s *SQLStore) ListExperiences(ctx context.Context, category string, limit int) ([]*core.Experience, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	query := `SELECT id, category, summary, payload, strength, uses, created_at, last_used_at FROM experiences`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY strength DESC, created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences: %w", err)
	}
	defer rows.Close()

	var out []*core.Experience
	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExperience(rows *sql.Rows) (*core.Experience, error) {
	e := &core.Experience{}
	var payload sql.NullString
	var lastUsed sql.NullTime

	if err := rows.Scan(&e.ID, &e.Category, &e.Summary, &payload, &e.Strength, &e.Uses, &e.CreatedAt, &lastUsed); err != nil {
		return nil, fmt.Errorf("failed to scan experience: %w", err)
	}
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode experience payload: %w", err)
		}
	}
	if lastUsed.Valid {
		e.LastUsedAt = &lastUsed.Time
	}
	return e, nil
}

// TouchExperience updates an experience's strength after activation
// and stamps its last use.
func (s *SQLStore) TouchExperience(ctx context.Context, id string, strength float64, usedAt time.Time) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE experiences SET strength = ?, uses = uses + 1, last_used_at = ? WHERE id = ?`),
		core.Clamp01(strength), usedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch experience: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("experience", id)
	}
	return nil
}

// PruneExperiences deletes weak experiences that have not been used
// since the cutoff. Never-used experiences fall back to their creation
// time. Returns the number of rows removed.
func (s *SQLStore) PruneExperiences(ctx context.Context, minStrength float64, unusedSince time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM experiences
		 WHERE strength < ? AND COALESCE(last_used_at, created_at) < ?`),
		minStrength, unusedSince.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune experiences: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return n, nil
}
