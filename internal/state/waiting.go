package state

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/structon/pkg/core"
)

// AddWaitingEdge records that waiter is blocked on blocker. Adding the
// same edge twice is a no-op.
func (s *SQLStore) AddWaitingEdge(ctx context.Context, waiter, blocker string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if waiter == blocker {
		return fmt.Errorf("unit %s cannot wait on itself", waiter)
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO waiting_edges (waiter, blocker, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (waiter, blocker) DO NOTHING`),
		waiter, blocker, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add waiting edge: %w", err)
	}
	return nil
}

// RemoveWaitingEdge clears a waiting edge. Removing a missing edge is
// a no-op.
func (s *SQLStore) RemoveWaitingEdge(ctx context.Context, waiter, blocker string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`DELETE FROM waiting_edges WHERE waiter = ? AND blocker = ?`), waiter, blocker)
	if err != nil {
		return fmt.Errorf("failed to remove waiting edge: %w", err)
	}
	return nil
}

// IsBlocked reports whether any unit currently waits on the given one.
func (s *SQLStore) IsBlocked(ctx context.Context, id string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database not opened")
	}
	var count int
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT COUNT(*) FROM waiting_edges WHERE blocker = ?`), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check waiting edges: %w", err)
	}
	return count > 0, nil
}

// ListWaitingEdges returns all waiting edges, oldest first.
func (s *SQLStore) ListWaitingEdges(ctx context.Context) ([]core.WaitingEdge, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT waiter, blocker, created_at FROM waiting_edges ORDER BY created_at ASC, waiter ASC`))
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting edges: %w", err)
	}
	defer rows.Close()

	var edges []core.WaitingEdge
	for rows.Next() {
		var e core.WaitingEdge
		if err := rows.Scan(&e.Waiter, &e.Blocker, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waiting edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
