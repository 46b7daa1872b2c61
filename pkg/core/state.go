package core

import (
	"context"
	"time"
)

// Store is the persistence contract shared by the engine, the
// primitives, and the CLI. Implementations live in internal/state.
type Store interface {
	Close() error

	// Unit operations
	SaveUnit(ctx context.Context, u *Unit) error
	LoadUnit(ctx context.Context, id string) (*Unit, error)
	QueryUnits(ctx context.Context, q UnitQuery) ([]*Unit, error)
	DeleteUnit(ctx context.Context, id string) error
	UpdateTension(ctx context.Context, id string, tension float64) error
	ListChildren(ctx context.Context, parentID string) ([]*Unit, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, status RunStatus, success bool, errMsg string, values map[string]any) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, unitID string, limit int) ([]*Run, error)
	LatestRun(ctx context.Context, unitID string) (*Run, error)
	SaveTrace(ctx context.Context, runID string, trace []NodeTrace) error
	GetTrace(ctx context.Context, runID string) ([]NodeRun, error)
	LatestValues(ctx context.Context, unitID string) (map[string]any, bool, error)

	// Waiting-edge operations
	AddWaitingEdge(ctx context.Context, waiter, blocker string) error
	RemoveWaitingEdge(ctx context.Context, waiter, blocker string) error
	IsBlocked(ctx context.Context, id string) (bool, error)
	ListWaitingEdges(ctx context.Context) ([]WaitingEdge, error)

	// Experience operations
	SaveExperience(ctx context.Context, e *Experience) error
	GetExperience(ctx context.Context, id string) (*Experience, error)
	ListExperiences(ctx context.Context, category string, limit int) ([]*Experience, error)
	TouchExperience(ctx context.Context, id string, strength float64, usedAt time.Time) error
	PruneExperiences(ctx context.Context, minStrength float64, unusedSince time.Time) (int64, error)
}

// WaitingEdge records that one unit waits on another. The blocker's
// blocking factor stays raised until the edge is removed.
type WaitingEdge struct {
	Waiter    string    `json:"waiter"`
	Blocker   string    `json:"blocker"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitQuery filters and orders a unit listing. Zero values mean
// "no filter".
type UnitQuery struct {
	// Kind restricts results to atomic or composite units.
	Kind UnitKind
	// Stage restricts results to units declaring the stage.
	Stage Stage
	// Parent restricts results to children of the given unit.
	Parent string
	// Intent restricts results to intents containing the substring,
	// matched case-insensitively.
	Intent string
	// RootsOnly restricts results to units without a parent.
	RootsOnly bool
	// MinTension and MaxTension bound the tension score inclusively.
	MinTension *float64
	MaxTension *float64
	// OrderByTension sorts descending by tension instead of by
	// creation order. Ties keep creation order either way.
	OrderByTension bool
	// Limit caps the number of results; 0 means no cap.
	Limit int
}
