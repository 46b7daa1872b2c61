package core

import (
	"strings"
	"time"
)

// Stage is one of the three ordered execution phases of a unit.
type Stage string

// Stage constants, in canonical order.
const (
	StagePerceive Stage = "perceive"
	StageAct      Stage = "act"
	StageReflect  Stage = "reflect"
)

// CanonicalStages returns the full stage sequence in canonical order.
func CanonicalStages() []Stage {
	return []Stage{StagePerceive, StageAct, StageReflect}
}

// StageRank returns the canonical position of a stage, or -1 if unknown.
func StageRank(s Stage) int {
	switch s {
	case StagePerceive:
		return 0
	case StageAct:
		return 1
	case StageReflect:
		return 2
	default:
		return -1
	}
}

// UnitKind distinguishes leaf units from units composed of other units.
type UnitKind string

// Unit kind constants.
const (
	KindAtomic    UnitKind = "atomic"
	KindComposite UnitKind = "composite"
)

// NodeRole describes what a node contributes to its unit's graph.
type NodeRole string

// Node role constants.
const (
	RoleInput   NodeRole = "input"
	RoleProcess NodeRole = "process"
	RoleOutput  NodeRole = "output"
	// RoleInvoke marks a node that invokes another unit by identifier
	// instead of running a primitive.
	RoleInvoke NodeRole = "invoke"
)

// NormalizeRole maps accepted role spellings onto the canonical constants.
// The long form "sub-unit-invocation" (and its underscore variant) is the
// interchange spelling for RoleInvoke.
func NormalizeRole(s string) (NodeRole, bool) {
	switch NodeRole(strings.ToLower(strings.TrimSpace(s))) {
	case RoleInput:
		return RoleInput, true
	case RoleProcess:
		return RoleProcess, true
	case RoleOutput:
		return RoleOutput, true
	case RoleInvoke, "sub-unit-invocation", "sub_unit_invocation":
		return RoleInvoke, true
	default:
		return "", false
	}
}

// Unit is the self-similar work descriptor: a DAG of typed operation
// nodes spanning up to three stages, annotated with a tension signal
// that drives selection and regeneration.
type Unit struct {
	// ID is unique and stable across versions of the same unit.
	ID string `json:"identifier" yaml:"identifier"`
	// Kind is atomic (leaf) or composite (invokes other units).
	Kind UnitKind `json:"kind" yaml:"kind"`
	// Intent is free descriptive text; never interpreted by the engine.
	Intent string `json:"intent" yaml:"intent"`
	// Stages is a non-empty subsequence of the canonical order.
	Stages []Stage `json:"stages" yaml:"stages"`
	// Tension is the priority signal, always clamped to [0,1].
	Tension float64 `json:"tension" yaml:"tension"`
	// Importance is the caller-declared weight, always clamped to [0,1].
	Importance float64 `json:"importance" yaml:"importance"`
	// Nodes are owned exclusively by this unit.
	Nodes []Node `json:"nodes" yaml:"nodes"`
	// Edges are directed dependencies between node ids of this unit.
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
	// Version increases monotonically; only evolution bumps it.
	Version int `json:"version" yaml:"version"`
	// ParentID is a back-reference only, never an ownership edge.
	ParentID string `json:"parent_identifier,omitempty" yaml:"parent_identifier,omitempty"`
	// Deadline, when set, drives urgency in tension computation.
	Deadline *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// Node is one step of work inside a unit's graph.
type Node struct {
	// ID is unique within the owning unit.
	ID string `json:"id" yaml:"id"`
	// Stage must be one of the unit's declared stages.
	Stage Stage `json:"stage" yaml:"stage"`
	// Role classifies the node; operation is absent iff role is invoke.
	Role NodeRole `json:"role" yaml:"role"`
	// Operation names the registered primitive to dispatch.
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`
	// Input is a literal, a "$name" variable reference, or a list
	// thereof; lists resolve element-wise, depth-first.
	Input any `json:"input,omitempty" yaml:"input,omitempty"`
	// Args is the static, named literal configuration for the primitive.
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	// Output, when set, names the variable the node's result binds to.
	// Nodes without an output are side-effecting only.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	// ChildRef identifies the invoked unit for invoke-role nodes.
	ChildRef string `json:"child_unit_reference,omitempty" yaml:"child_unit_reference,omitempty"`
}

// Edge is a directed dependency From → To between two node ids.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// VarPrefix marks a string input as a variable reference.
const VarPrefix = "$"

// RefName reports whether v is a variable reference and, if so, the
// referenced variable name.
func RefName(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, VarPrefix) || len(s) == 1 {
		return "", false
	}
	return s[1:], true
}

// NodeByID returns the node with the given id, or nil.
func (u *Unit) NodeByID(id string) *Node {
	for i := range u.Nodes {
		if u.Nodes[i].ID == id {
			return &u.Nodes[i]
		}
	}
	return nil
}

// HasStage reports whether the unit declares the given stage.
func (u *Unit) HasStage(s Stage) bool {
	for _, st := range u.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// OutputNodes returns the nodes that bind an output variable, in
// declaration order.
func (u *Unit) OutputNodes() []Node {
	var out []Node
	for _, n := range u.Nodes {
		if n.Output != "" {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy of the unit. Nodes, edges, stages, and
// argument bags are copied; argument values are shared (they are
// immutable-after-validation literals).
func (u *Unit) Clone() *Unit {
	c := *u
	c.Stages = append([]Stage(nil), u.Stages...)
	c.Edges = append([]Edge(nil), u.Edges...)
	c.Nodes = make([]Node, len(u.Nodes))
	for i, n := range u.Nodes {
		cn := n
		if n.Args != nil {
			cn.Args = make(map[string]any, len(n.Args))
			for k, v := range n.Args {
				cn.Args[k] = v
			}
		}
		c.Nodes[i] = cn
	}
	if u.Deadline != nil {
		d := *u.Deadline
		c.Deadline = &d
	}
	return &c
}

// Clamp01 clamps v to the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
