package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/pkg/core"
)

const sampleJSON = `{
  "identifier": "structon_check_inbox",
  "kind": "atomic",
  "intent": "read a value and pass it through",
  "stages": ["perceive", "act", "reflect"],
  "tension": 0.4,
  "importance": 0.6,
  "nodes": [
    {"id": "s1", "stage": "perceive", "role": "input", "operation": "get", "args": {"key": "x"}, "output": "$x"},
    {"id": "a1", "stage": "act", "role": "process", "operation": "identity", "input": "$x", "output": "y"},
    {"id": "f1", "stage": "reflect", "role": "output", "operation": "emit", "input": "$y"}
  ],
  "edges": []
}`

const sampleYAML = `identifier: structon_check_inbox
kind: atomic
intent: read a value and pass it through
stages: [perceive, act, reflect]
tension: 0.4
importance: 0.6
nodes:
  - id: s1
    stage: perceive
    role: input
    operation: get
    args: {key: x}
    output: $x
  - id: a1
    stage: act
    role: process
    operation: identity
    input: $x
    output: y
  - id: f1
    stage: reflect
    role: output
    operation: emit
    input: $y
`

func TestParse_JSON(t *testing.T) {
	u, err := Parse([]byte(sampleJSON), FormatJSON, "inbox.json")
	require.NoError(t, err)

	assert.Equal(t, "structon_check_inbox", u.ID)
	assert.Equal(t, core.KindAtomic, u.Kind)
	assert.Equal(t, core.CanonicalStages(), u.Stages)
	assert.Equal(t, 1, u.Version, "version should default to 1")
	require.Len(t, u.Nodes, 3)

	// Output names are stored without the variable prefix.
	assert.Equal(t, "x", u.Nodes[0].Output)
	assert.Equal(t, "y", u.Nodes[1].Output)
	assert.Equal(t, "$x", u.Nodes[1].Input, "inputs keep the reference form")
	assert.Equal(t, "x", u.Nodes[0].Args["key"])
}

func TestParse_YAML(t *testing.T) {
	u, err := Parse([]byte(sampleYAML), FormatYAML, "inbox.yaml")
	require.NoError(t, err)

	assert.Equal(t, "structon_check_inbox", u.ID)
	require.Len(t, u.Nodes, 3)
	assert.Equal(t, "$x", u.Nodes[1].Input)
	assert.Equal(t, core.RoleProcess, u.Nodes[1].Role)
}

func TestParse_UnknownField(t *testing.T) {
	doc := `{"identifier": "u", "kind": "atomic", "intent": "x", "stages": ["act"], "priority": 0.5, "nodes": []}`
	_, err := Parse([]byte(doc), FormatJSON, "u.json")
	require.Error(t, err)

	var unknown *UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "priority", unknown.Field)
	assert.Contains(t, err.Error(), "u.json")
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"identifier": `), FormatJSON, "broken.json")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "broken.json", perr.File)
}

func TestParse_RoleAliases(t *testing.T) {
	doc := `{
  "identifier": "structon_parent",
  "kind": "composite",
  "intent": "delegate",
  "stages": ["act"],
  "nodes": [
    {"id": "d1", "stage": "act", "role": "sub-unit-invocation", "child_unit_reference": "structon_child"}
  ]
}`
	u, err := Parse([]byte(doc), FormatJSON, "")
	require.NoError(t, err)
	assert.Equal(t, core.RoleInvoke, u.Nodes[0].Role)
	assert.Equal(t, "structon_child", u.Nodes[0].ChildRef)
}

func TestNormalize_ClampsScores(t *testing.T) {
	u := &core.Unit{Tension: 1.7, Importance: -0.2}
	Normalize(u)
	assert.Equal(t, 1.0, u.Tension)
	assert.Equal(t, 0.0, u.Importance)
}

func validUnit() *core.Unit {
	return &core.Unit{
		ID:         "structon_valid",
		Kind:       core.KindAtomic,
		Intent:     "test fixture",
		Stages:     []core.Stage{core.StagePerceive, core.StageAct},
		Version:    1,
		Nodes: []core.Node{
			{ID: "s1", Stage: core.StagePerceive, Role: core.RoleInput, Operation: "get", Args: map[string]any{"key": "x"}, Output: "x"},
			{ID: "a1", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$x", Output: "y"},
		},
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(u *core.Unit)
		wantMsg string
	}{
		{
			name:    "missing identifier",
			mutate:  func(u *core.Unit) { u.ID = " " },
			wantMsg: "identifier is required",
		},
		{
			name:    "bad kind",
			mutate:  func(u *core.Unit) { u.Kind = "molecular" },
			wantMsg: "kind must be",
		},
		{
			name:    "missing intent",
			mutate:  func(u *core.Unit) { u.Intent = "" },
			wantMsg: "intent is required",
		},
		{
			name:    "no stages",
			mutate:  func(u *core.Unit) { u.Stages = nil },
			wantMsg: "at least one stage",
		},
		{
			name:    "unknown stage",
			mutate:  func(u *core.Unit) { u.Stages = []core.Stage{"dream"} },
			wantMsg: `unknown stage "dream"`,
		},
		{
			name: "stages out of order",
			mutate: func(u *core.Unit) {
				u.Stages = []core.Stage{core.StageAct, core.StagePerceive}
			},
			wantMsg: "stages must follow",
		},
		{
			name: "stage listed twice",
			mutate: func(u *core.Unit) {
				u.Stages = []core.Stage{core.StageAct, core.StageAct}
			},
			wantMsg: "listed twice",
		},
		{
			name:    "no nodes",
			mutate:  func(u *core.Unit) { u.Nodes = nil },
			wantMsg: "at least one node",
		},
		{
			name:    "duplicate node id",
			mutate:  func(u *core.Unit) { u.Nodes[1].ID = "s1" },
			wantMsg: "duplicate node id",
		},
		{
			name:    "undeclared node stage",
			mutate:  func(u *core.Unit) { u.Nodes[1].Stage = core.StageReflect },
			wantMsg: "not declared by the unit",
		},
		{
			name:    "unknown role",
			mutate:  func(u *core.Unit) { u.Nodes[0].Role = "observer" },
			wantMsg: `unknown role "observer"`,
		},
		{
			name:    "missing operation",
			mutate:  func(u *core.Unit) { u.Nodes[0].Operation = "" },
			wantMsg: "operation is required",
		},
		{
			name: "invoke with operation",
			mutate: func(u *core.Unit) {
				u.Kind = core.KindComposite
				u.Nodes[1] = core.Node{ID: "a1", Stage: core.StageAct, Role: core.RoleInvoke, Operation: "get", ChildRef: "structon_child"}
			},
			wantMsg: "must not set an operation",
		},
		{
			name: "invoke without child reference",
			mutate: func(u *core.Unit) {
				u.Kind = core.KindComposite
				u.Nodes[1] = core.Node{ID: "a1", Stage: core.StageAct, Role: core.RoleInvoke}
			},
			wantMsg: "require child_unit_reference",
		},
		{
			name: "atomic unit invoking a sub-unit",
			mutate: func(u *core.Unit) {
				u.Nodes[1] = core.Node{ID: "a1", Stage: core.StageAct, Role: core.RoleInvoke, ChildRef: "structon_child"}
			},
			wantMsg: "atomic units cannot invoke",
		},
		{
			name: "child reference on process node",
			mutate: func(u *core.Unit) {
				u.Nodes[1].ChildRef = "structon_child"
			},
			wantMsg: "only valid on invocation nodes",
		},
		{
			name: "edge to unknown node",
			mutate: func(u *core.Unit) {
				u.Edges = []core.Edge{{From: "s1", To: "ghost"}}
			},
			wantMsg: `unknown node "ghost"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUnit()
			tt.mutate(u)
			err := Validate(u)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_SelfLoopIsCyclic(t *testing.T) {
	u := validUnit()
	u.Edges = []core.Edge{{From: "a1", To: "a1"}}
	err := Validate(u)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrCyclicGraph))
}

func TestValidate_ExplicitCycle(t *testing.T) {
	u := validUnit()
	u.Edges = []core.Edge{{From: "s1", To: "a1"}, {From: "a1", To: "s1"}}
	err := Validate(u)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrCyclicGraph))
}

func TestValidate_UnboundReference(t *testing.T) {
	u := validUnit()
	u.Nodes[1].Input = "$ghost"

	err := Validate(u)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrUnboundVariable))
	assert.Contains(t, err.Error(), "$ghost")
}

func TestValidate_GetKeyDeclaresCallerValue(t *testing.T) {
	// No node produces "city", but the get node's key marks it as a
	// caller-supplied value, so the direct reference is allowed.
	u := validUnit()
	u.Nodes[0].Args = map[string]any{"key": "city"}
	u.Nodes[0].Output = "c"
	u.Nodes[1].Input = "$city"

	assert.NoError(t, Validate(u))
}

func TestValidate_ImplicitReferenceCycle(t *testing.T) {
	// a reads $b and b reads $a. No explicit edges, but the variable
	// references alone form a cycle.
	u := &core.Unit{
		ID:         "structon_tangle",
		Kind:       core.KindAtomic,
		Intent:     "cycle through references",
		Stages:     []core.Stage{core.StageAct},
		Version:    1,
		Nodes: []core.Node{
			{ID: "a", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$b", Output: "a"},
			{ID: "b", Stage: core.StageAct, Role: core.RoleProcess, Operation: "identity", Input: "$a", Output: "b"},
		},
	}
	err := Validate(u)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.ErrCyclicGraph))
}

func TestEncodeRoundTrip(t *testing.T) {
	u, err := Parse([]byte(sampleJSON), FormatJSON, "")
	require.NoError(t, err)

	data, err := EncodeJSON(u)
	require.NoError(t, err)
	again, err := Parse(data, FormatJSON, "")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Len(t, again.Nodes, len(u.Nodes))

	ydata, err := EncodeYAML(u)
	require.NoError(t, err)
	yagain, err := Parse(ydata, FormatYAML, "")
	require.NoError(t, err)
	assert.Equal(t, u.ID, yagain.ID)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeUnit := func(name, id string) {
		doc := `{"identifier": "` + id + `", "kind": "atomic", "intent": "fixture",
  "stages": ["act"],
  "nodes": [{"id": "n1", "stage": "act", "role": "process", "operation": "identity", "input": 1}]}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	writeUnit("b.json", "structon_b")
	writeUnit("a.json", "structon_a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	found, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "structon_a", found[0].Unit.ID, "files are visited in lexical order")
	assert.Equal(t, "structon_b", found[1].Unit.ID)
}

func TestDiscover_DuplicateIdentifier(t *testing.T) {
	dir := t.TempDir()
	doc := `{"identifier": "structon_dup", "kind": "atomic", "intent": "fixture",
  "stages": ["act"],
  "nodes": [{"id": "n1", "stage": "act", "role": "process", "operation": "identity", "input": 1}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.json"), []byte(doc), 0o644))

	_, err := Discover(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structon_dup")
}

func TestDiscover_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	_, err := Discover(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
