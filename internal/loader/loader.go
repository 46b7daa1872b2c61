// Package loader parses unit documents into core types.
//
// Units are stored as JSON or YAML documents. The loader is strict:
// unknown top-level fields are rejected, node roles are normalized to
// their canonical spellings, and every parsed unit passes structural
// validation before it reaches the engine.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/structon/pkg/core"
)

// ParseError reports a document that could not be decoded.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parse unit: %s", e.Message)
	}
	return fmt.Sprintf("parse unit %s: %s", e.File, e.Message)
}

// UnknownFieldError reports a top-level field that is not part of the
// unit document format.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("unknown field %q in unit document", e.Field)
	}
	return fmt.Sprintf("unknown field %q in unit document %s", e.Field, e.File)
}

// knownUnitFields is the set of recognized top-level document keys.
var knownUnitFields = map[string]bool{
	"identifier":        true,
	"kind":              true,
	"intent":            true,
	"stages":            true,
	"tension":           true,
	"importance":        true,
	"nodes":             true,
	"edges":             true,
	"version":           true,
	"parent_identifier": true,
	"deadline":          true,
}

// Format identifies a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding for a file path by extension.
// Unknown extensions default to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes a unit document and validates it. The file argument is
// used only for error messages and may be empty.
func Parse(data []byte, format Format, file string) (*core.Unit, error) {
	if err := checkUnknownFields(data, format, file); err != nil {
		return nil, err
	}

	var u core.Unit
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &u); err != nil {
			return nil, &ParseError{File: file, Message: err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, &ParseError{File: file, Message: err.Error()}
		}
	}

	Normalize(&u)
	if err := Validate(&u); err != nil {
		if file != "" {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		return nil, err
	}
	return &u, nil
}

// ParseFile reads and parses a unit document from disk.
func ParseFile(path string) (*core.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit file: %w", err)
	}
	return Parse(data, FormatForPath(path), filepath.Base(path))
}

// checkUnknownFields decodes the document into a raw map and rejects
// top-level keys outside the unit format. Nested node and edge fields
// are checked by Validate, which sees the typed structures.
func checkUnknownFields(data []byte, format Format, file string) error {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return &ParseError{File: file, Message: err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return &ParseError{File: file, Message: err.Error()}
		}
	}
	for key := range raw {
		if !knownUnitFields[key] {
			return &UnknownFieldError{File: file, Field: key}
		}
	}
	return nil
}

// Normalize rewrites a parsed unit into canonical form: roles and
// stages in canonical spelling, output names without the variable
// prefix, scores clamped to [0, 1], and version at least 1.
func Normalize(u *core.Unit) {
	u.Kind = core.UnitKind(strings.ToLower(strings.TrimSpace(string(u.Kind))))
	u.Tension = core.Clamp01(u.Tension)
	u.Importance = core.Clamp01(u.Importance)
	if u.Version < 1 {
		u.Version = 1
	}
	for i := range u.Stages {
		u.Stages[i] = core.Stage(strings.ToLower(strings.TrimSpace(string(u.Stages[i]))))
	}
	for i := range u.Nodes {
		n := &u.Nodes[i]
		n.Stage = core.Stage(strings.ToLower(strings.TrimSpace(string(n.Stage))))
		if role, ok := core.NormalizeRole(string(n.Role)); ok {
			n.Role = role
		}
		n.Output = strings.TrimPrefix(strings.TrimSpace(n.Output), core.VarPrefix)
	}
}

// EncodeJSON renders a unit as an indented JSON document.
func EncodeJSON(u *core.Unit) ([]byte, error) {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode unit: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeYAML renders a unit as a YAML document.
func EncodeYAML(u *core.Unit) ([]byte, error) {
	data, err := yaml.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode unit: %w", err)
	}
	return data, nil
}
