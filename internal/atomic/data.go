package atomic

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/structon/pkg/core"
)

// opGet reads a key from the input map, falling back to the run's
// bound values. A default argument turns a missing key into a value.
func opGet(_ context.Context, input any, args map[string]any, env *Env) (any, error) {
	var a struct {
		Key     string `json:"key"`
		Default any    `json:"default"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "get requires a key argument")
	}

	if m, ok := input.(map[string]any); ok {
		if v, ok := m[a.Key]; ok {
			return v, nil
		}
	}
	if v, ok := env.lookupValue(a.Key); ok {
		return v, nil
	}
	if _, ok := args["default"]; ok {
		return a.Default, nil
	}
	return nil, core.NewError(core.ErrNotFound, "key %q is not bound", a.Key)
}

// opSet passes a value through for the node's output binding. A value
// argument overrides the input.
func opSet(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	if v, ok := args["value"]; ok {
		return v, nil
	}
	return input, nil
}

func opIdentity(_ context.Context, input any, _ map[string]any, _ *Env) (any, error) {
	return input, nil
}

// opMerge combines maps or concatenates lists. A list input merges its
// elements; a map input merges with the "with" argument.
func opMerge(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	if m, ok := input.(map[string]any); ok {
		with, _ := args["with"].(map[string]any)
		return mergeMaps([]map[string]any{m, with}), nil
	}

	list, ok := input.([]any)
	if !ok {
		return nil, core.NewError(core.ErrInvalidArgument, "merge expects a map or a list, got %T", input)
	}
	var maps []map[string]any
	var flat []any
	for _, el := range list {
		switch t := el.(type) {
		case map[string]any:
			maps = append(maps, t)
		case []any:
			flat = append(flat, t...)
		default:
			flat = append(flat, t)
		}
	}
	if len(maps) > 0 {
		if len(flat) > 0 {
			return nil, core.NewError(core.ErrInvalidArgument, "merge cannot mix maps and scalars")
		}
		return mergeMaps(maps), nil
	}
	return flat, nil
}

func mergeMaps(maps []map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// opFilter keeps list elements matching a key/value pair. With only a
// key, truthiness of that field decides; with only a value, elements
// are compared directly.
func opFilter(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	var a struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, hasValue := args["value"]
	if a.Key == "" && !hasValue {
		return nil, core.NewError(core.ErrInvalidArgument, "filter requires a key or value argument")
	}

	list := asList(input)
	out := make([]any, 0, len(list))
	for _, el := range list {
		switch {
		case a.Key != "":
			m, ok := el.(map[string]any)
			if !ok {
				continue
			}
			field := m[a.Key]
			if hasValue && equalValues(field, a.Value) || !hasValue && truthy(field) {
				out = append(out, el)
			}
		case equalValues(el, a.Value):
			out = append(out, el)
		}
	}
	return out, nil
}

// opMap extracts a field from each element, or renders a template with
// {field} placeholders.
func opMap(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	var a struct {
		Key      string `json:"key"`
		Template string `json:"template"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" && a.Template == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "map requires a key or template argument")
	}

	list := asList(input)
	out := make([]any, 0, len(list))
	for _, el := range list {
		if a.Template != "" {
			out = append(out, renderTemplate(a.Template, el))
			continue
		}
		m, ok := el.(map[string]any)
		if !ok {
			out = append(out, nil)
			continue
		}
		out = append(out, m[a.Key])
	}
	return out, nil
}

// renderTemplate substitutes {field} markers from a map element. A
// bare {value} marker inserts scalar elements.
func renderTemplate(tmpl string, el any) string {
	if m, ok := el.(map[string]any); ok {
		pairs := make([]string, 0, 2*len(m))
		for k, v := range m {
			pairs = append(pairs, "{"+k+"}", toString(v))
		}
		return strings.NewReplacer(pairs...).Replace(tmpl)
	}
	return strings.ReplaceAll(tmpl, "{value}", toString(el))
}

// opFirst returns the first element of a list, or the default when
// the list is empty.
func opFirst(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	list := asList(input)
	if len(list) > 0 {
		return list[0], nil
	}
	return args["default"], nil
}

// opSort orders a list ascending by value, or by a key for map
// elements. order: "desc" reverses.
func opSort(_ context.Context, input any, args map[string]any, _ *Env) (any, error) {
	var a struct {
		Key   string `json:"key"`
		Order string `json:"order"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	desc := false
	switch a.Order {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return nil, core.NewError(core.ErrInvalidArgument, "sort order must be asc or desc, got %q", a.Order)
	}

	src := asList(input)
	out := make([]any, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := out[i], out[j]
		if a.Key != "" {
			if m, ok := vi.(map[string]any); ok {
				vi = m[a.Key]
			}
			if m, ok := vj.(map[string]any); ok {
				vj = m[a.Key]
			}
		}
		if desc {
			return compareValues(vi, vj) > 0
		}
		return compareValues(vi, vj) < 0
	})
	return out, nil
}

// opDiff reports the structural difference between two maps given as
// a two-element list: keys added, removed, and changed.
func opDiff(_ context.Context, input any, _ map[string]any, _ *Env) (any, error) {
	list, ok := input.([]any)
	if !ok || len(list) != 2 {
		return nil, core.NewError(core.ErrInvalidArgument, "diff expects a list of two maps")
	}
	before, ok1 := list[0].(map[string]any)
	after, ok2 := list[1].(map[string]any)
	if !ok1 || !ok2 {
		return nil, core.NewError(core.ErrInvalidArgument, "diff expects a list of two maps")
	}

	added := make(map[string]any)
	removed := make(map[string]any)
	changed := make(map[string]any)
	for k, v := range after {
		old, exists := before[k]
		switch {
		case !exists:
			added[k] = v
		case !reflect.DeepEqual(old, v):
			changed[k] = map[string]any{"from": old, "to": v}
		}
	}
	for k, v := range before {
		if _, exists := after[k]; !exists {
			removed[k] = v
		}
	}
	return map[string]any{"added": added, "removed": removed, "changed": changed}, nil
}

// opEmit hands the input to the run's emit sink and passes it through.
func opEmit(_ context.Context, input any, _ map[string]any, env *Env) (any, error) {
	if env != nil && env.Emit != nil {
		env.Emit(input)
	} else {
		env.logger().Info("emit", "value", input)
	}
	return input, nil
}

// opLog records a message at the given level and passes the input
// through untouched.
func opLog(_ context.Context, input any, args map[string]any, env *Env) (any, error) {
	var a struct {
		Message string `json:"message"`
		Level   string `json:"level"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	msg := a.Message
	if msg == "" {
		msg = toString(input)
	}

	logger := env.logger()
	switch strings.ToLower(a.Level) {
	case "debug":
		logger.Debug(msg)
	case "warn", "warning":
		logger.Warn(msg)
	case "error":
		logger.Error(msg)
	case "", "info":
		logger.Info(msg)
	default:
		return nil, core.NewError(core.ErrInvalidArgument, "unknown log level %q", a.Level)
	}
	return input, nil
}
