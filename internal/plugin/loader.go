// Package plugin loads Starlark operation plugins at process start.
// Every *.star file in the plugin directory becomes a namespace named
// after the file, and each exported function (no leading underscore)
// registers as the operation "namespace.function". Functions receive
// the node's resolved input as their first positional argument and the
// node's static args as keyword arguments.
package plugin

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/structon/internal/atomic"
	bridge "github.com/leapstack-labs/structon/internal/starlark"
	"github.com/leapstack-labs/structon/pkg/core"
)

// Loader scans a directory for .star files and turns their exported
// functions into registry operations.
type Loader struct {
	dir    string
	caller *bridge.Caller
	logger *slog.Logger
}

// NewLoader creates a loader for the given plugin directory.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{dir: dir, caller: bridge.NewCaller(0), logger: logger}
}

// Module is one loaded plugin file.
type Module struct {
	// Namespace is the filename without the .star suffix.
	Namespace string
	// Path is the file the module was loaded from.
	Path string
	// Functions lists the exported functions in declaration order.
	Functions []*Function
}

// Function is one exported plugin operation.
type Function struct {
	Name string
	// Params are the declared parameter names, defaults included.
	Params []string
	// Doc is the function's docstring, trimmed. May be empty.
	Doc string
	// Line is the definition line within the source file.
	Line int

	impl starlark.Callable
}

// Signature renders the function as "name(param, param=default)".
func (f *Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Params, ", ") + ")"
}

// Summary returns the first docstring line.
func (f *Function) Summary() string {
	first, _, _ := strings.Cut(f.Doc, "\n")
	return strings.TrimSpace(first)
}

// Load scans the plugin directory and loads every .star file. A missing
// directory yields no modules; any broken file fails the whole load so
// a typo cannot silently drop operations.
func (l *Loader) Load() ([]*Module, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.WrapError(core.ErrInvalidArgument, err, "cannot access plugin directory %s", l.dir)
	}
	if !info.IsDir() {
		return nil, core.NewError(core.ErrInvalidArgument, "plugin path %s is not a directory", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "cannot scan plugin directory %s", l.dir)
	}

	var modules []*Module
	for _, file := range files {
		m, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// Install loads the directory and registers every exported function.
// Plugin operations are never marked pure: their bodies are opaque, so
// the interpreter must not memoize them.
func (l *Loader) Install(reg *atomic.Registry) ([]*Module, error) {
	modules, err := l.Load()
	if err != nil {
		return nil, err
	}

	for _, m := range modules {
		for _, fn := range m.Functions {
			op := &atomic.Op{
				Name:     m.Namespace + "." + fn.Name,
				Category: atomic.Category(m.Namespace),
				Summary:  fn.Summary(),
				Fn:       l.opFunc(m.Namespace, fn),
			}
			if err := reg.Register(op); err != nil {
				return nil, core.WrapError(core.KindOf(err), err, "plugin %s", filepath.Base(m.Path))
			}
		}
		l.logger.Debug("plugin loaded",
			slog.String("namespace", m.Namespace),
			slog.Int("operations", len(m.Functions)))
	}
	return modules, nil
}

// loadFile statically parses one .star file for function metadata, then
// executes it and collects the exported callables.
func (l *Loader) loadFile(path string) (*Module, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured plugin directory
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "plugin %s", filepath.Base(path))
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")

	// Syntax check before execution so a broken file reports its
	// parse position instead of a half-executed module.
	parsed, err := syntax.Parse(path, content, 0) //nolint:staticcheck // SA1019: ParseOptions migration pending upstream
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "plugin %s", filepath.Base(path))
	}

	thread := &starlark.Thread{
		Name: "plugin:" + namespace,
		Print: func(_ *starlark.Thread, _ string) {
			// Top-level prints during load are discarded.
		},
	}
	globals, err := starlark.ExecFile(thread, path, content, nil) //nolint:staticcheck // SA1019: ExecFileOptions migration pending upstream
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidArgument, err, "plugin %s", filepath.Base(path))
	}

	m := &Module{Namespace: namespace, Path: path}
	for _, stmt := range parsed.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		if strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		impl, ok := globals[def.Name.Name].(starlark.Callable)
		if !ok {
			// Shadowed by a later top-level assignment; nothing to call.
			continue
		}
		m.Functions = append(m.Functions, &Function{
			Name:   def.Name.Name,
			Params: paramStrings(def.Params),
			Doc:    docstring(def.Body),
			Line:   int(def.Name.NamePos.Line),
			impl:   impl,
		})
	}
	return m, nil
}

// opFunc bridges one plugin function into the operation signature.
func (l *Loader) opFunc(namespace string, fn *Function) atomic.Func {
	return func(_ context.Context, input any, args map[string]any, _ *atomic.Env) (any, error) {
		out, err := l.caller.Call(namespace, fn.Name, fn.impl, input, args)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidArgument, err, "plugin operation failed")
		}
		return out, nil
	}
}

// paramStrings renders def parameters, keeping default values and
// star prefixes.
func paramStrings(params []syntax.Expr) []string {
	var out []string
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			out = append(out, p.Name)
		case *syntax.BinaryExpr:
			if p.Op == syntax.EQ {
				if ident, ok := p.X.(*syntax.Ident); ok {
					out = append(out, ident.Name+"="+defaultString(p.Y))
				}
			}
		case *syntax.UnaryExpr:
			if ident, ok := p.X.(*syntax.Ident); ok {
				switch p.Op {
				case syntax.STAR:
					out = append(out, "*"+ident.Name)
				case syntax.STARSTAR:
					out = append(out, "**"+ident.Name)
				}
			}
		}
	}
	return out
}

// defaultString renders a parameter default for display.
func defaultString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + defaultString(e.X)
		}
		return defaultString(e.X)
	default:
		return "..."
	}
}

// docstring extracts a leading string literal from a function body.
func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	exprStmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := exprStmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, ok := lit.Value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
