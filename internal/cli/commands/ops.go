package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/atomic"
	"github.com/leapstack-labs/structon/internal/cli/output"
	"github.com/leapstack-labs/structon/internal/plugin"
)

// opInfo is the JSON shape of one catalog entry.
type opInfo struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Summary   string `json:"summary"`
	Pure      bool   `json:"pure"`
	Plugin    bool   `json:"plugin"`
	Signature string `json:"signature,omitempty"`
}

// NewOpsCommand creates the ops command.
func NewOpsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops [operation]",
		Short: "List registered operations",
		Long: `List every registered operation grouped by category, including
Starlark plugin operations loaded from the plugins directory. With an
operation name, show its details instead.`,
		Example: `  # List all operations
  structon ops

  # Show one operation
  structon ops filter

  # Show a plugin operation with its signature
  structon ops mathx.scale

  # Machine-readable catalog
  structon ops --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(cmd, args)
		},
	}
	return cmd
}

func runOps(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	signatures := pluginSignatures(cc.Plugins)

	if len(args) == 1 {
		return showOp(cc, args[0], signatures)
	}
	return listOps(cc, signatures)
}

// pluginSignatures maps "namespace.function" to its declared signature.
func pluginSignatures(modules []*plugin.Module) map[string]string {
	out := make(map[string]string)
	for _, m := range modules {
		for _, fn := range m.Functions {
			out[m.Namespace+"."+fn.Name] = fn.Signature()
		}
	}
	return out
}

func opToInfo(op *atomic.Op, signatures map[string]string) opInfo {
	sig, isPlugin := signatures[op.Name]
	return opInfo{
		Name:      op.Name,
		Category:  string(op.Category),
		Summary:   op.Summary,
		Pure:      op.Pure,
		Plugin:    isPlugin,
		Signature: sig,
	}
}

func showOp(cc *CommandContext, name string, signatures map[string]string) error {
	op, ok := cc.Engine.Registry().Lookup(name)
	if !ok {
		return fmt.Errorf("operation %q is not registered (try 'structon ops')", name)
	}
	info := opToInfo(op, signatures)

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(info)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, info.Name))
		r.Println("")
		r.Println(output.FormatKeyValue("Category", info.Category))
		r.Println(output.FormatKeyValue("Summary", info.Summary))
		r.Println(output.FormatKeyValue("Pure", fmt.Sprintf("%t", info.Pure)))
		if info.Signature != "" {
			r.Println(output.FormatKeyValue("Signature", info.Signature))
		}
		return nil
	default:
		styles := r.Styles()
		r.Println("")
		r.Println(styles.Header1.Render(info.Name))
		r.Println("")
		r.Printf("  %s: %s\n", styles.Bold.Render("Category"), info.Category)
		r.Printf("  %s: %s\n", styles.Bold.Render("Summary"), info.Summary)
		r.Printf("  %s: %t\n", styles.Bold.Render("Pure"), info.Pure)
		if info.Signature != "" {
			r.Printf("  %s: %s\n", styles.Bold.Render("Signature"), info.Signature)
		}
		r.Println("")
		return nil
	}
}

func listOps(cc *CommandContext, signatures map[string]string) error {
	reg := cc.Engine.Registry()

	// Built-in categories first in canonical order, then plugin
	// namespaces alphabetically.
	categories := atomic.Categories()
	builtin := make(map[atomic.Category]bool, len(categories))
	for _, c := range categories {
		builtin[c] = true
	}
	var pluginCats []atomic.Category
	seen := make(map[atomic.Category]bool)
	for _, op := range reg.All() {
		if !builtin[op.Category] && !seen[op.Category] {
			seen[op.Category] = true
			pluginCats = append(pluginCats, op.Category)
		}
	}
	sort.Slice(pluginCats, func(i, j int) bool { return pluginCats[i] < pluginCats[j] })
	ordered := append(append([]atomic.Category{}, categories...), pluginCats...)

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		infos := make([]opInfo, 0, reg.Count())
		for _, cat := range ordered {
			for _, op := range reg.ByCategory(cat) {
				infos = append(infos, opToInfo(op, signatures))
			}
		}
		return r.JSON(infos)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Operations (%d)", reg.Count())))
		for _, cat := range ordered {
			ops := reg.ByCategory(cat)
			if len(ops) == 0 {
				continue
			}
			r.Println("")
			r.Println(output.FormatHeader(2, string(cat)))
			r.Println("")
			for _, op := range ops {
				line := fmt.Sprintf("- **%s** - %s", op.Name, op.Summary)
				if sig, ok := signatures[op.Name]; ok {
					line = fmt.Sprintf("- **%s** (`%s`) - %s", op.Name, sig, op.Summary)
				}
				r.Println(line)
			}
		}
		return nil
	default:
		styles := r.Styles()
		r.Println("")
		r.Println(styles.Header1.Render(fmt.Sprintf("Operations (%d)", reg.Count())))
		for _, cat := range ordered {
			ops := reg.ByCategory(cat)
			if len(ops) == 0 {
				continue
			}
			r.Println("")
			r.Println(styles.Header2.Render(string(cat)))
			for _, op := range ops {
				name := op.Name
				if sig, ok := signatures[op.Name]; ok {
					name = sig
				}
				marker := " "
				if op.Pure {
					marker = styles.Muted.Render("*")
				}
				r.Printf("  %s %s\n", marker, styles.Bold.Render(name))
				if op.Summary != "" {
					r.Println(styles.Muted.Render("      " + op.Summary))
				}
			}
		}
		r.Println("")
		r.Println(styles.Muted.Render("* pure operations are memoized within a run"))
		r.Println("")
		return nil
	}
}
