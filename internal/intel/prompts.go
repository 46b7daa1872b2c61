package intel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/structon/pkg/core"
)

// CreateSystem instructs the model to emit a single unit document.
const CreateSystem = `You translate a goal into a single executable unit document.

A unit is a JSON object with these fields:
  identifier        unique string id
  kind              "atomic" or "composite"
  intent            one sentence describing the goal
  stages            ordered subset of ["perceive", "act", "reflect"]
  importance        number in [0, 1]
  nodes             list of operation nodes
  edges             optional list of {"from": id, "to": id} pairs

Each node is a JSON object:
  id                unique string id within the unit
  stage             one of the declared stages
  role              "input", "process", "output", or "invoke"
  operation         operation name (omit for invoke nodes)
  input             literal value, "$name" reference, or list of either
  args              optional static arguments object
  output            optional "$name" binding for the result

Nodes in the same stage run in dependency order: a node reading "$x"
runs after the node writing "$x". Respond with exactly one JSON object
and no commentary.`

// EvolveSystem instructs the model to revise an existing unit.
const EvolveSystem = `You revise an existing unit document so it better serves its intent.

Keep the identifier and kind unchanged. Preserve working nodes where
possible and adjust the ones implicated by the feedback. Respond with
exactly one JSON object and no commentary.`

// BuildCreatePrompt renders the user prompt for generating a unit from
// an intent. The operation names bound the vocabulary the model may
// use; parent, when set, scopes the new unit under an existing one;
// hints carry activated experience summaries worth considering.
func BuildCreatePrompt(intent string, operations []string, parent *core.Unit, hints []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", intent)

	b.WriteString("Available operations:\n")
	for _, name := range operations {
		fmt.Fprintf(&b, "  - %s\n", name)
	}

	if parent != nil {
		fmt.Fprintf(&b, "\nThe unit is a child of %q (%s).", parent.ID, parent.Intent)
		fmt.Fprintf(&b, "\nSet parent_identifier to %q.\n", parent.ID)
	}

	if len(hints) > 0 {
		b.WriteString("\nLessons from earlier work:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "  - %s\n", h)
		}
	}

	b.WriteString("\nProduce the unit document now.")
	return b.String()
}

// BuildEvolvePrompt renders the user prompt for revising a unit based
// on execution feedback.
func BuildEvolvePrompt(u *core.Unit, feedback []string) (string, error) {
	doc, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrInvalidArgument, err, "failed to encode unit %s", u.ID)
	}

	var b strings.Builder
	b.WriteString("Current unit document:\n\n")
	b.Write(doc)
	b.WriteString("\n\nExecution feedback:\n")
	if len(feedback) == 0 {
		b.WriteString("  (none recorded)\n")
	}
	for _, f := range feedback {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	b.WriteString("\nProduce the revised unit document now.")
	return b.String(), nil
}
