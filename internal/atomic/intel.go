package atomic

import (
	"context"
	"strings"

	"github.com/leapstack-labs/structon/internal/intel"
	"github.com/leapstack-labs/structon/pkg/core"
)

// opInfer submits a prompt to the configured model provider. The
// prompt argument frames the request; the resolved input, when
// present, is appended as the material to work on.
func opInfer(ctx context.Context, input any, args map[string]any, env *Env) (any, error) {
	provider, err := env.requireProvider()
	if err != nil {
		return nil, err
	}
	var a struct {
		Prompt      string  `json:"prompt"`
		System      string  `json:"system"`
		MaxTokens   int64   `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	prompt := a.Prompt
	if in := toString(input); in != "" {
		if prompt == "" {
			prompt = in
		} else {
			prompt = prompt + "\n\n" + in
		}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, core.NewError(core.ErrInvalidArgument, "infer requires a prompt argument or input")
	}

	text, err := provider.Submit(ctx, intel.Request{
		System:      a.System,
		Prompt:      prompt,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return text, nil
}

// opParse extracts structured JSON from raw model text.
func opParse(_ context.Context, input any, _ map[string]any, _ *Env) (any, error) {
	text, ok := input.(string)
	if !ok {
		return nil, core.NewError(core.ErrInvalidArgument, "parse expects text input, got %T", input)
	}
	return intel.ParseJSON(text)
}

// opValidate checks a value against the unit document rules. An
// invalid document is still a successful validation, reported as
// valid: false with the issues; only a non-document input fails the
// node.
func opValidate(_ context.Context, input any, _ map[string]any, _ *Env) (any, error) {
	switch input.(type) {
	case map[string]any, *core.Unit:
	default:
		return nil, core.NewError(core.ErrInvalidArgument, "validate expects a unit document, got %T", input)
	}
	if _, err := unitFromValue(input); err != nil {
		return map[string]any{"valid": false, "issues": []any{err.Error()}}, nil
	}
	return map[string]any{"valid": true, "issues": []any{}}, nil
}
