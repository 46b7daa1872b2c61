// Package intel talks to language-model providers. Providers are
// opaque text-in text-out services; everything structured - JSON
// extraction, unit synthesis - happens on our side of the wire.
package intel

import (
	"context"
)

// Request is a single completion request. The prompt is the user-side
// content; System carries standing instructions.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Provider submits prompts to a language model. Implementations wrap
// transport failures in core.ErrExternalService so callers can treat
// them as retry-eligible.
type Provider interface {
	// Submit sends the request and returns the model's text response.
	Submit(ctx context.Context, req Request) (string, error)
	// Name identifies the provider for logs and doctor output.
	Name() string
}

// Defaults applied when a request leaves fields unset.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
)

func (r Request) withDefaults() Request {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}
