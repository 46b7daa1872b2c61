package intel

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/leapstack-labs/structon/pkg/core"
)

// New returns the provider registered under name. Model and apiKey are
// optional overrides; empty values keep the provider's defaults, and
// an empty name selects the mock.
func New(name, model, apiKey string) (Provider, error) {
	switch name {
	case "", "mock":
		return NewMock(), nil
	case "anthropic":
		return NewAnthropic(func(o *AnthropicOptions) {
			if model != "" {
				o.Model = anthropic.Model(model)
			}
			o.APIKey = apiKey
		}), nil
	case "openai":
		return NewOpenAI(func(o *OpenAIOptions) {
			if model != "" {
				o.Model = model
			}
			o.APIKey = apiKey
		}), nil
	default:
		return nil, core.NewError(core.ErrInvalidArgument, "unknown provider %q", name)
	}
}
