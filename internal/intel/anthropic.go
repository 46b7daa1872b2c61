package intel

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/leapstack-labs/structon/pkg/core"
)

// AnthropicOptions configures the Anthropic provider.
type AnthropicOptions struct {
	Model  anthropic.Model
	APIKey string
}

// AnthropicProvider submits prompts to the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropic creates an Anthropic provider. Without an explicit API
// key the client reads ANTHROPIC_API_KEY from the environment.
func NewAnthropic(optFns ...func(o *AnthropicOptions)) *AnthropicProvider {
	opts := AnthropicOptions{
		Model: anthropic.ModelClaude3_5Sonnet20241022,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicProvider{client: &client, opts: opts}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string {
	return "anthropic/" + string(p.opts.Model)
}

// Submit implements Provider. Text blocks of the response are joined
// in order; tool-use blocks are ignored.
func (p *AnthropicProvider) Submit(ctx context.Context, req Request) (string, error) {
	req = req.withDefaults()

	params := anthropic.MessageNewParams{
		Model: p.opts.Model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", core.WrapError(core.ErrExternalService, err, "anthropic api error")
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return b.String(), nil
}
