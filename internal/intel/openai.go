package intel

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/leapstack-labs/structon/pkg/core"
)

// OpenAIOptions configures the OpenAI provider.
type OpenAIOptions struct {
	Model  string
	APIKey string
}

// OpenAIProvider submits prompts to the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	opts   OpenAIOptions
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI creates an OpenAI provider. Without an explicit API key
// the client reads OPENAI_API_KEY from the environment.
func NewOpenAI(optFns ...func(o *OpenAIOptions)) *OpenAIProvider {
	opts := OpenAIOptions{
		Model: openai.ChatModelGPT4oMini,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIProvider{client: &client, opts: opts}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return "openai/" + p.opts.Model
}

// Submit implements Provider.
func (p *OpenAIProvider) Submit(ctx context.Context, req Request) (string, error) {
	req = req.withDefaults()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	})
	if err != nil {
		return "", core.WrapError(core.ErrExternalService, err, "openai api error")
	}
	if len(resp.Choices) == 0 {
		return "", core.NewError(core.ErrExternalService, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
