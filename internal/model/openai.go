package model

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

const defaultMaxTokens = 2000

// OpenAIGenerator calls an OpenAI compatible chat completions endpoint.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAIGenerator creates a client for apiKey. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAIGenerator(apiKey, baseURL, modelName string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIGenerator{
		client:    openai.NewClient(opts...),
		model:     modelName,
		maxTokens: defaultMaxTokens,
	}
}

func (o *OpenAIGenerator) Name() string { return "openai:" + o.model }

func (o *OpenAIGenerator) Generate(ctx context.Context, prompt Prompt) (Completion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.F(o.model),
		Messages:    openai.F(messages),
		Temperature: openai.F(0.2),
		MaxTokens:   openai.F(o.maxTokens),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("OpenAIGenerator.Generate: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Completion{}, fmt.Errorf("OpenAIGenerator.Generate: %w", ErrEmptyCompletion)
	}

	return Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
