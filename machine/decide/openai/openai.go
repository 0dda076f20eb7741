// Package openai provides a decision provider backed by OpenAI's chat
// completion API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/machina-run/machina/machine/decide"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Provider resolves transition decisions via OpenAI chat completions with
// JSON response mode. Safe for concurrent use after creation.
type Provider struct {
	client completer
	model  string
}

// New creates a Provider using the given API key and model. An empty model
// selects DefaultModel.
func New(apiKey, model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Provider{
		client: &sdkClient{client: &client, model: model},
		model:  model,
	}
}

// Decide implements decide.Provider.
func (p *Provider) Decide(ctx context.Context, req decide.Request) (decide.Response, error) {
	text, err := p.client.complete(ctx, decide.BuildPrompt(req))
	if err != nil {
		return decide.Response{}, fmt.Errorf("openai decision for node %s: %w", req.Node, err)
	}
	return decide.ParseResponse(text)
}

// Name returns "openai".
func (p *Provider) Name() string {
	return "openai"
}

type sdkClient struct {
	client *openai.Client
	model  string
}

func (c *sdkClient) complete(ctx context.Context, prompt string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	return completion.Choices[0].Message.Content, nil
}
