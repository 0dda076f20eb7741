// Package anthropic provides a decision provider backed by Anthropic's
// Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/machina-run/machina/machine/decide"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-sonnet-20241022"

// completer is the slice of the Anthropic client the provider needs;
// narrowed so tests can substitute a fake without network access.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Provider resolves transition decisions by asking Claude. It is safe for
// concurrent use after creation.
//
//	provider := anthropic.New(apiKey, "")
//	exec, err := machine.New(model, provider)
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
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{
		client: &sdkClient{client: &client, model: model},
		model:  model,
	}
}

// Decide implements decide.Provider.
func (p *Provider) Decide(ctx context.Context, req decide.Request) (decide.Response, error) {
	text, err := p.client.complete(ctx, decide.BuildPrompt(req))
	if err != nil {
		return decide.Response{}, fmt.Errorf("anthropic decision for node %s: %w", req.Node, err)
	}
	return decide.ParseResponse(text)
}

// Name returns "anthropic".
func (p *Provider) Name() string {
	return "anthropic"
}

type sdkClient struct {
	client *anthropic.Client
	model  string
}

func (c *sdkClient) complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
