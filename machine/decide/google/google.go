// Package google provides a decision provider backed by Google's Gemini
// API.
package google

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/machina-run/machina/machine/decide"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// Provider resolves transition decisions via Gemini with JSON output mode.
// Call Close when done to release the underlying client.
type Provider struct {
	client completer
	closer func() error
	model  string
}

// New creates a Provider. An empty apiKey falls back to the GOOGLE_API_KEY
// environment variable; an empty model selects DefaultModel.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("google api key not provided and GOOGLE_API_KEY not set")
		}
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &Provider{
		client: &sdkClient{client: client, model: model},
		closer: client.Close,
		model:  model,
	}, nil
}

// Decide implements decide.Provider.
func (p *Provider) Decide(ctx context.Context, req decide.Request) (decide.Response, error) {
	text, err := p.client.complete(ctx, decide.BuildPrompt(req))
	if err != nil {
		return decide.Response{}, fmt.Errorf("google decision for node %s: %w", req.Node, err)
	}
	return decide.ParseResponse(text)
}

// Name returns "google".
func (p *Provider) Name() string {
	return "google"
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.closer != nil {
		return p.closer()
	}
	return nil
}

type sdkClient struct {
	client *genai.Client
	model  string
}

func (c *sdkClient) complete(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}
