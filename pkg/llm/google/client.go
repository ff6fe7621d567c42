// Package google implements llm.Client with the Gemini API.
package google

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"devteam/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Google GenAI client. The SDK client needs a context, so it is
// created on first use.
type Client struct {
	mu     sync.Mutex
	client *genai.Client
	apiKey string
	model  string
}

// New creates a client for model.
func New(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{apiKey: apiKey, model: model}
}

func (g *Client) Model() string {
	return g.model
}

func (g *Client) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.NewErrorWithCause(llm.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents := make([]*genai.Content, 0, len(in.Messages))
	for _, m := range in.Messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	temperature := in.Temperature
	//nolint:gosec // MaxTokens is small and validated by config
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if in.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: in.System}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llm.Classify(fmt.Errorf("Gemini API call failed: %w", err))
	}
	if result == nil {
		return llm.CompletionResponse{}, llm.NewError(llm.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	stop := ""
	if len(result.Candidates) > 0 {
		stop = string(result.Candidates[0].FinishReason)
	}
	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stop,
	}, nil
}
