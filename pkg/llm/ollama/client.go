// Package ollama implements llm.Client against a local Ollama server.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"devteam/pkg/llm"
)

// DefaultHost is the Ollama server used when none is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// New creates a client for model on hostURL.
func New(hostURL, model string, httpClient *http.Client) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		model:   model,
		hostURL: parsedURL.String(),
	}
}

func (o *Client) Model() string {
	return o.model
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, api.Message{Role: llm.RoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason(&response),
	}, nil
}

// stopReason converts Ollama's done_reason to the shared stop reason names.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llm.NewErrorWithCause(llm.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llm.NewErrorWithCause(llm.ErrorTypeBadPrompt, err, "Ollama model not found")
	default:
		return llm.NewErrorWithCause(llm.ErrorTypeUnknown, err, "Ollama API error")
	}
}
