// Package llm is the text generator used for review verdicts, narration and code.
// Provider clients live in subpackages; Generator adds prompt budgeting and the
// fallback rules for malformed output.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Purpose tags a request so offline clients can answer in the right shape.
type Purpose string

const (
	PurposeVerdict   Purpose = "verdict"
	PurposeNarration Purpose = "narration"
	PurposeCode      Purpose = "code"
)

// CompletionMessage is one chat turn.
type CompletionMessage struct {
	Role    string
	Content string
}

// CompletionRequest is a provider-neutral completion call.
type CompletionRequest struct {
	System      string
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	Purpose     Purpose
}

// CompletionResponse is the provider-neutral result.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	Model() string
}

// NewUserRequest builds a single-turn request.
func NewUserRequest(purpose Purpose, system, prompt string, maxTokens int, temperature float32) CompletionRequest {
	return CompletionRequest{
		System:      system,
		Messages:    []CompletionMessage{{Role: RoleUser, Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Purpose:     purpose,
	}
}

// FlattenMessages renders the request as one text block for providers that take a single input.
func FlattenMessages(in CompletionRequest) string {
	var out string
	if in.System != "" {
		out += "System: " + in.System + "\n\n"
	}
	for _, m := range in.Messages {
		switch m.Role {
		case RoleSystem:
			out += "System: " + m.Content + "\n\n"
		case RoleAssistant:
			out += "Assistant: " + m.Content + "\n\n"
		default:
			out += m.Content
		}
	}
	return out
}
