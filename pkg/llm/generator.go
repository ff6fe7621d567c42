package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"devteam/pkg/logx"
	"devteam/pkg/metrics"
)

// Default generation settings.
const (
	DefaultMaxTokens     = 1024
	DefaultPromptBudget  = 6000
	defaultTemperature   = 0.7
	verdictTemperature   = 0.2
	verdictSystemMessage = `You are reviewing a pull request as a member of a software team.
Respond with a single JSON object and nothing else:
{"approved": bool, "changesRequested": bool, "body": "review comment", "summary": "one line"}`
	codeSystemMessage = "You write complete, compilable source files. Respond with the file content only."
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// Generator wraps a Client with prompt budgeting, fallback handling and metrics.
type Generator struct {
	client    Client
	budget    *TokenBudget
	recorder  metrics.Recorder
	logger    *logx.Logger
	provider  string
	maxTokens int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithBudget trims prompts that exceed the budget before they are sent.
func WithBudget(b *TokenBudget) GeneratorOption {
	return func(g *Generator) { g.budget = b }
}

// WithRecorder reports generation latency and failures.
func WithRecorder(r metrics.Recorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

// WithMaxTokens sets the completion token cap.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithProvider sets the provider label used in metrics.
func WithProvider(name string) GeneratorOption {
	return func(g *Generator) { g.provider = name }
}

// NewGenerator creates a Generator over client.
func NewGenerator(client Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:    client,
		recorder:  metrics.Nop(),
		logger:    logx.NewLogger("generator"),
		provider:  "unknown",
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Budget returns the prompt budget, or nil.
func (g *Generator) Budget() *TokenBudget {
	return g.budget
}

func (g *Generator) complete(ctx context.Context, req CompletionRequest) (string, error) {
	if g.budget != nil {
		for i := range req.Messages {
			req.Messages[i].Content = g.budget.Truncate(req.Messages[i].Content, g.budget.Limit())
		}
	}

	start := time.Now()
	resp, err := g.client.Complete(ctx, req)
	tokens := 0
	if err == nil {
		tokens = g.budget.Count(resp.Content)
		if strings.TrimSpace(resp.Content) == "" {
			err = NewErrorWithCause(ErrorTypeEmptyResponse, ErrEmptyResponse, "no content returned")
		}
	}
	g.recorder.ObserveGeneration(string(req.Purpose), g.provider, time.Since(start), tokens, err)
	if err != nil {
		return "", Classify(err)
	}
	return resp.Content, nil
}

// GenerateVerdict asks for a structured review verdict. The returned verdict is always
// usable: on any failure it is FallbackVerdict and the error is a *GenerationError.
func (g *Generator) GenerateVerdict(ctx context.Context, prompt string) (Verdict, error) {
	req := NewUserRequest(PurposeVerdict, verdictSystemMessage, prompt, g.maxTokens, verdictTemperature)
	raw, err := g.complete(ctx, req)
	if err != nil {
		g.logger.Warn("Verdict generation failed, using fallback: %v", err)
		return FallbackVerdict(), &GenerationError{Purpose: PurposeVerdict, Err: err}
	}

	v, err := ParseVerdict(raw)
	if err != nil {
		g.logger.Warn("Malformed verdict, using fallback: %v", err)
	}
	return v, err
}

// GenerateNarration produces a short first-person chat message.
func (g *Generator) GenerateNarration(ctx context.Context, system, prompt string) (string, error) {
	req := NewUserRequest(PurposeNarration, system, prompt, g.maxTokens, defaultTemperature)
	text, err := g.complete(ctx, req)
	if err != nil {
		return "", &GenerationError{Purpose: PurposeNarration, Err: err}
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}

// GenerateCode produces the content of one source file.
func (g *Generator) GenerateCode(ctx context.Context, prompt string) (string, error) {
	req := NewUserRequest(PurposeCode, codeSystemMessage, prompt, g.maxTokens*4, verdictTemperature)
	text, err := g.complete(ctx, req)
	if err != nil {
		return "", &GenerationError{Purpose: PurposeCode, Err: err}
	}
	return stripFence(text), nil
}

// stripFence removes a surrounding markdown code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s) + "\n"
}
