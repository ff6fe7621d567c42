// Package providers builds the configured llm.Generator.
package providers

import (
	"fmt"
	"net/http"
	"time"

	"devteam/pkg/config"
	"devteam/pkg/llm"
	"devteam/pkg/llm/anthropic"
	"devteam/pkg/llm/google"
	"devteam/pkg/llm/ollama"
	"devteam/pkg/llm/openai"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
)

// DefaultOllamaModel is used when the ollama provider has no model configured.
const DefaultOllamaModel = "llama3.1"

// NewClient returns the llm.Client selected by cfg. Missing API keys are an error
// for hosted providers.
func NewClient(cfg *config.LLMConfig, secrets *config.Secrets) (llm.Client, error) {
	apiKey := func() (string, error) {
		key, err := secrets.Get(cfg.APIKeyName)
		if err != nil {
			return "", fmt.Errorf("llm provider %s: %w", cfg.Provider, err)
		}
		return key, nil
	}

	switch cfg.Provider {
	case config.ProviderOffline, "":
		return llm.NewOffline(), nil
	case config.ProviderAnthropic:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		return anthropic.New(key, cfg.Model), nil
	case config.ProviderOpenAI:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		return openai.New(key, cfg.Model), nil
	case config.ProviderGoogle:
		key, err := apiKey()
		if err != nil {
			return nil, err
		}
		return google.New(key, cfg.Model), nil
	case config.ProviderOllama:
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		return ollama.New(cfg.OllamaHost, model, &http.Client{Timeout: 5 * time.Minute}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewGenerator builds a Generator over the configured client with a prompt budget
// of promptTokens.
func NewGenerator(cfg *config.LLMConfig, secrets *config.Secrets, promptTokens int, recorder metrics.Recorder) (*llm.Generator, error) {
	client, err := NewClient(cfg, secrets)
	if err != nil {
		return nil, err
	}
	if promptTokens <= 0 {
		promptTokens = llm.DefaultPromptBudget
	}
	budget, err := llm.NewTokenBudget(promptTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create token budget: %w", err)
	}
	logx.NewLogger("llm").Info("Using %s provider (model %s)", cfg.Provider, client.Model())
	return llm.NewGenerator(client,
		llm.WithBudget(budget),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithProvider(cfg.Provider),
		llm.WithRecorder(recorder),
	), nil
}
