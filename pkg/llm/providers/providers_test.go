package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/config"
	"devteam/pkg/llm"
	"devteam/pkg/llm/anthropic"
	"devteam/pkg/llm/ollama"
	"devteam/pkg/metrics"
)

func TestNewClientOffline(t *testing.T) {
	client, err := NewClient(&config.LLMConfig{Provider: config.ProviderOffline}, config.NewSecrets(nil))
	require.NoError(t, err)
	assert.Equal(t, "offline", client.Model())
}

func TestNewClientHostedNeedsKey(t *testing.T) {
	cfg := &config.LLMConfig{Provider: config.ProviderAnthropic, APIKeyName: "DEVTEAM_TEST_MISSING_KEY"}
	_, err := NewClient(cfg, config.NewSecrets(nil))
	assert.ErrorIs(t, err, config.ErrSecretNotFound)

	secrets := config.NewSecrets(map[string]string{"DEVTEAM_TEST_MISSING_KEY": "sk"})
	client, err := NewClient(cfg, secrets)
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Client{}, client)
}

func TestNewClientOllamaDefaultsModel(t *testing.T) {
	client, err := NewClient(&config.LLMConfig{Provider: config.ProviderOllama}, config.NewSecrets(nil))
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, client)
	assert.Equal(t, DefaultOllamaModel, client.Model())
}

func TestNewClientUnknown(t *testing.T) {
	_, err := NewClient(&config.LLMConfig{Provider: "hal"}, config.NewSecrets(nil))
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	gen, err := NewGenerator(&config.LLMConfig{Provider: config.ProviderOffline}, config.NewSecrets(nil), 0, metrics.Nop())
	require.NoError(t, err)
	require.NotNil(t, gen.Budget())
	assert.Equal(t, llm.DefaultPromptBudget, gen.Budget().Limit())
}
