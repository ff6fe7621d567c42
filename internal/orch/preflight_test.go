package orch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/config"
)

func serve(t *testing.T, path string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPreflightDefaultsPass(t *testing.T) {
	checks, err := NewPreflight(config.Default(), config.NewSecrets(nil)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.True(t, c.Passed, c.Name)
	}
}

func TestPreflightOllama(t *testing.T) {
	srv := serve(t, "/api/tags")
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.OllamaHost = srv.URL

	checks, err := NewPreflight(cfg, config.NewSecrets(nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ollama reachable at "+srv.URL, checks[0].Message)

	srv.Close()
	_, err = NewPreflight(cfg, config.NewSecrets(nil)).Run(context.Background())
	assert.ErrorIs(t, err, ErrPreflightFailed)
	assert.ErrorContains(t, err, "ollama not reachable")
}

func TestPreflightHostedModelNeedsKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.APIKeyName = "DEVTEAM_TEST_MISSING_KEY"

	checks, err := NewPreflight(cfg, config.NewSecrets(nil)).Run(context.Background())
	require.ErrorIs(t, err, ErrPreflightFailed)
	assert.False(t, checks[0].Passed)
	assert.Contains(t, checks[0].Message, "DEVTEAM_TEST_MISSING_KEY is missing")
	assert.True(t, checks[1].Passed)

	secrets := config.NewSecrets(map[string]string{"DEVTEAM_TEST_MISSING_KEY": "sk-test"})
	_, err = NewPreflight(cfg, secrets).Run(context.Background())
	assert.NoError(t, err)
}

func TestPreflightGitea(t *testing.T) {
	srv := serve(t, "/api/v1/version")
	cfg := config.Default()
	cfg.Forge.Provider = config.ForgeGitea
	cfg.Forge.BaseURL = srv.URL
	cfg.Forge.TokenName = "DEVTEAM_TEST_GITEA_TOKEN"

	_, err := NewPreflight(cfg, config.NewSecrets(nil)).Run(context.Background())
	assert.ErrorContains(t, err, "gitea token DEVTEAM_TEST_GITEA_TOKEN is missing")

	secrets := config.NewSecrets(map[string]string{"DEVTEAM_TEST_GITEA_TOKEN": "tok"})
	checks, err := NewPreflight(cfg, secrets).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gitea reachable at "+srv.URL, checks[1].Message)
}
