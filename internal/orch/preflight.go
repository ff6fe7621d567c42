package orch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"devteam/pkg/config"
	"devteam/pkg/logx"
)

// Check is the outcome of one preflight probe.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// ErrPreflightFailed is returned when any check fails.
var ErrPreflightFailed = errors.New("preflight failed")

// Preflight makes sure the configured external services are usable before the team
// starts: API keys for hosted models, a reachable Ollama server, a reachable Gitea.
type Preflight struct {
	cfg     *config.Config
	secrets *config.Secrets
	client  *http.Client
	logger  *logx.Logger
}

// NewPreflight creates a preflight runner.
func NewPreflight(cfg *config.Config, secrets *config.Secrets) *Preflight {
	return &Preflight{
		cfg:     cfg,
		secrets: secrets,
		client:  &http.Client{Timeout: 2 * time.Second},
		logger:  logx.NewLogger("preflight"),
	}
}

// Run executes every applicable check. The error wraps ErrPreflightFailed and lists
// the failed checks.
func (p *Preflight) Run(ctx context.Context) ([]Check, error) {
	p.logger.Info("🔍 Running preflight checks")
	var checks []Check
	checks = append(checks, p.checkLLM(ctx))
	checks = append(checks, p.checkForge(ctx))

	var failed []string
	for _, c := range checks {
		if c.Passed {
			p.logger.Info("✅ %s: %s", c.Name, c.Message)
			continue
		}
		p.logger.Error("❌ %s: %s", c.Name, c.Message)
		failed = append(failed, c.Name+": "+c.Message)
	}
	if len(failed) > 0 {
		return checks, fmt.Errorf("%w: %s", ErrPreflightFailed, strings.Join(failed, "; "))
	}
	return checks, nil
}

func (p *Preflight) checkLLM(ctx context.Context) Check {
	l := p.cfg.LLM
	c := Check{Name: "llm"}
	switch l.Provider {
	case config.ProviderOffline, "":
		c.Passed, c.Message = true, "offline generator, no model needed"
	case config.ProviderOllama:
		host := l.OllamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		if p.reachable(ctx, strings.TrimRight(host, "/")+"/api/tags") {
			c.Passed, c.Message = true, "ollama reachable at "+host
		} else {
			c.Message = "ollama not reachable at " + host + " (is `ollama serve` running?)"
		}
	default:
		if _, err := p.secrets.Get(l.APIKeyName); err != nil {
			c.Message = fmt.Sprintf("%s API key %s is missing: set it in the secrets file or the environment", l.Provider, l.APIKeyName)
		} else {
			c.Passed, c.Message = true, fmt.Sprintf("%s API key present", l.Provider)
		}
	}
	return c
}

func (p *Preflight) checkForge(ctx context.Context) Check {
	f := p.cfg.Forge
	c := Check{Name: "forge"}
	switch f.Provider {
	case config.ForgeMemory:
		c.Passed, c.Message = true, "in-memory repository host"
	case config.ForgeGitea:
		if _, err := p.secrets.Get(f.TokenName); err != nil {
			c.Message = "gitea token " + f.TokenName + " is missing"
			return c
		}
		if p.reachable(ctx, strings.TrimRight(f.BaseURL, "/")+"/api/v1/version") {
			c.Passed, c.Message = true, "gitea reachable at "+f.BaseURL
		} else {
			c.Message = "gitea not reachable at " + f.BaseURL
		}
	default:
		c.Message = fmt.Sprintf("unknown provider %q", f.Provider)
	}
	return c
}

// reachable reports whether a GET of url answers 200.
func (p *Preflight) reachable(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
