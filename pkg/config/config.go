// Package config provides configuration loading, validation and secrets for devteam.
// Config lives in <projectDir>/.devteam/config.json; missing fields take defaults and
// DEVTEAM_* environment variables override the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"devteam/pkg/logx"
)

// Project config constants.
const (
	ProjectConfigDir      = ".devteam"
	ProjectConfigFilename = "config.json"
	SchemaVersion         = "1.0"
)

// Forge providers.
const (
	ForgeGitea  = "gitea"
	ForgeMemory = "memory"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderOffline   = "offline"
)

// Environment variable names for API keys and tokens.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvGiteaToken      = "GITEA_TOKEN"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// SchedulerConfig controls pacing of the global work queue.
type SchedulerConfig struct {
	MinDelayMs int `json:"min_delay_ms"` // Minimum pause between work items (default: 5000)
	MaxDelayMs int `json:"max_delay_ms"` // Maximum pause between work items (default: 15000)
}

// ReviewConfig controls the review pipeline.
type ReviewConfig struct {
	StartStaggerMs int    `json:"start_stagger_ms"` // Delay between reviewers' "starting review" messages (default: 3000)
	MergeSettleMs  int    `json:"merge_settle_ms"`  // Pause before merging an approved PR (default: 5000)
	MergeMethod    string `json:"merge_method"`     // squash, merge or rebase (default: squash)
	DeleteBranch   bool   `json:"delete_branch"`    // Delete the head branch after merge
	PromptTokens   int    `json:"prompt_tokens"`    // Token budget for review prompts (default: 6000)
}

// ChatConfig contains chat feed settings.
type ChatConfig struct {
	DefaultRepository string `json:"default_repository"` // Repository for "review #N" (default: "main-app")
	DefaultChannel    string `json:"default_channel"`    // Channel for narration (default: "general")
	MaxMessageChars   int    `json:"max_message_chars"`  // Maximum message size (default: 4096)
	ScannerEnabled    bool   `json:"scanner_enabled"`    // Redact secrets in posted messages (default: true)
	MinPaceMs         int    `json:"min_pace_ms"`        // Minimum delay for paced narration (default: 3000)
	MaxPaceMs         int    `json:"max_pace_ms"`        // Maximum delay for paced narration (default: 10000)
}

// ForgeConfig selects and configures the repository host.
type ForgeConfig struct {
	Provider   string `json:"provider"`    // gitea or memory (default: memory)
	BaseURL    string `json:"base_url"`    // Gitea base URL
	Owner      string `json:"owner"`       // Repository owner
	TokenName  string `json:"token_name"`  // Secret holding the API token (default: GITEA_TOKEN)
	BaseBranch string `json:"base_branch"` // Branch PRs target (default: main)
}

// LLMConfig selects the text generator.
type LLMConfig struct {
	Provider   string `json:"provider"`     // anthropic, openai, google, ollama or offline (default: offline)
	Model      string `json:"model"`        // Provider model name
	MaxTokens  int    `json:"max_tokens"`   // Completion cap (default: 1024)
	APIKeyName string `json:"api_key_name"` // Secret holding the API key (default per provider)
	OllamaHost string `json:"ollama_host"`  // Ollama server URL
}

// PersistenceConfig locates the sqlite journal.
type PersistenceConfig struct {
	Enabled bool   `json:"enabled"` // Whether the journal is written (default: true)
	DBPath  string `json:"db_path"` // Relative to the project dir (default: .devteam/devteam.db)
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`        // Register and serve /metrics (default: true)
	Namespace     string `json:"namespace"`      // Metric name prefix (default: devteam)
	PrometheusURL string `json:"prometheus_url"` // Server queried for dashboard totals (optional)
}

// WebUIConfig contains web API server settings.
type WebUIConfig struct {
	Enabled bool   `json:"enabled"` // Whether the API is served (default: true)
	Host    string `json:"host"`    // Host to bind to (default: "localhost")
	Port    int    `json:"port"`    // Port to listen on (default: 8080)
}

// Config is the full devteam configuration.
type Config struct {
	SchemaVersion string             `json:"schema_version"`
	Scheduler     *SchedulerConfig   `json:"scheduler"`
	Review        *ReviewConfig      `json:"review"`
	Chat          *ChatConfig        `json:"chat"`
	Forge         *ForgeConfig       `json:"forge"`
	LLM           *LLMConfig         `json:"llm"`
	Persistence   *PersistenceConfig `json:"persistence"`
	Metrics       *MetricsConfig     `json:"metrics"`
	WebUI         *WebUIConfig       `json:"webui"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Path returns <projectDir>/.devteam/config.json.
func Path(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)
}

// Load reads the project config, applies defaults and environment overrides and validates
// the result. A missing file yields the defaults.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(Path(projectDir))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON %s: %w", Path(projectDir), err)
		}
	case errors.Is(err, os.ErrNotExist):
		logx.NewLogger("config").Info("No config at %s, using defaults", Path(projectDir))
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", Path(projectDir), err)
	}

	applyDefaults(cfg)
	applyEnv(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to <projectDir>/.devteam/config.json.
func Save(cfg *Config, projectDir string) error {
	path := Path(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config holds no secrets
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = &SchedulerConfig{}
	}
	if cfg.Review == nil {
		cfg.Review = &ReviewConfig{}
	}
	if cfg.Chat == nil {
		cfg.Chat = &ChatConfig{ScannerEnabled: true}
	}
	if cfg.Forge == nil {
		cfg.Forge = &ForgeConfig{}
	}
	if cfg.LLM == nil {
		cfg.LLM = &LLMConfig{}
	}
	if cfg.Persistence == nil {
		cfg.Persistence = &PersistenceConfig{Enabled: true}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true}
	}
	if cfg.WebUI == nil {
		cfg.WebUI = &WebUIConfig{Enabled: true}
	}

	s := cfg.Scheduler
	if s.MinDelayMs == 0 && s.MaxDelayMs == 0 {
		s.MinDelayMs, s.MaxDelayMs = 5000, 15000
	}

	r := cfg.Review
	if r.StartStaggerMs == 0 {
		r.StartStaggerMs = 3000
	}
	if r.MergeSettleMs == 0 {
		r.MergeSettleMs = 5000
	}
	if r.MergeMethod == "" {
		r.MergeMethod = "squash"
	}
	if r.PromptTokens == 0 {
		r.PromptTokens = 6000
	}

	c := cfg.Chat
	if c.DefaultRepository == "" {
		c.DefaultRepository = "main-app"
	}
	if c.DefaultChannel == "" {
		c.DefaultChannel = "general"
	}
	if c.MaxMessageChars == 0 {
		c.MaxMessageChars = 4096
	}
	if c.MinPaceMs == 0 && c.MaxPaceMs == 0 {
		c.MinPaceMs, c.MaxPaceMs = 3000, 10000
	}

	f := cfg.Forge
	if f.Provider == "" {
		f.Provider = ForgeMemory
	}
	if f.TokenName == "" {
		f.TokenName = EnvGiteaToken
	}
	if f.BaseBranch == "" {
		f.BaseBranch = "main"
	}

	l := cfg.LLM
	if l.Provider == "" {
		l.Provider = ProviderOffline
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 1024
	}
	if l.APIKeyName == "" {
		l.APIKeyName = DefaultAPIKeyName(l.Provider)
	}

	if cfg.Persistence.DBPath == "" {
		cfg.Persistence.DBPath = filepath.Join(ProjectConfigDir, "devteam.db")
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "devteam"
	}
	if cfg.WebUI.Host == "" {
		cfg.WebUI.Host = "localhost"
	}
	if cfg.WebUI.Port == 0 {
		cfg.WebUI.Port = 8080
	}
}

// DefaultAPIKeyName returns the secret name holding the API key for provider.
func DefaultAPIKeyName(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderGoogle:
		return EnvGoogleAPIKey
	default:
		return ""
	}
}

// applyEnv applies DEVTEAM_* overrides read through getenv.
func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("DEVTEAM_LLM_PROVIDER", &cfg.LLM.Provider)
	str("DEVTEAM_LLM_MODEL", &cfg.LLM.Model)
	str("DEVTEAM_FORGE_PROVIDER", &cfg.Forge.Provider)
	str("DEVTEAM_FORGE_URL", &cfg.Forge.BaseURL)
	str("DEVTEAM_FORGE_OWNER", &cfg.Forge.Owner)
	str("DEVTEAM_DEFAULT_REPOSITORY", &cfg.Chat.DefaultRepository)
	str("DEVTEAM_DB_PATH", &cfg.Persistence.DBPath)
	str("DEVTEAM_PROMETHEUS_URL", &cfg.Metrics.PrometheusURL)
	num("DEVTEAM_WEBUI_PORT", &cfg.WebUI.Port)
	num("DEVTEAM_MIN_DELAY_MS", &cfg.Scheduler.MinDelayMs)
	num("DEVTEAM_MAX_DELAY_MS", &cfg.Scheduler.MaxDelayMs)
	str(EnvOllamaHost, &cfg.LLM.OllamaHost)

	if getenv("DEVTEAM_LLM_PROVIDER") != "" && getenv("DEVTEAM_LLM_API_KEY_NAME") == "" {
		cfg.LLM.APIKeyName = DefaultAPIKeyName(cfg.LLM.Provider)
	}
	str("DEVTEAM_LLM_API_KEY_NAME", &cfg.LLM.APIKeyName)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.Scheduler.MinDelayMs < 0 || c.Scheduler.MaxDelayMs < c.Scheduler.MinDelayMs {
		problems = append(problems, fmt.Sprintf("scheduler delay range [%d, %d] is invalid", c.Scheduler.MinDelayMs, c.Scheduler.MaxDelayMs))
	}
	if c.Chat.MinPaceMs < 0 || c.Chat.MaxPaceMs < c.Chat.MinPaceMs {
		problems = append(problems, fmt.Sprintf("chat pace range [%d, %d] is invalid", c.Chat.MinPaceMs, c.Chat.MaxPaceMs))
	}
	switch c.Review.MergeMethod {
	case "squash", "merge", "rebase":
	default:
		problems = append(problems, fmt.Sprintf("unknown merge method %q", c.Review.MergeMethod))
	}
	switch c.Forge.Provider {
	case ForgeMemory:
	case ForgeGitea:
		if c.Forge.BaseURL == "" || c.Forge.Owner == "" {
			problems = append(problems, "gitea forge requires base_url and owner")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown forge provider %q", c.Forge.Provider))
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama, ProviderOffline:
	default:
		problems = append(problems, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		problems = append(problems, "llm max_tokens must be positive")
	}
	if c.WebUI.Enabled && (c.WebUI.Port <= 0 || c.WebUI.Port > 65535) {
		problems = append(problems, fmt.Sprintf("webui port %d out of range", c.WebUI.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Duration helpers.

func (s *SchedulerConfig) MinDelay() time.Duration {
	return time.Duration(s.MinDelayMs) * time.Millisecond
}

func (s *SchedulerConfig) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelayMs) * time.Millisecond
}

func (r *ReviewConfig) StartStagger() time.Duration {
	return time.Duration(r.StartStaggerMs) * time.Millisecond
}

func (r *ReviewConfig) MergeSettle() time.Duration {
	return time.Duration(r.MergeSettleMs) * time.Millisecond
}

func (c *ChatConfig) MinPace() time.Duration {
	return time.Duration(c.MinPaceMs) * time.Millisecond
}

func (c *ChatConfig) MaxPace() time.Duration {
	return time.Duration(c.MaxPaceMs) * time.Millisecond
}
