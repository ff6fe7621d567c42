// Package main is the devteam binary: it loads a project task graph and lets the agent
// team work through it, review the results and chat about them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"devteam/internal/orch"
	"devteam/pkg/config"
	"devteam/pkg/logx"
	"devteam/pkg/project"
)

// Version information, set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// EnvPassword unlocks the secrets file without a prompt.
const EnvPassword = "DEVTEAM_PASSWORD"

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		projectDir  = flag.String("config", ".", "Project directory holding .devteam/config.json")
		tasksFile   = flag.String("tasks", "", "Path to a project task graph (YAML)")
		demo        = flag.Bool("demo", false, "Run the built-in demo project on an in-memory repository host")
		projectID   = flag.String("project", "", "Override the project ID from the tasks file")
		sessionID   = flag.String("session", "", "Resume a journaled session")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("devteam %s (%s)\n", version, commit)
		os.Exit(0)
	}
	logx.SetDebug(*debug)

	os.Exit(run(options{
		projectDir: *projectDir,
		tasksFile:  *tasksFile,
		projectID:  *projectID,
		sessionID:  *sessionID,
		demo:       *demo,
	}))
}

type options struct {
	projectDir string
	tasksFile  string
	projectID  string
	sessionID  string
	demo       bool
}

// run contains the main logic and returns an exit code so defers run before os.Exit.
func run(o options) int {
	logger := logx.NewLogger("main")
	fmt.Println("⏳ Starting up...")

	cfg, err := config.Load(o.projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if o.demo {
		cfg.Forge.Provider = config.ForgeMemory
		cfg.LLM.Provider = config.ProviderOffline
	}

	password, err := resolvePassword(o.projectDir, os.Getenv, promptPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read password: %v\n", err)
		return 1
	}
	secrets := config.NewSecrets(nil)
	if password != "" {
		if secrets, err = config.LoadSecrets(o.projectDir, password); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to decrypt secrets: %v\n", err)
			return 1
		}
	}

	p, err := loadProject(o, cfg.Chat.DefaultRepository)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !o.demo {
		if _, err := orch.NewPreflight(cfg, secrets).Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}

	t, err := orch.Build(ctx, orch.Options{
		ProjectDir: o.projectDir,
		Config:     cfg,
		Secrets:    secrets,
		Password:   password,
		SessionID:  o.sessionID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to assemble team: %v\n", err)
		return 1
	}
	if o.demo && orch.SeedDemo(t.Host, cfg.Chat.DefaultRepository) {
		logger.Info("🎬 Demo PR #%d is open in %s; say \"review #%d\" in chat", orch.DemoPRNumber, cfg.Chat.DefaultRepository, orch.DemoPRNumber)
	}
	if err := t.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		cancel()
		_ = shutdown(t)
		return 1
	}
	if cfg.WebUI.Enabled {
		logger.Info("🌐 API listening on http://%s:%d", cfg.WebUI.Host, cfg.WebUI.Port)
	}

	if p.ID != "" {
		graph, err := t.LoadProject(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load project: %v\n", err)
			cancel()
			_ = shutdown(t)
			return 1
		}
		logger.Info("🚀 Project %s: %d tasks, %d ready (session %s)", p.ID, len(p.Tasks), len(graph.Ready()), t.SessionID())
	} else {
		logger.Info("🚀 No tasks loaded; the team is listening in chat (session %s)", t.SessionID())
	}

	<-ctx.Done()
	fmt.Println("\n🛑 Shutting down...")
	if err := shutdown(t); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
		return 1
	}
	return 0
}

func shutdown(t *orch.Team) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return t.Shutdown(ctx)
}

// loadProject picks the project to run: the tasks file, the demo project, or none.
func loadProject(o options, defaultRepo string) (project.Project, error) {
	var p project.Project
	switch {
	case o.tasksFile != "":
		var err error
		if p, err = project.LoadFile(o.tasksFile); err != nil {
			return project.Project{}, err
		}
	case o.demo:
		p = orch.DemoProject(defaultRepo)
	default:
		return project.Project{}, nil
	}
	if o.projectID != "" {
		p.ID = o.projectID
	}
	if p.Repository == "" {
		p.Repository = defaultRepo
	}
	return p, nil
}

// resolvePassword returns the secrets password from the environment, or prompts for it
// when a secrets file exists. No secrets file means no password.
func resolvePassword(projectDir string, getenv func(string) string, prompt func() (string, error)) (string, error) {
	if !config.SecretsFileExists(projectDir) {
		return "", nil
	}
	if pw := getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	return prompt()
}

var errNoTerminal = errors.New("secrets file is encrypted and stdin is not a terminal; set " + EnvPassword)

func promptPassword() (string, error) {
	if !term.IsTerminal(syscall.Stdin) {
		return "", errNoTerminal
	}
	fmt.Print("🔐 Password for secrets file: ")
	pw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer func() {
		for i := range pw {
			pw[i] = 0
		}
	}()
	return string(pw), nil
}
