// Package orch assembles the team: it builds every component from config, wires the
// completion, review and merge hooks between them, and owns startup and shutdown.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"devteam/pkg/chat"
	"devteam/pkg/clock"
	"devteam/pkg/config"
	"devteam/pkg/forge"
	"devteam/pkg/forge/gitea"
	"devteam/pkg/forge/memforge"
	"devteam/pkg/llm"
	"devteam/pkg/llm/providers"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/narration"
	"devteam/pkg/persistence"
	"devteam/pkg/project"
	"devteam/pkg/review"
	"devteam/pkg/scheduler"
	"devteam/pkg/team"
	"devteam/pkg/webui"
	"devteam/pkg/work"
)

// Options controls how a Team is assembled. Zero values take config-driven defaults.
type Options struct {
	ProjectDir string
	Config     *config.Config
	Secrets    *config.Secrets

	// Password protects the API and encrypts secrets written through it.
	Password string

	// SessionID resumes a journaled session: chat history and finished tasks are restored.
	SessionID string

	Clock      clock.Clock
	Host       forge.Host
	Generator  *llm.Generator
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type taskRef struct {
	ProjectID string
	TaskID    string
}

// Team is the running system.
type Team struct {
	cfg        *config.Config
	sessionID  string
	projectDir string
	clock      clock.Clock
	logger     *logx.Logger

	Directory *team.Directory
	Projects  *project.Registry
	Host      forge.Host
	Generator *llm.Generator
	Recorder  metrics.Recorder
	Journal   *persistence.Worker
	Chat      *chat.Service
	Narrator  *narration.Narrator
	Store     *work.Store
	Executor  *work.Executor
	Contexts  *review.ContextStore
	Pipeline  *review.Pipeline
	Scheduler *scheduler.Scheduler
	Router    *chat.Router
	API       *webui.Server

	mu          sync.Mutex
	prTasks     map[string]taskRef
	unsubscribe func()
	apiStarted  bool
}

// Build creates every component and wires them together. ctx bounds the lifetime of
// the scheduler, the review runs and the chat router.
func Build(ctx context.Context, opts Options) (*Team, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	t := &Team{
		cfg:        cfg,
		sessionID:  opts.SessionID,
		projectDir: opts.ProjectDir,
		clock:      clk,
		logger:     logx.NewLogger("orch"),
		Directory:  team.DefaultDirectory(),
		Projects:   project.NewRegistry(),
		Contexts:   review.NewContextStore(),
		prTasks:    make(map[string]taskRef),
	}
	if t.sessionID == "" {
		t.sessionID = persistence.NewSessionID()
	}
	t.Directory.SetNow(clk.Now)
	t.Contexts.SetNow(clk.Now)

	gatherer := opts.Gatherer
	t.Recorder = metrics.Nop()
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			r := prometheus.NewRegistry()
			reg, gatherer = r, r
		}
		t.Recorder = metrics.NewPrometheusRecorder(reg, cfg.Metrics.Namespace)
	}

	host, err := newHost(cfg.Forge, opts)
	if err != nil {
		return nil, err
	}
	t.Host = host

	t.Generator = opts.Generator
	if t.Generator == nil {
		t.Generator, err = providers.NewGenerator(cfg.LLM, opts.Secrets, cfg.Review.PromptTokens, t.Recorder)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
	}

	var journal chan<- *persistence.Request
	if cfg.Persistence.Enabled {
		if t.Journal, err = t.openJournal(); err != nil {
			return nil, err
		}
		journal = t.Journal.Channel()
	}

	t.Chat = chat.NewService(cfg.Chat, chat.WithJournal(journal))
	if opts.SessionID != "" && t.Journal != nil {
		t.restoreChat()
	}

	t.Narrator = narration.NewNarrator(t.Directory, t.Generator, t.Chat,
		narration.WithChannel(cfg.Chat.DefaultChannel),
		narration.WithClock(clk),
		narration.WithPacing(cfg.Chat.MinPace(), cfg.Chat.MaxPace()),
	)

	t.Store = work.NewStore(clk)
	t.Store.SetListener(func(w work.AgentWork) { persistence.PersistWorkItem(workRecord(w), journal) })
	t.Contexts.SetListener(func(c review.Context) { persistReview(c, journal) })

	t.Pipeline = review.NewPipeline(host, t.Generator, t.Contexts,
		review.Config{
			StartStagger: cfg.Review.StartStagger(),
			MergeSettle:  cfg.Review.MergeSettle(),
			MergeMethod:  cfg.Review.MergeMethod,
			DeleteBranch: cfg.Review.DeleteBranch,
		},
		review.WithClock(clk),
		review.WithAnnouncer(t.Narrator),
		review.WithRecorder(t.Recorder),
		review.WithBudget(t.Generator.Budget()),
		review.WithOnMerged(t.onMerged),
		review.WithAgents(t.Directory),
	)

	t.Executor = work.NewExecutor(t.Directory, t.Projects, t.Store, host,
		work.WithGenerator(t.Generator),
		work.WithSink(t.Narrator),
		work.WithOnCompleted(t.onCompleted),
		work.WithBaseBranch(cfg.Forge.BaseBranch),
		work.WithDefaultRepository(cfg.Chat.DefaultRepository),
		work.WithClock(clk),
	)

	t.Scheduler = scheduler.New(t.Executor,
		scheduler.Config{MinDelay: cfg.Scheduler.MinDelay(), MaxDelay: cfg.Scheduler.MaxDelay()},
		scheduler.WithClock(clk),
		scheduler.WithBlocker(t.Store),
		scheduler.WithAgents(t.Directory),
		scheduler.WithRecorder(t.Recorder),
		scheduler.WithObserver(t.observe),
		scheduler.WithContext(ctx),
	)

	t.Router = chat.NewRouter(chat.NewGrammar(cfg.Chat.DefaultRepository), t.Pipeline, t.Contexts, t.Directory, t.Narrator,
		chat.WithRouterRecorder(t.Recorder))
	t.unsubscribe = t.Chat.Subscribe(t.Router.Subscriber(ctx))

	deps := webui.Deps{
		Agents:            t.Directory,
		Work:              t.Store,
		Queue:             t.Scheduler,
		Reviews:           t.Contexts,
		Starter:           t.Pipeline,
		Chat:              t.Chat,
		Projects:          t.Projects,
		Gatherer:          gatherer,
		Secrets:           opts.Secrets,
		ProjectDir:        opts.ProjectDir,
		Password:          opts.Password,
		DefaultRepository: cfg.Chat.DefaultRepository,
	}
	if cfg.Metrics.PrometheusURL != "" {
		qs, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL, cfg.Metrics.Namespace)
		if err != nil {
			t.logger.Warn("Team metrics unavailable: %v", err)
		} else {
			deps.Team = qs
		}
	}
	t.API = webui.NewServer(deps)

	t.logger.Info("🚀 Team assembled (session %s, forge %s, llm %s)", t.sessionID, host.Provider(), cfg.LLM.Provider)
	return t, nil
}

func newHost(cfg *config.ForgeConfig, opts Options) (forge.Host, error) {
	if opts.Host != nil {
		return opts.Host, nil
	}
	switch cfg.Provider {
	case config.ForgeMemory:
		return memforge.New(), nil
	case config.ForgeGitea:
		token, err := opts.Secrets.Get(cfg.TokenName)
		if err != nil {
			return nil, fmt.Errorf("gitea token: %w", err)
		}
		return gitea.NewClient(cfg.BaseURL, token, cfg.Owner), nil
	default:
		return nil, fmt.Errorf("unknown forge provider %q", cfg.Provider)
	}
}

func (t *Team) openJournal() (*persistence.Worker, error) {
	path := t.cfg.Persistence.DBPath
	if !filepath.IsAbs(path) && path != ":memory:" {
		path = filepath.Join(t.projectDir, path)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	cfgJSON, err := json.Marshal(t.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	w, err := persistence.Open(path, t.sessionID, string(cfgJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return w, nil
}

func (t *Team) restoreChat() {
	msgs, err := t.Journal.Ops().ListChatMessages("", chat.DefaultHistorySize)
	if err != nil {
		t.logger.Warn("Could not restore chat history: %v", err)
		return
	}
	restored := make([]persistence.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		restored = append(restored, *m)
	}
	t.Chat.Restore(restored)
	t.logger.Info("Restored %d chat messages from session %s", len(restored), t.sessionID)
}

// SessionID returns the journal session.
func (t *Team) SessionID() string {
	return t.sessionID
}

// Config returns the effective configuration.
func (t *Team) Config() *config.Config {
	return t.cfg
}

// LoadProject registers p and queues every task that is ready. When resuming a
// session, tasks journaled as done stay done.
func (t *Team) LoadProject(p project.Project) (*project.Graph, error) {
	graph, err := t.Projects.Register(p)
	if err != nil {
		return nil, err
	}
	if t.Journal != nil {
		t.restoreTasks(p.ID, graph)
	}
	for _, task := range graph.Tasks() {
		t.persistTask(p.ID, task)
	}

	queued := t.Scheduler.EnqueueReady(graph, p.ID)
	t.logger.Info("Loaded project %s: %d tasks, %d queued", p.ID, len(graph.Tasks()), len(queued))
	return graph, nil
}

func (t *Team) restoreTasks(projectID string, graph *project.Graph) {
	recs, err := t.Journal.Ops().ListTaskStatuses(projectID)
	if err != nil {
		t.logger.Warn("Could not restore task statuses for %s: %v", projectID, err)
		return
	}
	for _, rec := range recs {
		if project.Status(rec.Status) != project.StatusDone {
			continue
		}
		if err := graph.SetStatus(rec.TaskID, project.StatusDone); err != nil {
			t.logger.Debug("Skipping journaled task %s: %v", rec.TaskID, err)
		}
	}
}

func (t *Team) persistTask(projectID string, task project.Task) {
	if t.Journal == nil {
		return
	}
	persistence.PersistTaskStatus(&persistence.TaskRecord{
		UpdatedAt: t.clock.Now(),
		ProjectID: projectID,
		TaskID:    task.ID,
		Status:    string(task.Status),
		Assignee:  task.Assignee,
	}, t.Journal.Channel())
}

func prKey(repo string, pr int) string {
	return fmt.Sprintf("%s#%d", repo, pr)
}

// onCompleted sends a freshly opened PR to the reviewers the policy picks.
func (t *Team) onCompleted(ctx context.Context, res work.Result) {
	author, err := t.Directory.Get(res.AgentID)
	if err != nil {
		t.logger.Error("Completed work by unknown agent %s: %v", res.AgentID, err)
		return
	}
	task, err := t.Projects.Task(res.ProjectID, res.TaskID)
	if err != nil {
		t.logger.Error("Completed unknown task %s/%s: %v", res.ProjectID, res.TaskID, err)
		return
	}

	t.mu.Lock()
	t.prTasks[prKey(res.Repository, res.PRNumber)] = taskRef{ProjectID: res.ProjectID, TaskID: res.TaskID}
	t.mu.Unlock()
	t.persistTask(res.ProjectID, task)

	reviewers := review.SelectReviewers(author, task, t.Directory)
	req := review.Request{
		Repository: res.Repository,
		PRNumber:   res.PRNumber,
		Channel:    t.Chat.DefaultChannel(),
		Requester:  author.ID,
		Author:     author,
		ProjectID:  res.ProjectID,
		TaskID:     res.TaskID,
		Title:      task.Title,
	}
	started, err := t.Pipeline.Start(ctx, req, reviewers)
	if err != nil {
		t.logger.Warn("PR #%d for %s stays in review: %v", res.PRNumber, task.ID, err)
		return
	}
	t.logger.Info("🔍 Review %s of PR #%d by %d reviewer(s)", started.ID, res.PRNumber, len(reviewers))
}

// onMerged marks the PR's task done and queues whatever that unblocked.
func (t *Team) onMerged(_ context.Context, req review.Request) {
	t.mu.Lock()
	ref, ok := t.prTasks[prKey(req.Repository, req.PRNumber)]
	t.mu.Unlock()
	if !ok {
		if req.TaskID == "" {
			t.logger.Debug("Merged %s#%d is not tied to a task", req.Repository, req.PRNumber)
			return
		}
		ref = taskRef{ProjectID: req.ProjectID, TaskID: req.TaskID}
	}

	graph, err := t.Projects.Graph(ref.ProjectID)
	if err != nil {
		t.logger.Error("Merged PR for unknown project %s: %v", ref.ProjectID, err)
		return
	}
	if err := graph.SetStatus(ref.TaskID, project.StatusDone); err != nil {
		t.logger.Error("Could not mark %s done: %v", ref.TaskID, err)
		return
	}
	if task, err := graph.Task(ref.TaskID); err == nil {
		t.persistTask(ref.ProjectID, task)
	}

	queued := t.Scheduler.EnqueueReady(graph, ref.ProjectID)
	t.logger.Info("🔀 %s done after merge of %s#%d; %d task(s) unblocked", ref.TaskID, req.Repository, req.PRNumber, len(queued))
}

func (t *Team) observe(e scheduler.Event) {
	switch e.Type {
	case scheduler.EventStarted:
		t.logger.Debug("Started %s for %s", e.Item.TaskID, e.Item.AgentID)
	case scheduler.EventFinished:
		t.logger.Debug("Finished %s for %s in %s", e.Item.TaskID, e.Item.AgentID, e.Duration)
	case scheduler.EventFailed:
		t.logger.Warn("Work item %s for %s failed: %v", e.Item.TaskID, e.Item.AgentID, e.Err)
	case scheduler.EventIdle:
		t.logger.Debug("Work queue idle")
	}
}

// Start launches the narration loop and, when enabled, the API server.
func (t *Team) Start(ctx context.Context) error {
	t.Narrator.Start(ctx)
	if t.cfg.WebUI.Enabled {
		if err := t.API.StartServer(ctx, t.cfg.WebUI.Host, t.cfg.WebUI.Port); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		t.apiStarted = true
	}
	return nil
}

// Shutdown waits for in-flight work, reviews and chat commands, stops narration and
// flushes the journal. Cancel the Build context first to stop taking new work.
func (t *Team) Shutdown(ctx context.Context) error {
	t.logger.Info("Shutting down team")
	if t.unsubscribe != nil {
		t.unsubscribe()
	}

	var errs []error
	if t.apiStarted {
		if err := t.API.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server: %w", err))
		}
	}
	if err := t.Router.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("chat router: %w", err))
	}
	if err := t.Scheduler.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := t.Pipeline.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("review pipeline: %w", err))
	}
	// A merge during the pipeline wait can queue more work.
	if err := t.Scheduler.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	t.Narrator.Stop()

	if t.Journal != nil {
		if err := t.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
