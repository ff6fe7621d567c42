package work

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"devteam/pkg/clock"
	"devteam/pkg/forge"
	"devteam/pkg/logx"
	"devteam/pkg/project"
	"devteam/pkg/team"
)

// Progress checkpoints for each step of Execute.
const (
	progressStart     = 0
	progressAnalysis  = 10
	progressDepsCheck = 20
	progressBranch    = 40
	progressFiles     = 55
	progressCommit    = 70
	progressTesting   = 80
	progressPR        = 90
	progressDone      = 100
)

// CodeGenerator produces file content for the implementation step.
type CodeGenerator interface {
	GenerateCode(ctx context.Context, prompt string) (string, error)
}

// Result describes the pull request produced by a completed work item.
type Result struct {
	AgentID    string
	TaskID     string
	ProjectID  string
	Repository string
	Branch     string
	PRNumber   int
}

// Executor runs a work item through planning, implementation, testing and PR creation.
type Executor struct {
	dir         *team.Directory
	projects    *project.Registry
	store       *Store
	host        forge.Host
	gen         CodeGenerator
	sink        Sink
	clock       clock.Clock
	onCompleted func(context.Context, Result)
	baseBranch  string
	defaultRepo string
	logger      *logx.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithGenerator sets the file content generator. Without one, files get a stub body.
func WithGenerator(g CodeGenerator) Option {
	return func(e *Executor) { e.gen = g }
}

// WithSink sets where transition updates are published.
func WithSink(s Sink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithOnCompleted registers the hook called after a PR is opened.
func WithOnCompleted(fn func(context.Context, Result)) Option {
	return func(e *Executor) { e.onCompleted = fn }
}

// WithBaseBranch sets the branch PRs target (default "main").
func WithBaseBranch(b string) Option {
	return func(e *Executor) {
		if b != "" {
			e.baseBranch = b
		}
	}
}

// WithDefaultRepository sets the repository used for projects without one.
func WithDefaultRepository(repo string) Option {
	return func(e *Executor) { e.defaultRepo = repo }
}

// WithClock sets the clock used for update timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// NewExecutor wires an executor over the shared stores and the repository host.
func NewExecutor(dir *team.Directory, projects *project.Registry, store *Store, host forge.Host, opts ...Option) *Executor {
	e := &Executor{
		dir:         dir,
		projects:    projects,
		store:       store,
		host:        host,
		sink:        Sinks(nil),
		clock:       clock.Real(),
		baseBranch:  "main",
		defaultRepo: "main-app",
		logger:      logx.NewLogger("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the executor's work store.
func (e *Executor) Store() *Store {
	return e.store
}

// run carries the state of one Execute call.
type run struct {
	e     *Executor
	item  Item
	agent team.Agent
	task  project.Task
	graph *project.Graph
	repo  string
}

func (r *run) step(status Status, activity string, progress int) error {
	w, err := r.e.store.Transition(r.item.AgentID, r.item.TaskID, status, activity, progress)
	if err != nil {
		return err
	}
	r.e.publish(r, w, "")
	return nil
}

func (e *Executor) publish(r *run, w AgentWork, blocker string) {
	e.sink.Publish(Update{
		AgentID:   w.AgentID,
		TaskID:    w.TaskID,
		ProjectID: w.ProjectID,
		TaskTitle: r.task.Title,
		Status:    w.Status,
		Activity:  w.CurrentActivity,
		Progress:  w.Progress,
		Blocker:   blocker,
		Timestamp: e.clock.Now(),
	})
}

// Execute runs item to completion. A missing agent or task returns a not-found error
// before any record is created. A failure after that sends the record back to
// planning with the error as a blocker and returns the error.
func (e *Executor) Execute(ctx context.Context, item Item) error {
	agent, err := e.dir.Get(item.AgentID)
	if err != nil {
		return fmt.Errorf("execute %s/%s: %w", item.AgentID, item.TaskID, err)
	}
	proj, graph, err := e.projects.Project(item.ProjectID)
	if err != nil {
		return fmt.Errorf("execute %s/%s: %w", item.AgentID, item.TaskID, err)
	}
	task, err := graph.Task(item.TaskID)
	if err != nil {
		return fmt.Errorf("execute %s/%s: %w", item.AgentID, item.TaskID, err)
	}

	r := &run{e: e, item: item, agent: agent, task: task, graph: graph, repo: proj.Repository}
	if r.repo == "" {
		r.repo = e.defaultRepo
	}

	deps := CheckDependencies(agent, task, graph)
	w := e.store.Begin(item, deps)
	ctx = logx.WithComponent(ctx, agent.ID)
	logx.DebugState(ctx, "work", "begin", string(w.Status), fmt.Sprintf("%s attempt %d", task.ID, w.Attempt))

	_ = e.dir.SetStatus(agent.ID, team.StatusWorking, task.Title)
	_ = e.dir.RecordEvent(agent.ID, "Started "+task.Title)
	if err := graph.SetStatus(task.ID, project.StatusInProgress); err != nil {
		e.logger.Warn("Could not mark %s in progress: %v", task.ID, err)
	}
	w, _ = e.store.Transition(item.AgentID, item.TaskID, StatusPlanning, "Picking up "+task.Title, progressStart)
	e.publish(r, w, "")

	result, err := e.execute(ctx, r)
	if err != nil {
		blocked, blockErr := e.store.Block(item.AgentID, item.TaskID, err.Error())
		if blockErr == nil {
			e.publish(r, blocked, err.Error())
		}
		_ = e.dir.SetStatus(agent.ID, team.StatusAvailable, "")
		_ = e.dir.RecordEvent(agent.ID, "Blocked on "+task.Title)
		e.logger.Error("Work on %s by %s failed: %v", task.ID, agent.ID, err)
		if blockErr != nil {
			return fmt.Errorf("execute %s/%s: %w", item.AgentID, item.TaskID, err)
		}
		return &BlockedError{AgentID: item.AgentID, TaskID: item.TaskID, Err: err}
	}

	_ = e.dir.SetStatus(agent.ID, team.StatusAvailable, "")
	_ = e.dir.RecordEvent(agent.ID, fmt.Sprintf("Opened PR #%d for %s", result.PRNumber, task.Title))
	e.logger.Info("%s completed %s with PR #%d in %s", agent.ID, task.ID, result.PRNumber, result.Repository)

	if e.onCompleted != nil {
		e.onCompleted(ctx, result)
	}
	return nil
}

func (e *Executor) execute(ctx context.Context, r *run) (Result, error) {
	if err := r.step(StatusPlanning, "Analyzing requirements for "+r.task.Title, progressAnalysis); err != nil {
		return Result{}, err
	}

	activity := "Checking dependencies"
	if w, ok := e.store.Get(r.item.AgentID, r.item.TaskID); ok && len(w.Dependencies) > 0 {
		activity = "Checking dependencies: " + strings.Join(w.Dependencies, ", ")
	}
	if err := r.step(StatusPlanning, activity, progressDepsCheck); err != nil {
		return Result{}, err
	}

	// Test tasks go straight to testing; everything else is implemented first.
	implStatus := StatusCoding
	if r.task.Type == project.TypeTest {
		implStatus = StatusTesting
	}

	branch, err := e.implement(ctx, r, implStatus)
	if err != nil {
		return Result{}, err
	}

	if err := r.step(StatusTesting, "Running checks", progressTesting); err != nil {
		return Result{}, err
	}

	if err := r.step(StatusReviewing, "Opening pull request", progressPR); err != nil {
		return Result{}, err
	}
	pr, err := e.host.CreatePR(ctx, r.repo, forge.PRCreateOptions{
		Title: r.task.Title,
		Body:  prBody(r),
		Head:  branch,
		Base:  e.baseBranch,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create pull request: %w", err)
	}
	if err := r.graph.SetStatus(r.task.ID, project.StatusReview); err != nil {
		e.logger.Warn("Could not mark %s in review: %v", r.task.ID, err)
	}

	if err := r.step(StatusCompleted, fmt.Sprintf("Pull request #%d ready for review", pr.Number), progressDone); err != nil {
		return Result{}, err
	}
	return Result{
		AgentID:    r.item.AgentID,
		TaskID:     r.task.ID,
		ProjectID:  r.item.ProjectID,
		Repository: r.repo,
		Branch:     branch,
		PRNumber:   pr.Number,
	}, nil
}

func (e *Executor) implement(ctx context.Context, r *run, status Status) (string, error) {
	w, _ := e.store.Get(r.item.AgentID, r.item.TaskID)
	branch := BranchName(r.agent.ID, r.task.ID, w.Attempt)

	if err := r.step(status, "Creating branch "+branch, progressBranch); err != nil {
		return "", err
	}
	if err := e.host.CreateBranch(ctx, r.repo, branch, e.baseBranch); err != nil {
		return "", fmt.Errorf("create branch: %w", err)
	}

	paths := PlanFiles(r.task)
	files := make([]File, len(paths))
	for i, p := range paths {
		files[i] = File{Path: p, Status: FilePlanned}
	}
	if _, err := e.store.SetFiles(r.item.AgentID, r.item.TaskID, files); err != nil {
		return "", err
	}

	if err := r.step(status, fmt.Sprintf("Writing %d files", len(paths)), progressFiles); err != nil {
		return "", err
	}
	contents := make([]forge.File, 0, len(paths))
	for i, p := range paths {
		contents = append(contents, forge.File{Path: p, Content: e.generate(ctx, r, p)})
		files[i].Status = FileWritten
	}
	if _, err := e.store.SetFiles(r.item.AgentID, r.item.TaskID, files); err != nil {
		return "", err
	}

	if err := r.step(status, "Committing changes", progressCommit); err != nil {
		return "", err
	}
	message := fmt.Sprintf("%s: %s", r.task.Type, r.task.Title)
	if err := e.host.CommitFiles(ctx, r.repo, branch, message, contents); err != nil {
		return "", fmt.Errorf("commit files: %w", err)
	}
	for i := range files {
		files[i].Status = FileCommitted
	}
	if _, err := e.store.SetFiles(r.item.AgentID, r.item.TaskID, files); err != nil {
		return "", err
	}
	return branch, nil
}

// generate returns file content, falling back to a stub when generation fails.
func (e *Executor) generate(ctx context.Context, r *run, path string) string {
	stub := stubContent(r.task, path)
	if e.gen == nil {
		return stub
	}
	prompt := fmt.Sprintf("%s\n\nFile: %s\nTask type: %s\nDescription: %s\nWritten by: %s (%s)",
		r.task.Title, path, r.task.Type, r.task.Description, r.agent.Name, r.agent.Role)
	content, err := e.gen.GenerateCode(ctx, prompt)
	if err != nil || strings.TrimSpace(content) == "" {
		e.logger.Warn("Code generation for %s failed, using stub: %v", path, err)
		return stub
	}
	return content
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a task title into a path-safe name.
func Slug(s string) string {
	s = strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if s == "" {
		return "task"
	}
	return s
}

// BranchName is the head branch for one attempt of a task.
func BranchName(agentID, taskID string, attempt int) string {
	if attempt <= 1 {
		return fmt.Sprintf("%s/%s", agentID, Slug(taskID))
	}
	return fmt.Sprintf("%s/%s-%d", agentID, Slug(taskID), attempt)
}

// PlanFiles lists the files a task will touch, by task type.
func PlanFiles(t project.Task) []string {
	slug := Slug(t.Title)
	switch t.Type {
	case project.TypeDesign:
		return []string{"design/" + slug + ".md"}
	case project.TypeTest:
		return []string{"tests/" + slug + "_test.go"}
	case project.TypeDocumentation:
		return []string{"docs/" + slug + ".md"}
	default:
		return []string{"src/" + slug + "/" + slug + ".go", "src/" + slug + "/" + slug + "_test.go"}
	}
}

func stubContent(t project.Task, path string) string {
	if strings.HasSuffix(path, ".md") {
		return fmt.Sprintf("# %s\n\n%s\n", t.Title, t.Description)
	}
	return fmt.Sprintf("// %s\n// %s\n", t.Title, t.Description)
}

func prBody(r *run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.task.Description)
	fmt.Fprintf(&b, "Task: %s (%s, %s priority)\n", r.task.ID, r.task.Type, r.task.Priority)
	fmt.Fprintf(&b, "Author: %s\n\nFiles:\n", r.agent.ID)
	for _, p := range PlanFiles(r.task) {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}
