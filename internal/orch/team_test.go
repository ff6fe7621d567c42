package orch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/chat"
	"devteam/pkg/clock"
	"devteam/pkg/config"
	"devteam/pkg/forge"
	"devteam/pkg/forge/memforge"
	"devteam/pkg/persistence"
	"devteam/pkg/project"
	"devteam/pkg/review"
	"devteam/pkg/work"
)

var epoch = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WebUI.Enabled = false
	cfg.Persistence.DBPath = filepath.Join(t.TempDir(), "devteam.db")
	return cfg
}

func buildTeam(t *testing.T, cfg *config.Config, host forge.Host) (*Team, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tm, err := Build(ctx, Options{Config: cfg, Clock: clock.NewAutoFake(epoch), Host: host})
	require.NoError(t, err)
	require.NoError(t, tm.Start(ctx))
	return tm, cancel
}

func shutdown(t *testing.T, tm *Team, cancel context.CancelFunc) {
	t.Helper()
	cancel()
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	require.NoError(t, tm.Shutdown(ctx))
}

func posted(history []chat.Message, text string) bool {
	for _, m := range history {
		if m.Text == text {
			return true
		}
	}
	return false
}

func TestBuildDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.WebUI.Enabled = false
	cfg.Persistence.Enabled = false

	tm, cancel := buildTeam(t, cfg, nil)
	defer shutdown(t, tm, cancel)

	assert.Equal(t, forge.ProviderMemory, tm.Host.Provider())
	assert.Nil(t, tm.Journal)
	assert.NotNil(t, tm.API)
	assert.NotNil(t, tm.Generator.Budget())
	assert.NotEmpty(t, tm.SessionID())
	assert.Len(t, tm.Directory.All(), 5)
}

func TestBuildRejectsUnknownForge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Forge.Provider = "svn"
	_, err := Build(context.Background(), Options{Config: cfg})
	assert.ErrorContains(t, err, `unknown forge provider "svn"`)
}

func TestBuildGiteaNeedsToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Forge.Provider = config.ForgeGitea
	cfg.Forge.TokenName = "DEVTEAM_TEST_MISSING_TOKEN"
	_, err := Build(context.Background(), Options{Config: cfg, Secrets: config.NewSecrets(nil)})
	assert.ErrorIs(t, err, config.ErrSecretNotFound)
}

func TestProjectRunsToCompletion(t *testing.T) {
	cfg := testConfig(t)
	host := memforge.New()
	tm, cancel := buildTeam(t, cfg, host)

	p := DemoProject("landing-web")
	graph, err := tm.LoadProject(p)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return graph.Counts()[project.StatusDone] == len(p.Tasks)
	}, 10*time.Second, 10*time.Millisecond, "every task should be merged and done")

	for pr := 1; pr <= len(p.Tasks); pr++ {
		got, err := host.PR("landing-web", pr)
		require.NoError(t, err)
		assert.True(t, got.Merged, "PR #%d merged", pr)

		rc, ok := tm.Contexts.Get(pr)
		require.True(t, ok)
		assert.Equal(t, review.StatusMerged, rc.Status)
	}
	// Feature by the developer at high priority: qa then manager.
	rc, _ := tm.Contexts.Get(3)
	assert.Contains(t, rc.Reviewers, "qa")
	assert.Contains(t, rc.Reviewers, "manager")

	for _, w := range tm.Store.List() {
		assert.Equal(t, work.StatusCompleted, w.Status, w.TaskID)
		assert.Equal(t, 100, w.Progress)
	}
	sessionID := tm.SessionID()
	shutdown(t, tm, cancel)

	db, err := persistence.InitializeDatabase(cfg.Persistence.DBPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ops := persistence.NewDatabaseOperations(db, sessionID)

	tasks, err := ops.ListTaskStatuses("landing")
	require.NoError(t, err)
	require.Len(t, tasks, len(p.Tasks))
	for _, rec := range tasks {
		assert.Equal(t, string(project.StatusDone), rec.Status, rec.TaskID)
	}

	verdicts, err := ops.ListVerdicts("landing-web", 3)
	require.NoError(t, err)
	assert.Len(t, verdicts, 2)

	msgs, err := ops.ListChatMessages("", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)
}

func TestResumeKeepsFinishedTasks(t *testing.T) {
	cfg := testConfig(t)
	tm, cancel := buildTeam(t, cfg, memforge.New())
	p := project.Project{ID: "docs", Repository: "docs-site", Tasks: []project.Task{
		{ID: "intro", Title: "Write intro", Type: project.TypeDocumentation, Priority: project.PriorityHigh, Assignee: "analyst", Status: project.StatusTodo},
	}}
	graph, err := tm.LoadProject(p)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return graph.Counts()[project.StatusDone] == 1
	}, 10*time.Second, 10*time.Millisecond)
	_, err = tm.Chat.Post(context.Background(), &chat.PostRequest{Author: "@pat", Text: "nice work"})
	require.NoError(t, err)
	sessionID := tm.SessionID()
	shutdown(t, tm, cancel)

	ctx, cancel2 := context.WithCancel(context.Background())
	resumed, err := Build(ctx, Options{Config: cfg, Clock: clock.NewAutoFake(epoch), SessionID: sessionID})
	require.NoError(t, err)
	require.NoError(t, resumed.Start(ctx))
	defer shutdown(t, resumed, cancel2)

	graph, err = resumed.LoadProject(p)
	require.NoError(t, err)
	task, err := graph.Task("intro")
	require.NoError(t, err)
	assert.Equal(t, project.StatusDone, task.Status)
	assert.Zero(t, resumed.Scheduler.Len())
	assert.False(t, resumed.Scheduler.IsProcessing())

	assert.True(t, posted(resumed.Chat.History("", 0), "nice work"))
}

func TestChatReviewRequestMerges(t *testing.T) {
	cfg := testConfig(t)
	host := memforge.New()
	tm, cancel := buildTeam(t, cfg, host)
	defer shutdown(t, tm, cancel)
	require.True(t, SeedDemo(host, cfg.Chat.DefaultRepository))

	_, err := tm.Chat.Post(context.Background(), &chat.PostRequest{Author: "@pat", Text: "Can you review #42 please?"})
	require.NoError(t, err)

	history := tm.Chat.History("", 0)
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, "On it! Sam and Alex will review PR #42 in main-app.", history[1].Text)

	require.Eventually(t, func() bool {
		rc, ok := tm.Contexts.Get(DemoPRNumber)
		return ok && rc.Status == review.StatusMerged
	}, 10*time.Second, 10*time.Millisecond)

	pr, err := host.PR(cfg.Chat.DefaultRepository, DemoPRNumber)
	require.NoError(t, err)
	assert.True(t, pr.Merged)

	_, err = tm.Chat.Post(context.Background(), &chat.PostRequest{Author: "@pat", Text: "status of PR #42"})
	require.NoError(t, err)
	assert.True(t, posted(tm.Chat.History("", 0), "Status of PR #42 in main-app: merged (developer: approved, qa: approved)"))
}

func TestCompletionWithoutReviewersStaysInReview(t *testing.T) {
	cfg := testConfig(t)
	cfg.Persistence.Enabled = false
	tm, cancel := buildTeam(t, cfg, memforge.New())
	defer shutdown(t, tm, cancel)

	// A developer's routine docs change matches no reviewer rule.
	graph, err := tm.LoadProject(project.Project{ID: "docs", Repository: "docs-site", Tasks: []project.Task{
		{ID: "changelog", Title: "Update changelog", Type: project.TypeDocumentation, Priority: project.PriorityLow, Assignee: "developer", Status: project.StatusTodo},
	}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := graph.Task("changelog")
		return err == nil && task.Status == project.StatusReview
	}, 10*time.Second, 10*time.Millisecond)

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, tm.Scheduler.Wait(ctx))
	assert.Empty(t, tm.Contexts.List())
	task, err := graph.Task("changelog")
	require.NoError(t, err)
	assert.Equal(t, project.StatusReview, task.Status)
}
