package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/chat"
	"devteam/pkg/config"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/project"
	"devteam/pkg/review"
	"devteam/pkg/team"
	"devteam/pkg/work"
)

type startCall struct {
	Req       review.Request
	Reviewers []string
}

type mockStarter struct {
	mu        sync.Mutex
	calls     []startCall
	StartFunc func(ctx context.Context, req review.Request, reviewers []team.Agent) (review.Request, error)
}

func (m *mockStarter) Start(ctx context.Context, req review.Request, reviewers []team.Agent) (review.Request, error) {
	ids := make([]string, len(reviewers))
	for i, a := range reviewers {
		ids[i] = a.ID
	}
	m.mu.Lock()
	m.calls = append(m.calls, startCall{Req: req, Reviewers: ids})
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx, req, reviewers)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	req.ID = "rev-1"
	return req, nil
}

type fixture struct {
	dir      *team.Directory
	store    *work.Store
	contexts *review.ContextStore
	chat     *chat.Service
	starter  *mockStarter
	projects *project.Registry
	secrets  *config.Secrets
	registry *prometheus.Registry
	recorder *metrics.PrometheusRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      team.DefaultDirectory(),
		store:    work.NewStore(nil),
		contexts: review.NewContextStore(),
		chat:     chat.NewService(nil),
		starter:  &mockStarter{},
		projects: project.NewRegistry(),
		secrets:  config.NewSecrets(map[string]string{"GITEA_TOKEN": "tok"}),
		registry: prometheus.NewRegistry(),
	}
	f.recorder = metrics.NewPrometheusRecorder(f.registry, "devteam")
	return f
}

func (f *fixture) server(password string) http.Handler {
	return NewServer(Deps{
		Agents:   f.dir,
		Work:     f.store,
		Reviews:  f.contexts,
		Starter:  f.starter,
		Chat:     f.chat,
		Projects: f.projects,
		Gatherer: f.registry,
		Secrets:  f.secrets,
		Password: password,
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func TestHandleAgents(t *testing.T) {
	h := newFixture(t).server("")

	w := do(t, h, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)

	agents := decode[[]team.Agent](t, w)
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	assert.Equal(t, []string{"analyst", "designer", "developer", "manager", "qa"}, ids)

	w = do(t, h, http.MethodPost, "/api/agents", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleWork(t *testing.T) {
	f := newFixture(t)
	f.store.Begin(work.Item{AgentID: "developer", TaskID: "api", ProjectID: "shop"}, nil)
	f.store.Begin(work.Item{AgentID: "designer", TaskID: "mockups", ProjectID: "shop"}, nil)
	h := f.server("")

	resp := decode[WorkResponse](t, do(t, h, http.MethodGet, "/api/work", nil))
	assert.Len(t, resp.Work, 2)
	assert.Nil(t, resp.Active)
	assert.Empty(t, resp.Pending)

	resp = decode[WorkResponse](t, do(t, h, http.MethodGet, "/api/work?agent=developer", nil))
	require.Len(t, resp.Work, 1)
	assert.Equal(t, "api", resp.Work[0].TaskID)
	assert.Equal(t, work.StatusPlanning, resp.Work[0].Status)
}

func TestHandleProjects(t *testing.T) {
	f := newFixture(t)
	_, err := f.projects.Register(project.Project{ID: "shop", Name: "Shop", Repository: "shop-web", Tasks: []project.Task{
		{ID: "reqs", Title: "Requirements", Type: project.TypeDocumentation, Priority: project.PriorityHigh, Assignee: "analyst", Status: project.StatusTodo},
		{ID: "api", Title: "API", Type: project.TypeFeature, Priority: project.PriorityMedium, Assignee: "developer", Status: project.StatusTodo, Dependencies: []string{"reqs"}},
	}})
	require.NoError(t, err)

	out := decode[[]ProjectSummary](t, do(t, f.server(""), http.MethodGet, "/api/projects", nil))
	require.Len(t, out, 1)
	assert.Equal(t, "shop-web", out[0].Repository)
	assert.Len(t, out[0].Tasks, 2)
	assert.Equal(t, 2, out[0].Counts[project.StatusTodo])
	assert.Equal(t, []string{"reqs"}, out[0].Ready)
}

func TestReviewLookup(t *testing.T) {
	f := newFixture(t)
	h := f.server("")

	w := do(t, h, http.MethodGet, "/api/reviews/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[apiResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "no review for PR #42", resp.Error)

	w = do(t, h, http.MethodGet, "/api/reviews/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.contexts.Create(review.Context{PRNumber: 42, Repository: "my-repo", Requester: "pat"})
	_, err := f.contexts.RecordVerdict(42, "qa", review.ReviewerResult{Approved: true, Summary: "LGTM"})
	require.NoError(t, err)

	w = do(t, h, http.MethodGet, "/api/reviews/42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rc := decode[review.Context](t, w)
	assert.Equal(t, "my-repo", rc.Repository)
	assert.True(t, rc.Reviewers["qa"].Approved)

	list := decode[[]review.Context](t, do(t, h, http.MethodGet, "/api/reviews", nil))
	assert.Len(t, list, 1)
}

func TestReviewStart(t *testing.T) {
	f := newFixture(t)
	h := f.server("")

	w := do(t, h, http.MethodPost, "/api/reviews", ReviewRequestBody{PRNumber: 7, Requester: "pat"})
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[apiResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "rev-1", resp.ID)

	require.Len(t, f.starter.calls, 1)
	call := f.starter.calls[0]
	assert.Equal(t, chat.DefaultRepository, call.Req.Repository)
	assert.Equal(t, 7, call.Req.PRNumber)
	assert.Equal(t, "general", call.Req.Channel)
	assert.True(t, call.Req.Author.IsHuman())
	assert.Equal(t, []string{"qa", "developer"}, call.Reviewers)
}

func TestReviewStartRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	h := f.server("")

	w := do(t, h, http.MethodPost, "/api/reviews", ReviewRequestBody{Repository: "my-repo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[apiResponse](t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "pr_number")

	req := httptest.NewRequest(http.MethodPost, "/api/reviews", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatPostAndRead(t *testing.T) {
	f := newFixture(t)
	h := f.server("")

	var seen []chat.Message
	f.chat.Subscribe(func(m chat.Message) { seen = append(seen, m) })

	w := do(t, h, http.MethodPost, "/api/chat", map[string]string{"text": "status of PR #42"})
	require.Equal(t, http.StatusOK, w.Code)
	msg := decode[chat.Message](t, w)
	assert.Equal(t, "@human", msg.Author)
	assert.Equal(t, "general", msg.Channel)
	require.Len(t, seen, 1)

	w = do(t, h, http.MethodPost, "/api/chat", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	history := decode[[]chat.Message](t, do(t, h, http.MethodGet, "/api/chat?channel=general&limit=10", nil))
	require.Len(t, history, 1)
	assert.Equal(t, "status of PR #42", history[0].Text)

	w = do(t, h, http.MethodGet, "/api/chat?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLogs(t *testing.T) {
	logx.NewLogger("webui-test").Info("hello from the test")
	h := newFixture(t).server("")

	entries := decode[[]logx.Entry](t, do(t, h, http.MethodGet, "/api/logs?component=webui-test", nil))
	require.NotEmpty(t, entries)
	assert.Equal(t, "hello from the test", entries[len(entries)-1].Message)

	w := do(t, h, http.MethodGet, "/api/logs?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.recorder.ObserveMerge("merged")
	h := f.server("")

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `devteam_merges_total{outcome="merged"} 1`)

	w = do(t, h, http.MethodGet, "/api/metrics/team", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequireAuth(t *testing.T) {
	h := newFixture(t).server("s3cret")

	w := do(t, h, http.MethodGet, "/api/agents", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.SetBasicAuth(AuthUsername, "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.SetBasicAuth(AuthUsername, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = do(t, h, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecretsHandlers(t *testing.T) {
	f := newFixture(t)
	h := f.server("")

	list := decode[[]SecretEntry](t, do(t, h, http.MethodGet, "/api/secrets", nil))
	assert.Equal(t, []SecretEntry{{Name: "GITEA_TOKEN"}}, list)

	w := do(t, h, http.MethodPost, "/api/secrets", map[string]string{"name": "OPENAI_API_KEY", "value": "sk-test"})
	require.Equal(t, http.StatusOK, w.Code)
	got, err := f.secrets.Get("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", got)
	assert.NotContains(t, do(t, h, http.MethodGet, "/api/secrets", nil).Body.String(), "sk-test")

	w = do(t, h, http.MethodPost, "/api/secrets", map[string]string{"name": "bad-name", "value": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, "/api/secrets/GITEA_TOKEN", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"OPENAI_API_KEY"}, f.secrets.Names())
}

func TestSecretsPersistWithPassword(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	h := NewServer(Deps{Secrets: f.secrets, ProjectDir: dir, Password: "pw"}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/secrets", strings.NewReader(`{"name":"EXTRA","value":"v"}`))
	req.SetBasicAuth(AuthUsername, "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	loaded, err := config.LoadSecrets(dir, "pw")
	require.NoError(t, err)
	assert.Equal(t, []string{"EXTRA", "GITEA_TOKEN"}, loaded.Names())
}

func TestStartServerStopsWithContext(t *testing.T) {
	s := NewServer(Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.StartServer(ctx, "127.0.0.1", 0))

	waitCtx, done := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer done()
	assert.ErrorIs(t, s.Wait(waitCtx), context.DeadlineExceeded)

	cancel()
	waitCtx2, done2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer done2()
	assert.NoError(t, s.Wait(waitCtx2))
}
