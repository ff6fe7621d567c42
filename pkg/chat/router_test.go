package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/internal/mocks"
	"devteam/pkg/clock"
	"devteam/pkg/llm"
	"devteam/pkg/review"
	"devteam/pkg/team"
)

type reply struct {
	AgentID, Channel, Text string
}

type recordingReplier struct {
	mu      sync.Mutex
	replies []reply
}

func (r *recordingReplier) Reply(_ context.Context, agentID, channel, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply{agentID, channel, text})
	return nil
}

func (r *recordingReplier) all() []reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reply(nil), r.replies...)
}

type reviewCall struct {
	Req       review.Request
	Reviewers []string
}

type mockReviewRunner struct {
	ReviewFunc func(ctx context.Context, req review.Request, reviewers []team.Agent) error

	mu    sync.Mutex
	calls []reviewCall
}

func (m *mockReviewRunner) Review(ctx context.Context, req review.Request, reviewers []team.Agent) error {
	ids := make([]string, len(reviewers))
	for i, a := range reviewers {
		ids[i] = a.ID
	}
	m.mu.Lock()
	m.calls = append(m.calls, reviewCall{Req: req, Reviewers: ids})
	m.mu.Unlock()
	if m.ReviewFunc != nil {
		return m.ReviewFunc(ctx, req, reviewers)
	}
	return nil
}

func wait(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestRouterReviewRequest(t *testing.T) {
	runner := &mockReviewRunner{}
	replier := &recordingReplier{}
	r := NewRouter(NewGrammar("main-app"), runner, review.NewContextStore(), team.DefaultDirectory(), replier)

	handled := r.Handle(context.Background(), Message{ID: "m1", Channel: "dev", Author: "pat", Text: "review PR #42 in my-repo"})
	require.True(t, handled)

	replies := replier.all()
	require.Len(t, replies, 1, "acknowledgment is posted before Handle returns")
	assert.Equal(t, "manager", replies[0].AgentID)
	assert.Equal(t, "dev", replies[0].Channel)
	assert.Equal(t, "On it! Sam and Alex will review PR #42 in my-repo.", replies[0].Text)

	wait(t, r)
	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, []string{"qa", "developer"}, call.Reviewers)
	assert.Equal(t, "my-repo", call.Req.Repository)
	assert.Equal(t, 42, call.Req.PRNumber)
	assert.Equal(t, "dev", call.Req.Channel)
	assert.Equal(t, "pat", call.Req.Requester)
	assert.True(t, call.Req.Author.IsHuman())
	assert.Equal(t, "pat", call.Req.Author.ID)
}

func TestRouterStatusQuery(t *testing.T) {
	contexts := review.NewContextStore()
	replier := &recordingReplier{}
	r := NewRouter(NewGrammar(""), &mockReviewRunner{}, contexts, team.DefaultDirectory(), replier)

	require.True(t, r.Handle(context.Background(), Message{Channel: "general", Author: "pat", Text: "status of PR #42"}))
	require.Len(t, replier.all(), 1)
	assert.Contains(t, replier.all()[0].Text, "unknown")

	contexts.Create(review.Context{PRNumber: 42, Repository: "my-repo", Channel: "general", Requester: "pat"})
	require.True(t, r.Handle(context.Background(), Message{Channel: "general", Author: "pat", Text: "status of PR #42"}))
	assert.Equal(t, "Status of PR #42 in my-repo: in_review", replier.all()[1].Text)

	_, err := contexts.RecordVerdict(42, "qa", review.ReviewerResult{Approved: true})
	require.NoError(t, err)
	_, err = contexts.RecordVerdict(42, "developer", review.ReviewerResult{ChangesRequested: true})
	require.NoError(t, err)
	require.True(t, r.Handle(context.Background(), Message{Channel: "general", Author: "pat", Text: "Status PR 42"}))
	assert.Equal(t, "Status of PR #42 in my-repo: changes_requested (developer: changes requested, qa: approved)", replier.all()[2].Text)
}

func TestRouterIgnoresAgentsAndChatter(t *testing.T) {
	runner := &mockReviewRunner{}
	replier := &recordingReplier{}
	r := NewRouter(NewGrammar(""), runner, review.NewContextStore(), team.DefaultDirectory(), replier)

	assert.False(t, r.Handle(context.Background(), Message{Author: "qa", Text: "I'll review #4 next"}))
	assert.False(t, r.Handle(context.Background(), Message{Author: "@manager", Text: "status of PR #4"}))
	assert.False(t, r.Handle(context.Background(), Message{Author: "pat", Text: "morning all"}))
	wait(t, r)
	assert.Empty(t, runner.calls)
	assert.Empty(t, replier.all())
}

func TestRouterDrivesPipeline(t *testing.T) {
	host := mocks.NewMockHost()
	gen := llm.NewGenerator(llm.NewScripted(`{"approved": true, "changesRequested": false, "body": "Fine by me.", "summary": "LGTM"}`))
	contexts := review.NewContextStore()
	pipeline := review.NewPipeline(host, gen, contexts, review.DefaultConfig(), review.WithClock(clock.NewAutoFake(time.Now())))

	replier := &recordingReplier{}
	r := NewRouter(NewGrammar("main-app"), pipeline, contexts, team.DefaultDirectory(), replier)

	require.True(t, r.Handle(context.Background(), Message{Channel: "general", Author: "pat", Text: "review #42"}))
	wait(t, r)

	require.Len(t, host.SubmitReviewCalls, 2)
	assert.Equal(t, "qa", host.SubmitReviewCalls[0].Review.Reviewer)
	assert.Equal(t, "developer", host.SubmitReviewCalls[1].Review.Reviewer)
	assert.Equal(t, "main-app", host.SubmitReviewCalls[0].Repo)
	assert.NotEmpty(t, host.MergeCalls)

	require.True(t, r.Handle(context.Background(), Message{Channel: "general", Author: "pat", Text: "status of PR #42"}))
	replies := replier.all()
	assert.Equal(t, "Status of PR #42 in main-app: merged (developer: approved, qa: approved)", replies[len(replies)-1].Text)
}

func TestRouterServiceSubscription(t *testing.T) {
	svc := NewService(nil)
	runner := &mockReviewRunner{}
	replier := ReplierFunc(func(ctx context.Context, agentID, channel, text string) error {
		_, err := svc.Post(ctx, &PostRequest{Channel: channel, Author: agentID, Text: text, PostType: PostReply})
		return err
	})
	r := NewRouter(NewGrammar(""), runner, review.NewContextStore(), team.DefaultDirectory(), replier)
	svc.Subscribe(r.Subscriber(context.Background()))

	_, err := svc.Post(context.Background(), &PostRequest{Author: "pat", Text: "review #3"})
	require.NoError(t, err)
	wait(t, r)

	history := svc.History("general", 0)
	require.Len(t, history, 2)
	assert.Equal(t, "manager", history[1].Author)
	assert.Equal(t, PostReply, history[1].PostType)
	assert.Len(t, runner.calls, 1, "the agent's acknowledgment must not trigger another review")
}
