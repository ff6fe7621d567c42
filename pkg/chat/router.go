package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/review"
	"devteam/pkg/team"
)

// DefaultResponder is the agent that acknowledges commands and answers status queries.
const DefaultResponder = "manager"

// Replier posts a message on behalf of an agent.
type Replier interface {
	Reply(ctx context.Context, agentID, channel, text string) error
}

// ReviewRunner runs a review to completion.
type ReviewRunner interface {
	Review(ctx context.Context, req review.Request, reviewers []team.Agent) error
}

// ContextReader looks up review contexts by PR number.
type ContextReader interface {
	Get(pr int) (review.Context, bool)
}

// Agents is the part of team.Directory the router needs.
type Agents interface {
	Get(id string) (team.Agent, error)
	ByRole(role team.Role) []team.Agent
}

// Router turns chat messages into review runs and status answers.
type Router struct {
	grammar   *Grammar
	reviews   ReviewRunner
	contexts  ContextReader
	agents    Agents
	replier   Replier
	responder string
	recorder  metrics.Recorder
	logger    *logx.Logger

	wg sync.WaitGroup
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithResponder sets which agent speaks for the router.
func WithResponder(agentID string) RouterOption {
	return func(r *Router) { r.responder = agentID }
}

// WithRouterRecorder counts handled commands.
func WithRouterRecorder(rec metrics.Recorder) RouterOption {
	return func(r *Router) { r.recorder = rec }
}

// NewRouter creates a router.
func NewRouter(grammar *Grammar, reviews ReviewRunner, contexts ContextReader, agents Agents, replier Replier, opts ...RouterOption) *Router {
	r := &Router{
		grammar:   grammar,
		reviews:   reviews,
		contexts:  contexts,
		agents:    agents,
		replier:   replier,
		responder: DefaultResponder,
		recorder:  metrics.Nop(),
		logger:    logx.NewLogger("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle routes msg and reports whether it held a command. Messages written by agents
// are ignored. A review request is acknowledged before Handle returns; the review
// itself runs in the background (see Wait).
func (r *Router) Handle(ctx context.Context, msg Message) bool {
	if r.isAgent(msg.Author) {
		return false
	}
	cmd, rule, ok := r.grammar.match(msg.Text)
	if !ok {
		return false
	}
	r.recorder.IncChatCommand(cmd.Kind())
	r.logger.Info("Matched %s rule in message %s from %s", rule, msg.ID, msg.Author)

	switch c := cmd.(type) {
	case ReviewRequest:
		r.startReview(ctx, c, msg)
	case StatusQuery:
		r.answerStatus(ctx, c, msg)
	}
	return true
}

// Subscriber adapts Handle to Service.Subscribe.
func (r *Router) Subscriber(ctx context.Context) func(Message) {
	return func(m Message) { r.Handle(ctx, m) }
}

func (r *Router) isAgent(author string) bool {
	_, err := r.agents.Get(strings.TrimPrefix(author, "@"))
	return err == nil
}

func (r *Router) reply(ctx context.Context, channel, text string) {
	if err := r.replier.Reply(ctx, r.responder, channel, text); err != nil {
		r.logger.Warn("Reply in %s failed: %v", channel, err)
	}
}

func (r *Router) startReview(ctx context.Context, c ReviewRequest, msg Message) {
	reviewers := review.ChatReviewers(r.agents)
	names := make([]string, len(reviewers))
	for i, a := range reviewers {
		names[i] = a.Name
	}
	r.reply(ctx, msg.Channel, fmt.Sprintf("On it! %s will review PR #%d in %s.", strings.Join(names, " and "), c.PRNumber, c.Repository))

	req := review.Request{
		Repository: c.Repository,
		PRNumber:   c.PRNumber,
		Channel:    msg.Channel,
		Requester:  msg.Author,
		Author:     team.HumanAuthor(msg.Author),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.reviews.Review(ctx, req, reviewers); err != nil {
			r.logger.Warn("Review of %s#%d requested by %s: %v", c.Repository, c.PRNumber, msg.Author, err)
			if review.IsValidationError(err) {
				r.reply(ctx, msg.Channel, "Error: "+err.Error())
			}
		}
	}()
}

func (r *Router) answerStatus(ctx context.Context, q StatusQuery, msg Message) {
	rc, ok := r.contexts.Get(q.PRNumber)
	if !ok {
		r.reply(ctx, msg.Channel, fmt.Sprintf("Status of PR #%d: unknown. Nobody has asked us to review it yet.", q.PRNumber))
		return
	}
	r.reply(ctx, msg.Channel, StatusText(rc))
}

// StatusText renders a review context for a status answer.
func StatusText(rc review.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status of PR #%d in %s: %s", rc.PRNumber, rc.Repository, rc.Status)
	if len(rc.Reviewers) > 0 {
		sb.WriteString(" (")
		first := true
		for _, id := range sortedKeys(rc.Reviewers) {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s: %s", id, verdictWord(rc.Reviewers[id]))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func verdictWord(r review.ReviewerResult) string {
	switch {
	case r.ChangesRequested:
		return "changes requested"
	case r.Approved:
		return "approved"
	default:
		return "commented"
	}
}

// Wait blocks until background reviews started by Handle have finished, or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortedKeys(m map[string]review.ReviewerResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, agentID, channel, text string) error

func (f ReplierFunc) Reply(ctx context.Context, agentID, channel, text string) error {
	return f(ctx, agentID, channel, text)
}
