package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"devteam/pkg/clock"
	"devteam/pkg/forge"
	"devteam/pkg/llm"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/team"
)

// Default pacing.
const (
	DefaultStartStagger = 3 * time.Second
	DefaultMergeSettle  = 5 * time.Second
)

// Merge outcomes reported to metrics.
const (
	mergeOutcomeAlreadyMerged = "already_merged"
)

// VerdictGenerator produces a reviewer's verdict. On failure it still returns a usable
// fallback verdict alongside the error.
type VerdictGenerator interface {
	GenerateVerdict(ctx context.Context, prompt string) (llm.Verdict, error)
}

// Request identifies the pull request under review and who asked for it.
type Request struct {
	ID         string     `json:"id"`
	Repository string     `json:"repository"`
	PRNumber   int        `json:"pr_number"`
	Channel    string     `json:"channel"`
	Requester  string     `json:"requester"`
	Author     team.Agent `json:"author"`
	ProjectID  string     `json:"project_id,omitempty"`
	TaskID     string     `json:"task_id,omitempty"`
	Title      string     `json:"title,omitempty"`
}

// Validate rejects requests that cannot be reviewed.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Repository) == "" {
		return &ValidationError{Field: "repository", Reason: "is required"}
	}
	if r.PRNumber <= 0 {
		return &ValidationError{Field: "pr_number", Reason: "must be positive"}
	}
	return nil
}

// Config controls review pacing and merge behaviour.
type Config struct {
	StartStagger time.Duration
	MergeSettle  time.Duration
	MergeMethod  string
	DeleteBranch bool
}

// DefaultConfig staggers reviewer announcements by 3s and waits 5s before a squash merge.
func DefaultConfig() Config {
	return Config{
		StartStagger: DefaultStartStagger,
		MergeSettle:  DefaultMergeSettle,
		MergeMethod:  forge.MergeSquash,
		DeleteBranch: true,
	}
}

// ContextUpdater is the part of team.Directory the pipeline uses to mark reviewers busy.
type ContextUpdater interface {
	UpdateContext(id string, fn func(*team.RuntimeContext)) error
}

// Pipeline runs reviews against a repository host.
type Pipeline struct {
	host      forge.Host
	gen       VerdictGenerator
	contexts  *ContextStore
	cfg       Config
	clock     clock.Clock
	announcer Announcer
	recorder  metrics.Recorder
	budget    *llm.TokenBudget
	onMerged  func(ctx context.Context, req Request)
	agents    ContextUpdater
	logger    *logx.Logger

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for staggering and the merge settle delay.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithAnnouncer sets where pipeline events are narrated.
func WithAnnouncer(a Announcer) Option {
	return func(p *Pipeline) { p.announcer = a }
}

// WithRecorder reports verdicts and merges.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithBudget limits how much of the change set goes into a review prompt.
func WithBudget(b *llm.TokenBudget) Option {
	return func(p *Pipeline) { p.budget = b }
}

// WithOnMerged is called after a successful merge.
func WithOnMerged(fn func(ctx context.Context, req Request)) Option {
	return func(p *Pipeline) { p.onMerged = fn }
}

// WithAgents marks each reviewer collaborating on the PR while it reviews.
func WithAgents(a ContextUpdater) Option {
	return func(p *Pipeline) { p.agents = a }
}

// NewPipeline creates a pipeline recording into contexts.
func NewPipeline(host forge.Host, gen VerdictGenerator, contexts *ContextStore, cfg Config, opts ...Option) *Pipeline {
	if cfg.MergeMethod == "" {
		cfg.MergeMethod = forge.MergeSquash
	}
	p := &Pipeline{
		host:      host,
		gen:       gen,
		contexts:  contexts,
		cfg:       cfg,
		clock:     clock.Real(),
		announcer: nopAnnouncer{},
		recorder:  metrics.Nop(),
		logger:    logx.NewLogger("review"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Contexts returns the review context store.
func (p *Pipeline) Contexts() *ContextStore {
	return p.contexts
}

func validate(req Request, reviewers []team.Agent) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(reviewers) == 0 {
		return &ValidationError{Field: "reviewers", Reason: "must not be empty"}
	}
	return nil
}

// Start validates req and runs the review in the background. The returned request
// carries its generated ID.
func (p *Pipeline) Start(ctx context.Context, req Request, reviewers []team.Agent) (Request, error) {
	if err := validate(req, reviewers); err != nil {
		return req, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Review(ctx, req, reviewers); err != nil {
			p.logger.Warn("Review %s of %s#%d finished with errors: %v", req.ID, req.Repository, req.PRNumber, err)
		}
	}()
	return req, nil
}

// Wait blocks until every review started with Start has finished, or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Review runs each reviewer in turn. A reviewer's failure is narrated and does not stop
// the remaining reviewers; all failures are returned joined.
func (p *Pipeline) Review(ctx context.Context, req Request, reviewers []team.Agent) error {
	if err := validate(req, reviewers); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if _, created := p.contexts.Create(Context{
		PRNumber:   req.PRNumber,
		Repository: req.Repository,
		Channel:    req.Channel,
		Requester:  req.Requester,
		ProjectID:  req.ProjectID,
		TaskID:     req.TaskID,
	}); !created {
		p.logger.Info("PR #%d already has a review context, adding reviewers to it", req.PRNumber)
	}

	names := make([]string, len(reviewers))
	for i, r := range reviewers {
		names[i] = r.ID
	}
	p.logger.Info("🔍 Reviewing %s#%d with %s", req.Repository, req.PRNumber, strings.Join(names, ", "))

	var errs []error
	for i, reviewer := range reviewers {
		p.announceAfter(ctx, time.Duration(i)*p.cfg.StartStagger, Announcement{Kind: EventReviewStarted, Reviewer: reviewer, Request: req})
		if err := p.reviewOne(ctx, req, reviewer); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", reviewer.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) announce(ctx context.Context, a Announcement) {
	p.announcer.Announce(ctx, a)
}

func (p *Pipeline) announceAfter(ctx context.Context, d time.Duration, a Announcement) {
	if d <= 0 {
		p.announce(ctx, a)
		return
	}
	p.clock.AfterFunc(d, func() { p.announce(ctx, a) })
}

// collaborate marks the reviewer collaborating on req and returns a func that restores
// its previous status, unless something else changed the status in the meantime.
func (p *Pipeline) collaborate(reviewer team.Agent, req Request) func() {
	if p.agents == nil {
		return func() {}
	}
	label := fmt.Sprintf("Review of PR #%d in %s", req.PRNumber, req.Repository)
	prevStatus, prevTask := team.StatusAvailable, ""
	err := p.agents.UpdateContext(reviewer.ID, func(c *team.RuntimeContext) {
		if c.WorkStatus != "" {
			prevStatus, prevTask = c.WorkStatus, c.CurrentTask
		}
		c.WorkStatus = team.StatusCollaborating
		c.CurrentTask = label
	})
	if err != nil {
		p.logger.Debug("Not tracking %s as collaborating: %v", reviewer.ID, err)
		return func() {}
	}
	return func() {
		_ = p.agents.UpdateContext(reviewer.ID, func(c *team.RuntimeContext) {
			if c.WorkStatus == team.StatusCollaborating && c.CurrentTask == label {
				c.WorkStatus, c.CurrentTask = prevStatus, prevTask
			}
		})
	}
}

// announceExisting tells the team about a verdict the reviewer already gave on this PR
// and, if it was an approval, retries the merge check.
func (p *Pipeline) announceExisting(ctx context.Context, req Request, reviewer team.Agent, r ReviewerResult) error {
	p.logger.Info("%s already reviewed PR #%d, not reviewing again", reviewer.ID, req.PRNumber)
	p.announce(ctx, Announcement{Kind: EventAlreadyReviewed, Reviewer: reviewer, Request: req, Verdict: r.verdict()})
	if !r.Approved {
		return nil
	}
	return p.mergeCheck(ctx, req, reviewer)
}

func (p *Pipeline) reviewOne(ctx context.Context, req Request, reviewer team.Agent) error {
	fail := func(err error) error {
		p.announce(ctx, Announcement{Kind: EventReviewFailed, Reviewer: reviewer, Request: req, Err: err})
		return err
	}

	if c, ok := p.contexts.Get(req.PRNumber); ok {
		if prior, done := c.Reviewers[reviewer.ID]; done {
			return p.announceExisting(ctx, req, reviewer, prior)
		}
	}

	defer p.collaborate(reviewer, req)()
	logger := p.logger.With(reviewer.ID)

	files, err := p.host.GetChangedFiles(ctx, req.Repository, req.PRNumber)
	if err != nil {
		return fail(fmt.Errorf("fetch changed files: %w", err))
	}

	verdict, err := p.gen.GenerateVerdict(ctx, p.buildPrompt(req, reviewer, files))
	if err != nil {
		logger.Warn("Verdict on PR #%d fell back: %v", req.PRNumber, err)
		if !verdict.Fallback {
			verdict = llm.FallbackVerdict()
		}
	}
	if verdict.ChangesRequested {
		verdict.Approved = false
	}

	body := strings.TrimSpace(verdict.Body)
	if body == "" {
		body = strings.TrimSpace(verdict.Summary)
	}
	if body == "" {
		return fail(&ValidationError{Field: "body", Reason: "is empty"})
	}

	event := forge.ReviewComment
	switch {
	case verdict.ChangesRequested:
		event = forge.ReviewRequestChanges
	case verdict.Approved:
		event = forge.ReviewApprove
	}
	if err := p.host.SubmitReview(ctx, req.Repository, req.PRNumber, forge.Review{Reviewer: reviewer.ID, Event: event, Body: body}); err != nil {
		return fail(fmt.Errorf("submit review: %w", err))
	}

	p.recorder.ObserveReview(reviewer.ID, verdictLabel(verdict), verdict.Fallback)
	if _, err := p.contexts.RecordVerdict(req.PRNumber, reviewer.ID, ReviewerResult{
		Approved:         verdict.Approved,
		ChangesRequested: verdict.ChangesRequested,
		Summary:          verdict.Summary,
		Body:             body,
		Fallback:         verdict.Fallback,
	}); err != nil {
		// A concurrent review by the same reviewer got there first.
		logger.Warn("Not recording verdict: %v", err)
		if c, ok := p.contexts.Get(req.PRNumber); ok {
			if prior, done := c.Reviewers[reviewer.ID]; done {
				p.announce(ctx, Announcement{Kind: EventAlreadyReviewed, Reviewer: reviewer, Request: req, Verdict: prior.verdict()})
			}
		}
		return nil
	}
	p.announce(ctx, Announcement{Kind: EventReviewSubmitted, Reviewer: reviewer, Request: req, Verdict: verdict})

	if !verdict.Approved {
		return nil
	}
	return p.mergeCheck(ctx, req, reviewer)
}

func verdictLabel(v llm.Verdict) string {
	switch {
	case v.ChangesRequested:
		return string(StatusChangesRequested)
	case v.Approved:
		return string(StatusApproved)
	default:
		return "commented"
	}
}

// mergeCheck merges the PR when no reviewer asked for changes, at least one approved,
// and the host reports it mergeable. Every approving reviewer runs it, so two reviewers
// can race to merge the same PR; the host rejects the loser with ErrAlreadyMerged.
func (p *Pipeline) mergeCheck(ctx context.Context, req Request, reviewer team.Agent) error {
	status, err := p.host.GetStatus(ctx, req.Repository, req.PRNumber)
	if err != nil {
		p.mergeFailed(ctx, req, reviewer, err)
		return fmt.Errorf("get status: %w", err)
	}
	if status.Merged {
		p.logger.Info("PR #%d is already merged", req.PRNumber)
		return nil
	}
	if status.ChangesRequested() || p.contexts.ChangesRequested(req.PRNumber) {
		p.announce(ctx, Announcement{Kind: EventMergeBlocked, Reviewer: reviewer, Request: req})
		return nil
	}
	if status.Approvals() < 1 || !status.Mergeable {
		p.logger.Info("PR #%d not ready to merge (approvals=%d mergeable=%v)", req.PRNumber, status.Approvals(), status.Mergeable)
		return nil
	}

	p.announce(ctx, Announcement{Kind: EventMergePreparing, Reviewer: reviewer, Request: req})
	_, _ = p.contexts.SetStatus(req.PRNumber, StatusMerging)
	if err := p.clock.Sleep(ctx, p.cfg.MergeSettle); err != nil {
		return err
	}

	p.logger.Info("🔀 Merging %s#%d (%s)", req.Repository, req.PRNumber, p.cfg.MergeMethod)
	err = p.host.Merge(ctx, req.Repository, req.PRNumber, forge.MergeOptions{
		Method:        p.cfg.MergeMethod,
		CommitMessage: mergeMessage(req),
		DeleteBranch:  p.cfg.DeleteBranch,
	})
	switch {
	case errors.Is(err, forge.ErrAlreadyMerged):
		p.recorder.ObserveMerge(mergeOutcomeAlreadyMerged)
		_, _ = p.contexts.SetStatus(req.PRNumber, StatusMerged)
		p.announce(ctx, Announcement{Kind: EventMergeFailed, Reviewer: reviewer, Request: req, Err: err})
		return nil
	case err != nil:
		p.mergeFailed(ctx, req, reviewer, err)
		return fmt.Errorf("merge: %w", err)
	}

	p.recorder.ObserveMerge(metrics.OutcomeSuccess)
	_, _ = p.contexts.SetStatus(req.PRNumber, StatusMerged)
	p.announce(ctx, Announcement{Kind: EventMerged, Reviewer: reviewer, Request: req})
	if p.onMerged != nil {
		p.onMerged(ctx, req)
	}
	return nil
}

func (p *Pipeline) mergeFailed(ctx context.Context, req Request, reviewer team.Agent, err error) {
	p.logger.Error("Merge of %s#%d failed: %v", req.Repository, req.PRNumber, err)
	p.recorder.ObserveMerge(metrics.OutcomeFailed)
	_, _ = p.contexts.SetStatus(req.PRNumber, StatusMergeFailed)
	p.announce(ctx, Announcement{Kind: EventMergeFailed, Reviewer: reviewer, Request: req, Err: err})
}

func mergeMessage(req Request) string {
	if req.Title != "" {
		return fmt.Sprintf("%s (#%d)", req.Title, req.PRNumber)
	}
	return fmt.Sprintf("Merge PR #%d", req.PRNumber)
}
