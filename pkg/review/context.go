package review

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"devteam/pkg/llm"
)

// Status is the aggregate state of a review.
type Status string

const (
	StatusInReview         Status = "in_review"
	StatusChangesRequested Status = "changes_requested"
	StatusApproved         Status = "approved"
	StatusMerging          Status = "merging"
	StatusMerged           Status = "merged"
	StatusMergeFailed      Status = "merge_failed"
)

// ReviewerResult is one reviewer's final verdict.
type ReviewerResult struct {
	Approved         bool      `json:"approved"`
	ChangesRequested bool      `json:"changes_requested"`
	Summary          string    `json:"summary"`
	Body             string    `json:"body,omitempty"`
	Fallback         bool      `json:"fallback,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

func (r ReviewerResult) verdict() llm.Verdict {
	return llm.Verdict{
		Approved:         r.Approved,
		ChangesRequested: r.ChangesRequested,
		Summary:          r.Summary,
		Body:             r.Body,
		Fallback:         r.Fallback,
	}
}

// Context tracks one review request, keyed by PR number.
type Context struct {
	PRNumber   int                       `json:"pr_number"`
	Repository string                    `json:"repository"`
	Channel    string                    `json:"channel"`
	Requester  string                    `json:"requester"`
	ProjectID  string                    `json:"project_id,omitempty"`
	TaskID     string                    `json:"task_id,omitempty"`
	Status     Status                    `json:"status"`
	StartedAt  time.Time                 `json:"started_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
	Reviewers  map[string]ReviewerResult `json:"reviewers"`
}

func (c *Context) clone() Context {
	out := *c
	out.Reviewers = make(map[string]ReviewerResult, len(c.Reviewers))
	for k, v := range c.Reviewers {
		out.Reviewers[k] = v
	}
	return out
}

// ContextStore holds review contexts for the life of the process. Entries are never
// evicted and a reviewer's entry is never overwritten.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[int]*Context
	now      func() time.Time
	listener func(Context)
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[int]*Context), now: time.Now}
}

// SetNow overrides the store's time source.
func (s *ContextStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetListener registers fn to receive a copy of a context after every change.
func (s *ContextStore) SetListener(fn func(Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *ContextStore) notify(c Context) {
	s.mu.RLock()
	fn := s.listener
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// Create starts tracking a review. If the PR already has a context it is returned
// unchanged and created is false.
func (s *ContextStore) Create(c Context) (out Context, created bool) {
	s.mu.Lock()
	if existing, ok := s.contexts[c.PRNumber]; ok {
		out = existing.clone()
		s.mu.Unlock()
		return out, false
	}
	now := s.now()
	c = c.clone()
	if c.Status == "" {
		c.Status = StatusInReview
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	c.UpdatedAt = now
	s.contexts[c.PRNumber] = &c
	out = c.clone()
	s.mu.Unlock()

	s.notify(out)
	return out, true
}

// Get returns a copy of the context for pr.
func (s *ContextStore) Get(pr int) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[pr]
	if !ok {
		return Context{}, false
	}
	return c.clone(), true
}

// RecordVerdict stores reviewerID's verdict. The first verdict wins; later ones fail
// with ErrVerdictRecorded. The aggregate status moves to changes_requested or approved
// unless a merge is already under way or finished.
func (s *ContextStore) RecordVerdict(pr int, reviewerID string, r ReviewerResult) (Context, error) {
	s.mu.Lock()
	c, ok := s.contexts[pr]
	if !ok {
		s.mu.Unlock()
		return Context{}, fmt.Errorf("%w for PR #%d", ErrNoContext, pr)
	}
	if _, exists := c.Reviewers[reviewerID]; exists {
		s.mu.Unlock()
		return Context{}, fmt.Errorf("%w: %s on PR #%d", ErrVerdictRecorded, reviewerID, pr)
	}
	now := s.now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if c.Reviewers == nil {
		c.Reviewers = make(map[string]ReviewerResult)
	}
	c.Reviewers[reviewerID] = r
	c.UpdatedAt = now

	switch {
	case c.Status == StatusMerging || c.Status == StatusMerged:
	case r.ChangesRequested:
		c.Status = StatusChangesRequested
	case r.Approved && c.Status == StatusInReview:
		c.Status = StatusApproved
	}
	out := c.clone()
	s.mu.Unlock()

	s.notify(out)
	return out, nil
}

// SetStatus sets the aggregate status of pr.
func (s *ContextStore) SetStatus(pr int, status Status) (Context, error) {
	s.mu.Lock()
	c, ok := s.contexts[pr]
	if !ok {
		s.mu.Unlock()
		return Context{}, fmt.Errorf("%w for PR #%d", ErrNoContext, pr)
	}
	c.Status = status
	c.UpdatedAt = s.now()
	out := c.clone()
	s.mu.Unlock()

	s.notify(out)
	return out, nil
}

// ChangesRequested reports whether any recorded reviewer asked for changes on pr.
func (s *ContextStore) ChangesRequested(pr int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[pr]
	if !ok {
		return false
	}
	for _, r := range c.Reviewers {
		if r.ChangesRequested {
			return true
		}
	}
	return false
}

// List returns all contexts ordered by PR number.
func (s *ContextStore) List() []Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PRNumber < out[j].PRNumber })
	return out
}
