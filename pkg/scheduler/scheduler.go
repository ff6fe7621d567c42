// Package scheduler serializes work items across the whole team: one FIFO queue, one
// worker, and a randomized human-paced pause between items.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"devteam/pkg/clock"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/project"
	"devteam/pkg/team"
	"devteam/pkg/work"
)

// Default pacing between work items.
const (
	DefaultMinDelay = 5 * time.Second
	DefaultMaxDelay = 15 * time.Second
)

// Executor runs one work item to completion.
type Executor interface {
	Execute(ctx context.Context, item work.Item) error
}

// Blocker records a failure against the item's AgentWork record.
type Blocker interface {
	AddBlocker(agentID, taskID, blocker string) (work.AgentWork, error)
}

// AgentLookup resolves assignees; an assignee it cannot find is treated as a human.
type AgentLookup interface {
	Get(id string) (team.Agent, error)
}

// WorkItem is a queued item with its enqueue sequence number.
type WorkItem struct {
	work.Item
	Seq        uint64    `json:"seq"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Config controls pacing.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultConfig returns the 5–15s pacing.
func DefaultConfig() Config {
	return Config{MinDelay: DefaultMinDelay, MaxDelay: DefaultMaxDelay}
}

// Scheduler owns the global work queue. At most one item executes at any instant.
type Scheduler struct {
	exec     Executor
	cfg      Config
	clock    clock.Clock
	jitter   *clock.Jitter
	blocker  Blocker
	agents   AgentLookup
	recorder metrics.Recorder
	observer Observer
	baseCtx  context.Context //nolint:containedctx // lifetime of the worker loop
	logger   *logx.Logger

	mu         sync.Mutex
	queue      []WorkItem
	processing bool
	active     *WorkItem
	seq        uint64
	queued     map[string]bool
	idle       chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithJitter sets the random source for pacing.
func WithJitter(j *clock.Jitter) Option {
	return func(s *Scheduler) { s.jitter = j }
}

// WithBlocker records execution failures as blockers.
func WithBlocker(b Blocker) Option {
	return func(s *Scheduler) { s.blocker = b }
}

// WithAgents lets EnqueueReady skip tasks assigned to humans.
func WithAgents(a AgentLookup) Option {
	return func(s *Scheduler) { s.agents = a }
}

// WithRecorder reports queue depth and item outcomes.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithObserver receives lifecycle events.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithContext sets the context Enqueue uses to start the worker.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.baseCtx = ctx }
}

// New creates an idle scheduler.
func New(exec Executor, cfg Config, opts ...Option) *Scheduler {
	if cfg.MinDelay == 0 && cfg.MaxDelay == 0 {
		cfg = DefaultConfig()
	}
	s := &Scheduler{
		exec:     exec,
		cfg:      cfg,
		clock:    clock.Real(),
		jitter:   clock.NewJitter(time.Now().UnixNano()),
		recorder: metrics.Nop(),
		observer: func(Event) {},
		baseCtx:  context.Background(),
		logger:   logx.NewLogger("scheduler"),
		queued:   make(map[string]bool),
		idle:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue appends item to the queue and makes sure the worker is running.
func (s *Scheduler) Enqueue(item work.Item) WorkItem {
	s.mu.Lock()
	s.seq++
	wi := WorkItem{Item: item, Seq: s.seq, EnqueuedAt: s.clock.Now()}
	s.queue = append(s.queue, wi)
	s.queued[queuedKey(item.ProjectID, item.TaskID)] = true
	depth := len(s.queue)
	s.mu.Unlock()

	s.recorder.SetQueueDepth(depth)
	s.logger.Info("Enqueued %s for %s (position %d)", item.TaskID, item.AgentID, depth)
	s.emit(Event{Type: EventEnqueued, Item: wi})
	s.Start(s.baseCtx)
	return wi
}

// EnqueueReady enqueues every task in graph whose dependencies are done and that has not
// been queued before. Tasks without an agent assignee are left for humans.
func (s *Scheduler) EnqueueReady(graph *project.Graph, projectID string) []WorkItem {
	var out []WorkItem
	for _, t := range graph.Ready() {
		if s.wasQueued(projectID, t.ID) {
			continue
		}
		if !s.isAgent(t.Assignee) {
			s.logger.Debug("Skipping %s: assignee %q is not an agent", t.ID, t.Assignee)
			continue
		}
		out = append(out, s.Enqueue(work.Item{AgentID: t.Assignee, TaskID: t.ID, ProjectID: projectID}))
	}
	return out
}

func queuedKey(projectID, taskID string) string {
	return projectID + "/" + taskID
}

func (s *Scheduler) wasQueued(projectID, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[queuedKey(projectID, taskID)]
}

func (s *Scheduler) isAgent(assignee string) bool {
	if assignee == "" {
		return false
	}
	if s.agents == nil {
		return true
	}
	a, err := s.agents.Get(assignee)
	return err == nil && !a.IsHuman()
}

// Start launches the worker loop unless it is already running. It reports whether a
// new loop was started.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return false
	}
	s.processing = true
	s.mu.Unlock()

	go s.loop(ctx)
	return true
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || ctx.Err() != nil {
			s.mu.Unlock()
			s.emit(Event{Type: EventIdle})

			// Re-check: an Enqueue during the idle event sees processing=true and
			// relies on this loop to pick the item up.
			s.mu.Lock()
			if len(s.queue) == 0 || ctx.Err() != nil {
				s.stopLocked()
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			continue
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.active = &item
		depth := len(s.queue)
		s.mu.Unlock()

		s.recorder.SetQueueDepth(depth)
		s.runOne(ctx, item)

		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()

		delay := s.jitter.Between(s.cfg.MinDelay, s.cfg.MaxDelay)
		logx.Debug(ctx, "scheduler", "Sleeping %s before next item", delay)
		if err := s.clock.Sleep(ctx, delay); err != nil {
			s.logger.Info("Scheduler stopping: %v", err)
		}
	}
}

// stopLocked clears the processing flag and wakes Wait callers. Caller holds s.mu.
func (s *Scheduler) stopLocked() {
	s.processing = false
	close(s.idle)
	s.idle = make(chan struct{})
}

func (s *Scheduler) runOne(ctx context.Context, item WorkItem) {
	s.emit(Event{Type: EventStarted, Item: item})
	start := s.clock.Now()

	err := s.safeExecute(ctx, item)
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		s.recorder.ObserveWorkItem(item.AgentID, metrics.OutcomeFailed, elapsed)
		s.logger.Error("Work item %s for %s failed: %v", item.TaskID, item.AgentID, err)
		var blocked *work.BlockedError
		if s.blocker != nil && !errors.As(err, &blocked) {
			if _, bErr := s.blocker.AddBlocker(item.AgentID, item.TaskID, err.Error()); bErr != nil {
				s.logger.Debug("No work record for %s/%s: %v", item.AgentID, item.TaskID, bErr)
			}
		}
		s.emit(Event{Type: EventFailed, Item: item, Err: err, Duration: elapsed})
		return
	}

	s.recorder.ObserveWorkItem(item.AgentID, metrics.OutcomeSuccess, elapsed)
	s.emit(Event{Type: EventFinished, Item: item, Duration: elapsed})
}

func (s *Scheduler) safeExecute(ctx context.Context, item WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic executing %s: %v\n%s", item.TaskID, r, debug.Stack())
			err = fmt.Errorf("panic executing %s: %v", item.TaskID, r)
		}
	}()
	return s.exec.Execute(ctx, item.Item)
}

func (s *Scheduler) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	s.observer(e)
}

// Len returns the number of items waiting (not counting the one executing).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsProcessing reports whether the worker loop is running.
func (s *Scheduler) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Snapshot returns the executing item (if any) and the waiting items in order.
func (s *Scheduler) Snapshot() (active *WorkItem, pending []WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		a := *s.active
		active = &a
	}
	return active, append([]WorkItem(nil), s.queue...)
}

// Wait blocks until the worker loop has drained the queue and exited, or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.processing {
			s.mu.Unlock()
			return nil
		}
		ch := s.idle
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
