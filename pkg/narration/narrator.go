package narration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"devteam/pkg/chat"
	"devteam/pkg/clock"
	"devteam/pkg/logx"
	"devteam/pkg/review"
	"devteam/pkg/team"
	"devteam/pkg/work"
)

// Default pacing between queued messages.
const (
	DefaultMinPace = 3 * time.Second
	DefaultMaxPace = 10 * time.Second
)

// Poster publishes chat messages.
type Poster interface {
	Post(ctx context.Context, req *chat.PostRequest) (*chat.Message, error)
}

// Generator writes narration text.
type Generator interface {
	GenerateNarration(ctx context.Context, system, prompt string) (string, error)
}

// Directory is the part of team.Directory the narrator reads and updates.
type Directory interface {
	Get(id string) (team.Agent, error)
	RecordEvent(id, summary string) error
	SetMood(id, mood string) error
}

type job struct {
	agentID string
	channel string
	event   Event
}

// Narrator speaks for the agents. Queued narration (NarrateLater and the Sink and
// Announcer entry points) is posted by one goroutine, in submission order, with a
// randomized pause before each message.
type Narrator struct {
	dir     Directory
	gen     Generator
	poster  Poster
	channel string
	clock   clock.Clock
	jitter  *clock.Jitter
	minPace time.Duration
	maxPace time.Duration
	logger  *logx.Logger

	mu         sync.Mutex
	pending    []job
	active     int
	idle       chan struct{}
	wake       chan struct{}
	lastStatus map[string]work.Status
	cancel     context.CancelFunc
	done       chan struct{}
	stopped    bool
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithChannel sets the channel used when an event names none.
func WithChannel(channel string) Option {
	return func(n *Narrator) { n.channel = channel }
}

// WithClock sets the clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(n *Narrator) { n.clock = c }
}

// WithJitter sets the random source for pacing.
func WithJitter(j *clock.Jitter) Option {
	return func(n *Narrator) { n.jitter = j }
}

// WithPacing sets the pause range before each queued message.
func WithPacing(lo, hi time.Duration) Option {
	return func(n *Narrator) { n.minPace, n.maxPace = lo, hi }
}

// NewNarrator creates a narrator. gen may be nil, in which case templates are used.
func NewNarrator(dir Directory, gen Generator, poster Poster, opts ...Option) *Narrator {
	n := &Narrator{
		dir:        dir,
		gen:        gen,
		poster:     poster,
		channel:    "general",
		clock:      clock.Real(),
		jitter:     clock.NewJitter(time.Now().UnixNano()),
		minPace:    DefaultMinPace,
		maxPace:    DefaultMaxPace,
		logger:     logx.NewLogger("narration"),
		idle:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
		lastStatus: make(map[string]work.Status),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Narrate posts a message about ev from agentID right away.
func (n *Narrator) Narrate(ctx context.Context, agentID, channel string, ev Event) (*chat.Message, error) {
	agent, err := n.dir.Get(agentID)
	if err != nil {
		return nil, fmt.Errorf("narrate %s: %w", ev.Kind, err)
	}
	if channel == "" {
		channel = n.channel
	}

	postType := chat.PostChat
	if ev.IsFailure() {
		postType = chat.PostError
	}
	msg, err := n.poster.Post(ctx, &chat.PostRequest{
		Channel:  channel,
		Author:   agent.ID,
		Text:     n.compose(ctx, agent, ev),
		PostType: postType,
	})
	if err != nil {
		return nil, fmt.Errorf("post narration for %s: %w", agent.ID, err)
	}

	if recordsEvent(ev.Kind) {
		_ = n.dir.RecordEvent(agent.ID, Fallback(ev))
	}
	if mood := moodFor(ev); mood != "" {
		_ = n.dir.SetMood(agent.ID, mood)
	}
	return msg, nil
}

// compose asks the generator for a message and falls back to the template. Failures
// always use the template so the error text reaches the channel unchanged.
func (n *Narrator) compose(ctx context.Context, agent team.Agent, ev Event) string {
	fallback := Fallback(ev)
	if n.gen == nil || ev.IsFailure() {
		return fallback
	}
	text, err := n.gen.GenerateNarration(ctx, systemPrompt(agent), eventPrompt(ev, fallback))
	if err != nil || strings.TrimSpace(text) == "" {
		logx.Debug(ctx, "narration", "Using template for %s/%s: %v", agent.ID, ev.Kind, err)
		return fallback
	}
	return text
}

// Reply posts text from agentID verbatim.
func (n *Narrator) Reply(ctx context.Context, agentID, channel, text string) error {
	if _, err := n.dir.Get(agentID); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	if channel == "" {
		channel = n.channel
	}
	_, err := n.poster.Post(ctx, &chat.PostRequest{Channel: channel, Author: agentID, Text: text, PostType: chat.PostReply})
	return err
}

// NarrateLater queues ev for the pacing loop.
func (n *Narrator) NarrateLater(agentID, channel string, ev Event) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		n.logger.Debug("Narrator stopped, dropping %s from %s", ev.Kind, agentID)
		return
	}
	n.pending = append(n.pending, job{agentID: agentID, channel: channel, event: ev})
	n.active++
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Publish narrates work updates whenever an item changes status, is blocked or completes.
func (n *Narrator) Publish(u work.Update) {
	key := u.AgentID + "/" + u.ProjectID + "/" + u.TaskID
	n.mu.Lock()
	ev, ok := FromUpdate(u, n.lastStatus[key])
	if ok {
		if ev.Kind == KindTaskBlocked || ev.Kind == KindTaskCompleted {
			delete(n.lastStatus, key)
		} else {
			n.lastStatus[key] = u.Status
		}
	}
	n.mu.Unlock()

	if ok {
		n.NarrateLater(u.AgentID, "", ev)
	}
}

// Announce narrates a review pipeline event as the reviewer.
func (n *Narrator) Announce(_ context.Context, a review.Announcement) {
	n.NarrateLater(a.Reviewer.ID, a.Request.Channel, FromAnnouncement(a))
}

// Start launches the pacing loop. It stops when ctx is done or Stop is called.
func (n *Narrator) Start(ctx context.Context) {
	n.mu.Lock()
	if n.done != nil {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	done := n.done
	n.mu.Unlock()

	go func() {
		defer close(done)
		n.loop(ctx)
	}()
}

// Stop ends the pacing loop and waits for it. Messages still queued are dropped.
func (n *Narrator) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	// The loop is gone: release Drain for the queued jobs and any job it was pacing.
	n.mu.Lock()
	n.stopped = true
	dropped := len(n.pending)
	n.pending = nil
	if n.active > 0 {
		n.active = 0
		close(n.idle)
		n.idle = make(chan struct{})
	}
	n.mu.Unlock()
	if dropped > 0 {
		n.logger.Info("Dropped %d queued narration messages", dropped)
	}
}

func (n *Narrator) loop(ctx context.Context) {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.mu.Unlock()
			select {
			case <-n.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		j := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()

		if err := n.clock.Sleep(ctx, n.jitter.Between(n.minPace, n.maxPace)); err != nil {
			return
		}
		if _, err := n.Narrate(ctx, j.agentID, j.channel, j.event); err != nil {
			n.logger.Warn("Narration dropped: %v", err)
		}

		n.mu.Lock()
		n.active--
		if n.active == 0 {
			close(n.idle)
			n.idle = make(chan struct{})
		}
		n.mu.Unlock()
	}
}

// Drain blocks until every queued message has been posted, or ctx is done.
func (n *Narrator) Drain(ctx context.Context) error {
	n.mu.Lock()
	if n.active == 0 {
		n.mu.Unlock()
		return nil
	}
	ch := n.idle
	n.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
