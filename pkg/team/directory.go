package team

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateAgent is returned by Add when the id is taken.
var ErrDuplicateAgent = errors.New("agent already registered")

// DefaultCatalog returns the standard five-role team.
func DefaultCatalog() []Agent {
	return []Agent{
		{
			ID:          "developer",
			Name:        "Alex",
			Role:        RoleDeveloper,
			Personality: "Pragmatic and detail-oriented. Prefers small, well-tested changes and explains trade-offs plainly.",
			Expertise:   []string{"backend services", "APIs", "testing", "refactoring"},
		},
		{
			ID:          "designer",
			Name:        "Maya",
			Role:        RoleDesigner,
			Personality: "Empathetic and visual. Thinks about the user first and pushes for consistency.",
			Expertise:   []string{"UX flows", "visual design", "accessibility", "design systems"},
		},
		{
			ID:          "qa",
			Name:        "Sam",
			Role:        RoleQA,
			Personality: "Skeptical in a friendly way. Looks for edge cases and asks how a change was verified.",
			Expertise:   []string{"test plans", "regression testing", "edge cases", "release checks"},
		},
		{
			ID:          "manager",
			Name:        "Jordan",
			Role:        RoleManager,
			Personality: "Calm and organised. Keeps the team focused on priorities and unblocks people quickly.",
			Expertise:   []string{"planning", "prioritisation", "requirements", "coordination"},
		},
		{
			ID:          "analyst",
			Name:        "Riley",
			Role:        RoleAnalyst,
			Personality: "Curious and methodical. Turns vague asks into clear written requirements.",
			Expertise:   []string{"requirements analysis", "documentation", "metrics", "user research"},
		},
	}
}

// Directory is the thread-safe agent registry. Readers receive copies.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string
	now    func() time.Time
}

// NewDirectory builds a directory from agents. Every context starts available and neutral.
func NewDirectory(agents ...Agent) (*Directory, error) {
	d := &Directory{agents: make(map[string]*Agent), now: time.Now}
	for i := range agents {
		if err := d.Add(agents[i]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DefaultDirectory returns a directory holding DefaultCatalog.
func DefaultDirectory() *Directory {
	d, err := NewDirectory(DefaultCatalog()...)
	if err != nil {
		panic(err) // catalog ids are unique
	}
	return d
}

// SetNow overrides the timestamp source for recorded events.
func (d *Directory) SetNow(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Add registers an agent.
func (d *Directory) Add(a Agent) error {
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if !a.Role.IsValid() {
		return fmt.Errorf("agent %s: invalid role %q", a.ID, a.Role)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID)
	}
	a = a.clone()
	if a.Context.WorkStatus == "" {
		a.Context.WorkStatus = StatusAvailable
	}
	if a.Context.Mood == "" {
		a.Context.Mood = MoodNeutral
	}
	d.agents[a.ID] = &a
	d.order = append(d.order, a.ID)
	return nil
}

// Get returns a copy of the agent with id.
func (d *Directory) Get(id string) (Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	if !ok {
		return Agent{}, &NotFoundError{Kind: "agent", ID: id}
	}
	return a.clone(), nil
}

// ByRole returns agents with role in registration order.
func (d *Directory) ByRole(role Role) []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Agent
	for _, id := range d.order {
		if a := d.agents[id]; a.Role == role {
			out = append(out, a.clone())
		}
	}
	return out
}

// All returns every agent in registration order.
func (d *Directory) All() []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Agent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.agents[id].clone())
	}
	return out
}

// IDs returns the sorted agent ids.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := append([]string(nil), d.order...)
	sort.Strings(ids)
	return ids
}

// UpdateContext applies fn to the agent's runtime context under the directory lock.
func (d *Directory) UpdateContext(id string, fn func(*RuntimeContext)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return &NotFoundError{Kind: "agent", ID: id}
	}
	fn(&a.Context)
	return nil
}

// RecordEvent pushes summary onto the agent's recent events.
func (d *Directory) RecordEvent(id, summary string) error {
	d.mu.RLock()
	now := d.now
	d.mu.RUnlock()
	return d.UpdateContext(id, func(c *RuntimeContext) {
		c.AddEvent(Event{Summary: summary, Timestamp: now()})
	})
}

// SetStatus updates work status and current task together.
func (d *Directory) SetStatus(id string, status WorkStatus, currentTask string) error {
	return d.UpdateContext(id, func(c *RuntimeContext) {
		c.WorkStatus = status
		c.CurrentTask = currentTask
	})
}

// SetMood sets the agent's mood tag.
func (d *Directory) SetMood(id, mood string) error {
	return d.UpdateContext(id, func(c *RuntimeContext) {
		c.Mood = mood
	})
}
