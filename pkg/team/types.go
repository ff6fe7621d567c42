// Package team holds the agent catalog and each agent's mutable runtime context.
package team

import (
	"fmt"
	"strings"
	"time"
)

// Role is the job an agent performs on the team.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleDesigner  Role = "designer"
	RoleQA        Role = "qa"
	RoleManager   Role = "manager"
	RoleAnalyst   Role = "analyst"
)

// IsValid checks if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleDeveloper, RoleDesigner, RoleQA, RoleManager, RoleAnalyst:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role: %s", s)
	}
	return r, nil
}

// WorkStatus is what an agent is doing right now.
type WorkStatus string

const (
	StatusAvailable     WorkStatus = "available"
	StatusWorking       WorkStatus = "working"
	StatusCollaborating WorkStatus = "collaborating"
)

// Mood tags drive the tone of narration.
const (
	MoodNeutral   = "neutral"
	MoodFocused   = "focused"
	MoodHappy     = "happy"
	MoodConcerned = "concerned"
	MoodStressed  = "stressed"
)

// MaxRecentEvents caps RuntimeContext.RecentEvents.
const MaxRecentEvents = 5

// Event is one entry in an agent's recent history.
type Event struct {
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// RuntimeContext is the mutable part of an agent.
type RuntimeContext struct {
	CurrentTask  string     `json:"current_task,omitempty"`
	WorkStatus   WorkStatus `json:"work_status"`
	Mood         string     `json:"mood"`
	RecentEvents []Event    `json:"recent_events"` // newest first
}

// AddEvent puts e at the front and drops the oldest entry past MaxRecentEvents.
func (c *RuntimeContext) AddEvent(e Event) {
	events := make([]Event, 0, MaxRecentEvents)
	events = append(events, e)
	events = append(events, c.RecentEvents...)
	if len(events) > MaxRecentEvents {
		events = events[:MaxRecentEvents]
	}
	c.RecentEvents = events
}

func (c RuntimeContext) clone() RuntimeContext {
	c.RecentEvents = append([]Event(nil), c.RecentEvents...)
	return c
}

// Agent is a simulated team member.
type Agent struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Role        Role           `json:"role"`
	Personality string         `json:"personality"`
	Expertise   []string       `json:"expertise"`
	Context     RuntimeContext `json:"context"`
}

// IsJunior reports whether the agent id denotes a junior role, e.g. "junior-developer".
func (a Agent) IsJunior() bool {
	return strings.Contains(strings.ToLower(a.ID), "junior")
}

// IsHuman reports whether the record stands in for a human requester.
func (a Agent) IsHuman() bool {
	return a.Role == ""
}

func (a Agent) clone() Agent {
	a.Expertise = append([]string(nil), a.Expertise...)
	a.Context = a.Context.clone()
	return a
}

// HumanAuthor builds the author record used when a person, not an agent, opens a review.
func HumanAuthor(userID string) Agent {
	return Agent{ID: userID, Name: userID}
}

// NotFoundError reports a missing agent, task, project or pull request.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
