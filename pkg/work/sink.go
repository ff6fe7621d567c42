package work

import (
	"errors"
	"time"

	"devteam/pkg/forge"
	"devteam/pkg/project"
	"devteam/pkg/team"
)

// Item is a queued (agent, task, project) work item.
type Item struct {
	AgentID   string `json:"agent_id"`
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id"`
}

// Update is the (task, status, activity, progress) tuple published on every transition.
type Update struct {
	AgentID   string    `json:"agent_id"`
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	TaskTitle string    `json:"task_title"`
	Status    Status    `json:"status"`
	Activity  string    `json:"activity"`
	Progress  int       `json:"progress"`
	Blocker   string    `json:"blocker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives updates. Publish must not block on slow consumers.
type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

func (f SinkFunc) Publish(u Update) { f(u) }

// Sinks fans an update out to several sinks in order.
type Sinks []Sink

func (s Sinks) Publish(u Update) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(u)
		}
	}
}

// IsNotFound reports whether err is a missing agent, task, project, work record or PR.
func IsNotFound(err error) bool {
	var teamErr *team.NotFoundError
	var projectErr *project.NotFoundError
	var workErr *NotFoundError
	return errors.As(err, &teamErr) || errors.As(err, &projectErr) ||
		errors.As(err, &workErr) || errors.Is(err, forge.ErrNotFound)
}
