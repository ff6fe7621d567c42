// Package project holds project task graphs: tasks, their dependencies and lifecycle status.
package project

import "fmt"

// TaskType classifies a task.
type TaskType string

const (
	TypeFeature       TaskType = "feature"
	TypeBug           TaskType = "bug"
	TypeDesign        TaskType = "design"
	TypeTest          TaskType = "test"
	TypeDocumentation TaskType = "documentation"
)

// IsValid checks the task type.
func (t TaskType) IsValid() bool {
	switch t {
	case TypeFeature, TypeBug, TypeDesign, TypeTest, TypeDocumentation:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid checks the priority.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Status is the task lifecycle status.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// IsValid checks the status.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Task is one unit of project work. Everything except Status is fixed once the graph is built.
type Task struct {
	ID             string   `yaml:"id" json:"id"`
	Title          string   `yaml:"title" json:"title"`
	Description    string   `yaml:"description" json:"description"`
	Type           TaskType `yaml:"type" json:"type"`
	Priority       Priority `yaml:"priority" json:"priority"`
	EstimatedHours float64  `yaml:"estimated_hours" json:"estimated_hours"`
	Dependencies   []string `yaml:"dependencies" json:"dependencies"`
	// Assignee is an agent id or a human user id.
	Assignee string `yaml:"assignee" json:"assignee"`
	Status   Status `yaml:"status" json:"status"`
}

func (t Task) clone() Task {
	t.Dependencies = append([]string(nil), t.Dependencies...)
	return t
}

// Project groups tasks against one repository.
type Project struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Repository string `yaml:"repository" json:"repository"`
	Tasks      []Task `yaml:"tasks" json:"tasks"`
}

// NotFoundError reports a missing task or project.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
