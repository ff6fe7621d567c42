package persistence

import (
	"time"

	"github.com/google/uuid"
)

// Session is one orchestrator run.
type Session struct {
	StartedAt  time.Time `json:"started_at"`
	ID         string    `json:"id"`
	ConfigJSON string    `json:"config_json,omitempty"`
}

// ChatMessage is a journaled chat post.
type ChatMessage struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	PostType  string    `json:"post_type"`
}

// WorkRecord is the latest snapshot of an agent's work item.
type WorkRecord struct {
	UpdatedAt time.Time `json:"updated_at"`
	AgentID   string    `json:"agent_id"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Blockers  []string  `json:"blockers"`
	Files     []string  `json:"files"`
	Progress  int       `json:"progress"`
	Attempt   int       `json:"attempt"`
}

// ReviewRecord is the latest snapshot of a pull request review.
type ReviewRecord struct {
	UpdatedAt  time.Time `json:"updated_at"`
	Repository string    `json:"repository"`
	ProjectID  string    `json:"project_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Author     string    `json:"author"`
	Status     string    `json:"status"`
	Reviewers  []string  `json:"reviewers"`
	PRNumber   int       `json:"pr_number"`
}

// VerdictRecord is one reviewer's verdict on a pull request.
type VerdictRecord struct {
	CreatedAt        time.Time `json:"created_at"`
	Repository       string    `json:"repository"`
	Reviewer         string    `json:"reviewer"`
	Summary          string    `json:"summary"`
	Body             string    `json:"body"`
	PRNumber         int       `json:"pr_number"`
	Approved         bool      `json:"approved"`
	ChangesRequested bool      `json:"changes_requested"`
	Fallback         bool      `json:"fallback"`
}

// TaskRecord is the latest status of a project task.
type TaskRecord struct {
	UpdatedAt time.Time `json:"updated_at"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Assignee  string    `json:"assignee,omitempty"`
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
