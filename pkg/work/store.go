package work

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"devteam/pkg/clock"
)

// FileStatus tracks a file through implementation.
type FileStatus string

const (
	FilePlanned   FileStatus = "planned"
	FileWritten   FileStatus = "written"
	FileCommitted FileStatus = "committed"
)

// File is one file touched by a work item.
type File struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
}

// AgentWork is the execution record for one attempt of one agent at one task.
type AgentWork struct {
	AgentID         string    `json:"agent_id"`
	TaskID          string    `json:"task_id"`
	ProjectID       string    `json:"project_id"`
	Attempt         int       `json:"attempt"`
	Status          Status    `json:"status"`
	CurrentActivity string    `json:"current_activity"`
	Progress        int       `json:"progress"`
	Files           []File    `json:"files"`
	Dependencies    []string  `json:"dependencies"`
	Blockers        []string  `json:"blockers"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (w *AgentWork) clone() AgentWork {
	c := *w
	c.Files = append([]File(nil), w.Files...)
	c.Dependencies = append([]string(nil), w.Dependencies...)
	c.Blockers = append([]string(nil), w.Blockers...)
	return c
}

// NotFoundError reports a missing AgentWork record.
type NotFoundError struct {
	AgentID string
	TaskID  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("work record not found: %s/%s", e.AgentID, e.TaskID)
}

// BlockedError is returned by Executor.Execute when the failure is already recorded
// as a blocker on the AgentWork record.
type BlockedError struct {
	AgentID string
	TaskID  string
	Err     error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("execute %s/%s: %v", e.AgentID, e.TaskID, e.Err)
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

func key(agentID, taskID string) string {
	return agentID + "/" + taskID
}

// Store keeps the live AgentWork records for a run. Records are superseded on retry,
// never deleted. Safe for concurrent use; readers receive copies.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*AgentWork
	table    TransitionTable
	clock    clock.Clock
	listener func(AgentWork)
}

// NewStore creates an empty store on clk (nil means the wall clock).
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{records: make(map[string]*AgentWork), table: ValidTransitions, clock: clk}
}

// SetListener registers fn to receive a copy of every record after it changes.
func (s *Store) SetListener(fn func(AgentWork)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Store) notify(w AgentWork) {
	s.mu.RLock()
	fn := s.listener
	s.mu.RUnlock()
	if fn != nil {
		fn(w)
	}
}

// Begin creates a fresh record at planning/0% for item, superseding any previous attempt.
func (s *Store) Begin(item Item, dependencies []string) AgentWork {
	s.mu.Lock()
	now := s.clock.Now()
	attempt := 1
	if prev, ok := s.records[key(item.AgentID, item.TaskID)]; ok {
		attempt = prev.Attempt + 1
	}
	w := &AgentWork{
		AgentID:         item.AgentID,
		TaskID:          item.TaskID,
		ProjectID:       item.ProjectID,
		Attempt:         attempt,
		Status:          StatusPlanning,
		CurrentActivity: "Queued",
		Dependencies:    append([]string(nil), dependencies...),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	s.records[key(item.AgentID, item.TaskID)] = w
	out := w.clone()
	s.mu.Unlock()

	s.notify(out)
	return out
}

func (s *Store) mutate(agentID, taskID string, fn func(w *AgentWork) error) (AgentWork, error) {
	s.mu.Lock()
	w, ok := s.records[key(agentID, taskID)]
	if !ok {
		s.mu.Unlock()
		return AgentWork{}, &NotFoundError{AgentID: agentID, TaskID: taskID}
	}
	if err := fn(w); err != nil {
		s.mu.Unlock()
		return AgentWork{}, err
	}
	w.UpdatedAt = s.clock.Now()
	out := w.clone()
	s.mu.Unlock()

	s.notify(out)
	return out, nil
}

// Transition moves the record to status with the given activity and progress.
// Progress is clamped to [0,100] and may not decrease within an attempt.
func (s *Store) Transition(agentID, taskID string, status Status, activity string, progress int) (AgentWork, error) {
	progress = min(max(progress, 0), 100)
	return s.mutate(agentID, taskID, func(w *AgentWork) error {
		if !s.table.IsValidTransition(w.Status, status) {
			return transitionError(w.Status, status)
		}
		if progress < w.Progress {
			return fmt.Errorf("%w: %s/%s %d → %d", ErrProgressRegression, agentID, taskID, w.Progress, progress)
		}
		w.Status = status
		w.CurrentActivity = activity
		w.Progress = progress
		return nil
	})
}

// Block sends the record back to planning with blocker. Progress is kept.
func (s *Store) Block(agentID, taskID, blocker string) (AgentWork, error) {
	return s.mutate(agentID, taskID, func(w *AgentWork) error {
		w.Status = StatusPlanning
		w.CurrentActivity = "Blocked: " + blocker
		w.Blockers = appendUnique(w.Blockers, blocker)
		return nil
	})
}

// AddBlocker records blocker without changing status.
func (s *Store) AddBlocker(agentID, taskID, blocker string) (AgentWork, error) {
	return s.mutate(agentID, taskID, func(w *AgentWork) error {
		w.Blockers = appendUnique(w.Blockers, blocker)
		return nil
	})
}

// SetFiles replaces the record's file list.
func (s *Store) SetFiles(agentID, taskID string, files []File) (AgentWork, error) {
	return s.mutate(agentID, taskID, func(w *AgentWork) error {
		w.Files = append([]File(nil), files...)
		return nil
	})
}

// Get returns the current record for (agentID, taskID).
func (s *Store) Get(agentID, taskID string) (AgentWork, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.records[key(agentID, taskID)]
	if !ok {
		return AgentWork{}, false
	}
	return w.clone(), true
}

// Latest returns agentID's most recently updated record.
func (s *Store) Latest(agentID string) (AgentWork, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *AgentWork
	for _, w := range s.records {
		if w.AgentID != agentID {
			continue
		}
		if latest == nil || w.UpdatedAt.After(latest.UpdatedAt) {
			latest = w
		}
	}
	if latest == nil {
		return AgentWork{}, false
	}
	return latest.clone(), true
}

// List returns every record ordered by start time, then agent and task id.
func (s *Store) List() []AgentWork {
	s.mu.RLock()
	out := make([]AgentWork, 0, len(s.records))
	for _, w := range s.records {
		out = append(out, w.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return key(out[i].AgentID, out[i].TaskID) < key(out[j].AgentID, out[j].TaskID)
	})
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
