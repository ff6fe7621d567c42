// Package work runs one (agent, task) work item through its lifecycle and keeps the
// per-attempt AgentWork records.
package work

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of an AgentWork record.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusCoding    Status = "coding"
	StatusTesting   Status = "testing"
	StatusReviewing Status = "reviewing"
	StatusCompleted Status = "completed"
)

var (
	// ErrInvalidTransition is returned when the transition table forbids a move.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrProgressRegression is returned when an update would lower progress within an attempt.
	ErrProgressRegression = errors.New("progress cannot decrease")
)

// TransitionTable lists the states reachable from each state.
type TransitionTable map[Status][]Status

// ValidTransitions is the AgentWork lifecycle. Any state may also fall back to planning
// with a blocker (see IsValidTransition).
//
//nolint:gochecknoglobals // fixed lifecycle table
var ValidTransitions = TransitionTable{
	StatusPlanning:  {StatusCoding, StatusTesting, StatusReviewing},
	StatusCoding:    {StatusTesting, StatusReviewing, StatusCompleted},
	StatusTesting:   {StatusReviewing, StatusCompleted},
	StatusReviewing: {StatusCompleted},
	StatusCompleted: {},
}

// IsValidTransition reports whether from → to is allowed. Staying in the same state
// is allowed so progress can advance within a step.
func (t TransitionTable) IsValidTransition(from, to Status) bool {
	if from == to || to == StatusPlanning {
		return true
	}
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
}
