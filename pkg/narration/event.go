// Package narration turns work progress and review events into first-person chat
// messages from the agents.
package narration

import (
	"fmt"

	"devteam/pkg/review"
	"devteam/pkg/team"
	"devteam/pkg/work"
)

// Kind is the kind of event being narrated.
type Kind string

const (
	KindTaskStarted     Kind = "task_started"
	KindTaskProgress    Kind = "task_progress"
	KindTaskCompleted   Kind = "task_completed"
	KindTaskBlocked     Kind = "task_blocked"
	KindReviewStarted   Kind = "review_started"
	KindReviewSubmitted Kind = "review_submitted"
	KindReviewFailed    Kind = "review_failed"
	KindAlreadyReviewed Kind = "already_reviewed"
	KindMergeBlocked    Kind = "merge_blocked"
	KindMergePreparing  Kind = "merge_preparing"
	KindMerged          Kind = "merged"
	KindMergeFailed     Kind = "merge_failed"
)

// Event is something an agent should tell the team about.
type Event struct {
	Kind             Kind
	TaskTitle        string
	Status           string
	Activity         string
	Progress         int
	Repository       string
	PRNumber         int
	Approved         bool
	ChangesRequested bool
	Summary          string
	Err              error
}

// IsFailure reports whether the event is an error the team must see verbatim.
func (e Event) IsFailure() bool {
	switch e.Kind {
	case KindTaskBlocked, KindReviewFailed, KindMergeFailed:
		return true
	}
	return false
}

func (e Event) errText() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Fallback is the templated message used when no generated text is available.
func Fallback(ev Event) string {
	switch ev.Kind {
	case KindTaskStarted:
		return fmt.Sprintf("Picking up %q now. Starting with the requirements.", ev.TaskTitle)
	case KindTaskProgress:
		return fmt.Sprintf("%s: %s (%d%%).", ev.TaskTitle, ev.Activity, ev.Progress)
	case KindTaskCompleted:
		if ev.Activity != "" {
			return fmt.Sprintf("Finished %q. %s.", ev.TaskTitle, ev.Activity)
		}
		return fmt.Sprintf("Finished %q.", ev.TaskTitle)
	case KindTaskBlocked:
		return fmt.Sprintf("Error: I'm blocked on %q: %s", ev.TaskTitle, ev.Summary)
	case KindReviewStarted:
		return fmt.Sprintf("Starting my review of PR #%d in %s.", ev.PRNumber, ev.Repository)
	case KindReviewSubmitted:
		switch {
		case ev.ChangesRequested:
			return fmt.Sprintf("I've requested changes on PR #%d: %s", ev.PRNumber, ev.Summary)
		case ev.Approved:
			return fmt.Sprintf("Approved PR #%d: %s", ev.PRNumber, ev.Summary)
		default:
			return fmt.Sprintf("Left some comments on PR #%d: %s", ev.PRNumber, ev.Summary)
		}
	case KindAlreadyReviewed:
		switch {
		case ev.ChangesRequested:
			return fmt.Sprintf("I already reviewed PR #%d and asked for changes: %s", ev.PRNumber, ev.Summary)
		case ev.Approved:
			return fmt.Sprintf("I already reviewed PR #%d and approved it: %s", ev.PRNumber, ev.Summary)
		default:
			return fmt.Sprintf("I already left comments on PR #%d: %s", ev.PRNumber, ev.Summary)
		}
	case KindReviewFailed:
		return fmt.Sprintf("Error: I couldn't review PR #%d in %s: %s", ev.PRNumber, ev.Repository, ev.errText())
	case KindMergeBlocked:
		return fmt.Sprintf("Holding off on merging PR #%d since changes were requested.", ev.PRNumber)
	case KindMergePreparing:
		return fmt.Sprintf("PR #%d has what it needs. Preparing to merge it into %s.", ev.PRNumber, ev.Repository)
	case KindMerged:
		return fmt.Sprintf("Merged PR #%d into %s.", ev.PRNumber, ev.Repository)
	case KindMergeFailed:
		return fmt.Sprintf("Error: merging PR #%d in %s failed: %s", ev.PRNumber, ev.Repository, ev.errText())
	}
	return ev.Summary
}

// moodFor returns the mood an event leaves the agent in, or "" to keep the current one.
func moodFor(ev Event) string {
	switch ev.Kind {
	case KindTaskStarted, KindTaskProgress, KindReviewStarted:
		return team.MoodFocused
	case KindTaskCompleted, KindMerged:
		return team.MoodHappy
	case KindTaskBlocked, KindMergeFailed:
		return team.MoodStressed
	case KindReviewFailed, KindMergeBlocked:
		return team.MoodConcerned
	case KindReviewSubmitted:
		if ev.ChangesRequested {
			return team.MoodConcerned
		}
		return team.MoodHappy
	}
	return ""
}

// recordsEvent reports whether the narrator adds the event to the agent's recent
// history. Task events are recorded by the work executor.
func recordsEvent(k Kind) bool {
	switch k {
	case KindTaskStarted, KindTaskProgress, KindTaskCompleted, KindTaskBlocked:
		return false
	}
	return true
}

// FromAnnouncement converts a review pipeline event.
func FromAnnouncement(a review.Announcement) Event {
	ev := Event{
		Repository:       a.Request.Repository,
		PRNumber:         a.Request.PRNumber,
		TaskTitle:        a.Request.Title,
		Approved:         a.Verdict.Approved,
		ChangesRequested: a.Verdict.ChangesRequested,
		Summary:          a.Verdict.Summary,
		Err:              a.Err,
	}
	switch a.Kind {
	case review.EventReviewStarted:
		ev.Kind = KindReviewStarted
	case review.EventReviewSubmitted:
		ev.Kind = KindReviewSubmitted
	case review.EventReviewFailed:
		ev.Kind = KindReviewFailed
	case review.EventAlreadyReviewed:
		ev.Kind = KindAlreadyReviewed
	case review.EventMergeBlocked:
		ev.Kind = KindMergeBlocked
	case review.EventMergePreparing:
		ev.Kind = KindMergePreparing
	case review.EventMerged:
		ev.Kind = KindMerged
	case review.EventMergeFailed:
		ev.Kind = KindMergeFailed
	}
	return ev
}

// FromUpdate converts a work update given the last narrated status of the same item
// ("" when nothing was narrated yet). ok is false when the update only moves progress
// within a status.
func FromUpdate(u work.Update, last work.Status) (ev Event, ok bool) {
	ev = Event{
		TaskTitle: u.TaskTitle,
		Status:    string(u.Status),
		Activity:  u.Activity,
		Progress:  u.Progress,
		Summary:   u.Blocker,
	}
	if ev.TaskTitle == "" {
		ev.TaskTitle = u.TaskID
	}
	switch {
	case u.Blocker != "":
		ev.Kind = KindTaskBlocked
	case u.Status == work.StatusCompleted:
		ev.Kind = KindTaskCompleted
	case u.Status == last:
		return ev, false
	case last == "" && u.Status == work.StatusPlanning:
		ev.Kind = KindTaskStarted
	default:
		ev.Kind = KindTaskProgress
	}
	return ev, true
}
