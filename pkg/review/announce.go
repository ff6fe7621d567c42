package review

import (
	"context"

	"devteam/pkg/llm"
	"devteam/pkg/team"
)

// EventKind names a pipeline event worth telling the team about.
type EventKind string

const (
	EventReviewStarted   EventKind = "review_started"
	EventReviewSubmitted EventKind = "review_submitted"
	EventReviewFailed    EventKind = "review_failed"
	EventAlreadyReviewed EventKind = "already_reviewed"
	EventMergeBlocked    EventKind = "merge_blocked"
	EventMergePreparing  EventKind = "merge_preparing"
	EventMerged          EventKind = "merged"
	EventMergeFailed     EventKind = "merge_failed"
)

// Announcement is a pipeline event from one reviewer's point of view.
type Announcement struct {
	Kind     EventKind
	Reviewer team.Agent
	Request  Request
	Verdict  llm.Verdict
	Err      error
}

// Announcer turns pipeline events into chat messages. Announce must not block.
type Announcer interface {
	Announce(ctx context.Context, a Announcement)
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(ctx context.Context, a Announcement)

func (f AnnouncerFunc) Announce(ctx context.Context, a Announcement) {
	f(ctx, a)
}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, Announcement) {}
