package orch

import (
	"sort"

	"devteam/pkg/persistence"
	"devteam/pkg/review"
	"devteam/pkg/work"
)

func workRecord(w work.AgentWork) *persistence.WorkRecord {
	files := make([]string, 0, len(w.Files))
	for _, f := range w.Files {
		files = append(files, f.Path)
	}
	return &persistence.WorkRecord{
		UpdatedAt: w.UpdatedAt,
		AgentID:   w.AgentID,
		ProjectID: w.ProjectID,
		TaskID:    w.TaskID,
		Status:    string(w.Status),
		Blockers:  append([]string(nil), w.Blockers...),
		Files:     files,
		Progress:  w.Progress,
		Attempt:   w.Attempt,
	}
}

// persistReview journals the review snapshot and every verdict recorded so far.
// Verdict inserts are idempotent per reviewer.
func persistReview(c review.Context, ch chan<- *persistence.Request) {
	if ch == nil {
		return
	}
	reviewers := make([]string, 0, len(c.Reviewers))
	for id := range c.Reviewers {
		reviewers = append(reviewers, id)
	}
	sort.Strings(reviewers)

	persistence.PersistReview(&persistence.ReviewRecord{
		UpdatedAt:  c.UpdatedAt,
		Repository: c.Repository,
		ProjectID:  c.ProjectID,
		TaskID:     c.TaskID,
		Author:     c.Requester,
		Status:     string(c.Status),
		Reviewers:  reviewers,
		PRNumber:   c.PRNumber,
	}, ch)

	for _, id := range reviewers {
		r := c.Reviewers[id]
		persistence.PersistVerdict(&persistence.VerdictRecord{
			CreatedAt:        r.Timestamp,
			Repository:       c.Repository,
			Reviewer:         id,
			Summary:          r.Summary,
			Body:             r.Body,
			PRNumber:         c.PRNumber,
			Approved:         r.Approved,
			ChangesRequested: r.ChangesRequested,
			Fallback:         r.Fallback,
		}, ch)
	}
}
