package forge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostErrorUnwrap(t *testing.T) {
	err := &HostError{Op: "merge", Repo: "shop", PR: 4, Err: ErrAlreadyMerged}

	assert.True(t, errors.Is(err, ErrAlreadyMerged))
	assert.Equal(t, "merge shop#4: already merged", err.Error())
	assert.Equal(t, "create branch shop: not found", (&HostError{Op: "create branch", Repo: "shop", Err: ErrNotFound}).Error())
}

func TestStatusTallies(t *testing.T) {
	s := &Status{Reviews: []Review{
		{Reviewer: "qa", Event: ReviewApprove},
		{Reviewer: "manager", Event: ReviewComment},
		{Reviewer: "developer", Event: ReviewApprove},
	}}
	assert.Equal(t, 2, s.Approvals())
	assert.False(t, s.ChangesRequested())

	s.Reviews = append(s.Reviews, Review{Reviewer: "designer", Event: ReviewRequestChanges})
	assert.True(t, s.ChangesRequested())
}

func TestPullRequestIsMerged(t *testing.T) {
	assert.False(t, (&PullRequest{}).IsMerged())
	assert.True(t, (&PullRequest{Merged: true}).IsMerged())
}
