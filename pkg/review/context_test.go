package review

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextStoreFirstVerdictWins(t *testing.T) {
	s := NewContextStore()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s.SetNow(func() time.Time { return now })

	var seen []Status
	s.SetListener(func(c Context) { seen = append(seen, c.Status) })

	c, created := s.Create(Context{PRNumber: 42, Repository: "my-repo", Channel: "general", Requester: "pat"})
	require.True(t, created)
	assert.Equal(t, StatusInReview, c.Status)
	assert.Equal(t, now, c.StartedAt)

	_, created = s.Create(Context{PRNumber: 42, Repository: "other"})
	assert.False(t, created)

	c, err := s.RecordVerdict(42, "qa", ReviewerResult{Approved: true, Summary: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, c.Status)

	_, err = s.RecordVerdict(42, "qa", ReviewerResult{ChangesRequested: true, Summary: "wait"})
	assert.ErrorIs(t, err, ErrVerdictRecorded)

	c, err = s.RecordVerdict(42, "developer", ReviewerResult{ChangesRequested: true, Summary: "needs tests"})
	require.NoError(t, err)
	assert.Equal(t, StatusChangesRequested, c.Status)
	assert.True(t, s.ChangesRequested(42))

	got, ok := s.Get(42)
	require.True(t, ok)
	assert.Equal(t, "my-repo", got.Repository)
	assert.Len(t, got.Reviewers, 2)
	assert.Equal(t, "looks good", got.Reviewers["qa"].Summary)
	assert.Equal(t, now, got.Reviewers["qa"].Timestamp)

	assert.Equal(t, []Status{StatusInReview, StatusApproved, StatusChangesRequested}, seen)
}

func TestContextStoreMergeStatusIsSticky(t *testing.T) {
	s := NewContextStore()
	s.Create(Context{PRNumber: 7, Repository: "r"})
	_, err := s.SetStatus(7, StatusMerged)
	require.NoError(t, err)

	c, err := s.RecordVerdict(7, "qa", ReviewerResult{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, StatusMerged, c.Status)
}

func TestContextStoreUnknownPR(t *testing.T) {
	s := NewContextStore()
	_, ok := s.Get(1)
	assert.False(t, ok)

	_, err := s.RecordVerdict(1, "qa", ReviewerResult{})
	assert.True(t, errors.Is(err, ErrNoContext))
	_, err = s.SetStatus(1, StatusMerged)
	assert.ErrorIs(t, err, ErrNoContext)
	assert.False(t, s.ChangesRequested(1))
}

func TestContextStoreListOrdered(t *testing.T) {
	s := NewContextStore()
	for _, pr := range []int{9, 2, 5} {
		s.Create(Context{PRNumber: pr, Repository: "r"})
	}
	var got []int
	for _, c := range s.List() {
		got = append(got, c.PRNumber)
	}
	assert.Equal(t, []int{2, 5, 9}, got)
}
