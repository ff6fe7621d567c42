package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestOps(t *testing.T) *DatabaseOperations {
	t.Helper()
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatabaseOperations(db, "test-session")
}

func TestInitializeDatabaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := InitializeDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitializeDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestChatMessages(t *testing.T) {
	ops := createTestOps(t)
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, ops.InsertChatMessage(&ChatMessage{
			ID: text, Channel: "general", Author: "alex-senior-dev", Text: text, PostType: "chat",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, ops.InsertChatMessage(&ChatMessage{ID: "x", Channel: "random", Author: "a", Text: "x", CreatedAt: base}))

	msgs, err := ops.ListChatMessages("general", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
	assert.Equal(t, base.Add(2*time.Second), msgs[1].CreatedAt)

	all, err := ops.ListChatMessages("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestWorkItems(t *testing.T) {
	ops := createTestOps(t)

	rec := &WorkRecord{AgentID: "alex-senior-dev", ProjectID: "p", TaskID: "api", Status: "coding", Progress: 40, Attempt: 1}
	require.NoError(t, ops.UpsertWorkItem(rec))

	rec.Progress = 70
	rec.Blockers = []string{"waiting on design"}
	require.NoError(t, ops.UpsertWorkItem(rec))

	got, err := ops.GetWorkItem("alex-senior-dev")
	require.NoError(t, err)
	assert.Equal(t, 70, got.Progress)
	assert.Equal(t, []string{"waiting on design"}, got.Blockers)
	assert.Empty(t, got.Files)

	_, err = ops.GetWorkItem("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := ops.ListWorkItems()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReviewsAndVerdicts(t *testing.T) {
	ops := createTestOps(t)

	require.NoError(t, ops.UpsertReview(&ReviewRecord{
		Repository: "main-app", PRNumber: 42, Author: "alex-senior-dev",
		Reviewers: []string{"sam-qa", "jordan-pm"}, Status: "in_review",
	}))
	require.NoError(t, ops.UpsertReview(&ReviewRecord{
		Repository: "main-app", PRNumber: 42, Author: "alex-senior-dev",
		Reviewers: []string{"sam-qa", "jordan-pm"}, Status: "merged",
	}))

	r, err := ops.GetReview("main-app", 42)
	require.NoError(t, err)
	assert.Equal(t, "merged", r.Status)
	assert.Equal(t, []string{"sam-qa", "jordan-pm"}, r.Reviewers)

	_, err = ops.GetReview("main-app", 7)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := ops.InsertVerdict(&VerdictRecord{Repository: "main-app", PRNumber: 42, Reviewer: "sam-qa", Approved: true})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = ops.InsertVerdict(&VerdictRecord{Repository: "main-app", PRNumber: 42, Reviewer: "sam-qa", ChangesRequested: true})
	require.NoError(t, err)
	assert.False(t, stored)

	verdicts, err := ops.ListVerdicts("main-app", 42)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Approved)
	assert.False(t, verdicts[0].ChangesRequested)
}

func TestTaskStatuses(t *testing.T) {
	ops := createTestOps(t)
	require.NoError(t, ops.UpsertTaskStatus(&TaskRecord{ProjectID: "p", TaskID: "b", Status: "todo"}))
	require.NoError(t, ops.UpsertTaskStatus(&TaskRecord{ProjectID: "p", TaskID: "a", Status: "in-progress", Assignee: "alex-senior-dev"}))
	require.NoError(t, ops.UpsertTaskStatus(&TaskRecord{ProjectID: "p", TaskID: "a", Status: "done", Assignee: "alex-senior-dev"}))

	list, err := ops.ListTaskStatuses("p")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].TaskID)
	assert.Equal(t, "done", list[0].Status)
}

func TestWorkerDrainsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.db")
	w, err := Open(path, "s1", `{}`)
	require.NoError(t, err)

	PersistChatMessage(&ChatMessage{ID: "m1", Channel: "general", Author: "a", Text: "hi"}, w.Channel())
	PersistWorkItem(&WorkRecord{AgentID: "a", TaskID: "t", Status: "planning"}, w.Channel())
	PersistWorkItem(&WorkRecord{}, w.Channel())
	PersistVerdict(&VerdictRecord{Repository: "r", PRNumber: 1, Reviewer: "q", Approved: true}, w.Channel())
	PersistReview(&ReviewRecord{Repository: "r", PRNumber: 1, Status: "approved"}, w.Channel())
	PersistTaskStatus(&TaskRecord{ProjectID: "p", TaskID: "t", Status: "review"}, w.Channel())
	PersistChatMessage(nil, nil)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	db, err := InitializeDatabase(path)
	require.NoError(t, err)
	defer db.Close()
	ops := NewDatabaseOperations(db, "s1")

	msgs, err := ops.ListChatMessages("general", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	work, err := ops.ListWorkItems()
	require.NoError(t, err)
	assert.Len(t, work, 1)

	verdicts, err := ops.ListVerdicts("r", 1)
	require.NoError(t, err)
	assert.Len(t, verdicts, 1)

	review, err := ops.GetReview("r", 1)
	require.NoError(t, err)
	assert.Equal(t, "approved", review.Status)

	tasks, err := ops.ListTaskStatuses("p")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
