package mocks

import (
	"context"
	"fmt"
	"sync"

	"devteam/pkg/forge"
)

// MockHost implements forge.Host for testing. Safe for concurrent use.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockHost struct {
	// Function handlers for each method
	CreateBranchFunc    func(ctx context.Context, repo, branch, base string) error
	CommitFilesFunc     func(ctx context.Context, repo, branch, message string, files []forge.File) error
	CreatePRFunc        func(ctx context.Context, repo string, opts forge.PRCreateOptions) (*forge.PullRequest, error)
	GetChangedFilesFunc func(ctx context.Context, repo string, pr int) ([]forge.ChangedFile, error)
	SubmitReviewFunc    func(ctx context.Context, repo string, pr int, review forge.Review) error
	GetStatusFunc       func(ctx context.Context, repo string, pr int) (*forge.Status, error)
	MergeFunc           func(ctx context.Context, repo string, pr int, opts forge.MergeOptions) error

	mu sync.Mutex

	// Call tracking
	CreateBranchCalls    []CreateBranchCall
	CommitFilesCalls     []CommitFilesCall
	CreatePRCalls        []forge.PRCreateOptions
	GetChangedFilesCalls []PRCall
	SubmitReviewCalls    []SubmitReviewCall
	GetStatusCalls       []PRCall
	MergeCalls           []MergeCall
}

// CreateBranchCall records the parameters of a CreateBranch call.
type CreateBranchCall struct {
	Repo   string
	Branch string
	Base   string
}

// CommitFilesCall records the parameters of a CommitFiles call.
type CommitFilesCall struct {
	Repo    string
	Branch  string
	Message string
	Files   []forge.File
}

// PRCall records a call addressed to one pull request.
type PRCall struct {
	Repo string
	PR   int
}

// SubmitReviewCall records the parameters of a SubmitReview call.
type SubmitReviewCall struct {
	Repo   string
	PR     int
	Review forge.Review
}

// MergeCall records the parameters of a Merge call.
type MergeCall struct {
	Repo string
	PR   int
	Opts forge.MergeOptions
}

// NewMockHost creates a mock host whose calls succeed. CreatePR numbers PRs from 1;
// GetStatus reports an open, mergeable PR carrying every submitted review.
func NewMockHost() *MockHost {
	m := &MockHost{}
	next := 0

	m.CreateBranchFunc = func(context.Context, string, string, string) error { return nil }
	m.CommitFilesFunc = func(context.Context, string, string, string, []forge.File) error { return nil }
	m.CreatePRFunc = func(_ context.Context, repo string, opts forge.PRCreateOptions) (*forge.PullRequest, error) {
		next++
		return &forge.PullRequest{
			Number:     next,
			URL:        fmt.Sprintf("https://forge.example/%s/pulls/%d", repo, next),
			Title:      opts.Title,
			Body:       opts.Body,
			State:      "open",
			HeadBranch: opts.Head,
			BaseBranch: opts.Base,
			Mergeable:  true,
		}, nil
	}
	m.GetChangedFilesFunc = func(context.Context, string, int) ([]forge.ChangedFile, error) {
		return []forge.ChangedFile{{Filename: "main.go", Status: "modified", Additions: 3, Deletions: 1, Patch: "+fix"}}, nil
	}
	m.SubmitReviewFunc = func(context.Context, string, int, forge.Review) error { return nil }
	m.GetStatusFunc = func(_ context.Context, repo string, pr int) (*forge.Status, error) {
		return &forge.Status{State: "open", Mergeable: true, Reviews: m.reviewsFor(repo, pr)}, nil
	}
	m.MergeFunc = func(context.Context, string, int, forge.MergeOptions) error { return nil }
	return m
}

func (m *MockHost) reviewsFor(repo string, pr int) []forge.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []forge.Review
	for _, c := range m.SubmitReviewCalls {
		if c.Repo == repo && c.PR == pr {
			out = append(out, c.Review)
		}
	}
	return out
}

func (m *MockHost) Provider() forge.Provider {
	return forge.ProviderMemory
}

func (m *MockHost) CreateBranch(ctx context.Context, repo, branch, base string) error {
	m.mu.Lock()
	m.CreateBranchCalls = append(m.CreateBranchCalls, CreateBranchCall{Repo: repo, Branch: branch, Base: base})
	fn := m.CreateBranchFunc
	m.mu.Unlock()
	return fn(ctx, repo, branch, base)
}

func (m *MockHost) CommitFiles(ctx context.Context, repo, branch, message string, files []forge.File) error {
	m.mu.Lock()
	m.CommitFilesCalls = append(m.CommitFilesCalls, CommitFilesCall{Repo: repo, Branch: branch, Message: message, Files: files})
	fn := m.CommitFilesFunc
	m.mu.Unlock()
	return fn(ctx, repo, branch, message, files)
}

func (m *MockHost) CreatePR(ctx context.Context, repo string, opts forge.PRCreateOptions) (*forge.PullRequest, error) {
	m.mu.Lock()
	m.CreatePRCalls = append(m.CreatePRCalls, opts)
	fn := m.CreatePRFunc
	m.mu.Unlock()
	return fn(ctx, repo, opts)
}

func (m *MockHost) GetChangedFiles(ctx context.Context, repo string, pr int) ([]forge.ChangedFile, error) {
	m.mu.Lock()
	m.GetChangedFilesCalls = append(m.GetChangedFilesCalls, PRCall{Repo: repo, PR: pr})
	fn := m.GetChangedFilesFunc
	m.mu.Unlock()
	return fn(ctx, repo, pr)
}

func (m *MockHost) SubmitReview(ctx context.Context, repo string, pr int, review forge.Review) error {
	m.mu.Lock()
	fn := m.SubmitReviewFunc
	m.mu.Unlock()
	if err := fn(ctx, repo, pr, review); err != nil {
		return err
	}
	m.mu.Lock()
	m.SubmitReviewCalls = append(m.SubmitReviewCalls, SubmitReviewCall{Repo: repo, PR: pr, Review: review})
	m.mu.Unlock()
	return nil
}

func (m *MockHost) GetStatus(ctx context.Context, repo string, pr int) (*forge.Status, error) {
	m.mu.Lock()
	m.GetStatusCalls = append(m.GetStatusCalls, PRCall{Repo: repo, PR: pr})
	fn := m.GetStatusFunc
	m.mu.Unlock()
	return fn(ctx, repo, pr)
}

func (m *MockHost) Merge(ctx context.Context, repo string, pr int, opts forge.MergeOptions) error {
	m.mu.Lock()
	m.MergeCalls = append(m.MergeCalls, MergeCall{Repo: repo, PR: pr, Opts: opts})
	fn := m.MergeFunc
	m.mu.Unlock()
	return fn(ctx, repo, pr, opts)
}

// MergeCount returns the number of Merge calls so far.
func (m *MockHost) MergeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MergeCalls)
}

// Reviews returns the successfully submitted reviews.
func (m *MockHost) Reviews() []SubmitReviewCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitReviewCall(nil), m.SubmitReviewCalls...)
}

// Snapshot returns copies of the branch, commit and PR calls.
func (m *MockHost) Snapshot() (branches []CreateBranchCall, commits []CommitFilesCall, prs []forge.PRCreateOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CreateBranchCall(nil), m.CreateBranchCalls...),
		append([]CommitFilesCall(nil), m.CommitFilesCalls...),
		append([]forge.PRCreateOptions(nil), m.CreatePRCalls...)
}
