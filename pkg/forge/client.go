// Package forge defines the repository host used for branches, pull requests,
// reviews and merges. Implementations live in gitea (HTTP) and memforge (in-memory).
package forge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider represents a repository host type.
type Provider string

// Provider constants.
const (
	ProviderGitea  Provider = "gitea"
	ProviderMemory Provider = "memory"
)

// Merge methods.
const (
	MergeSquash = "squash"
	MergeMerge  = "merge"
	MergeRebase = "rebase"
)

// Sentinel errors. Hosts wrap them in *HostError.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotMergeable     = errors.New("not mergeable")
	ErrAlreadyMerged    = errors.New("already merged")
)

// HostError is a failed repository host call.
type HostError struct {
	Op   string
	Repo string
	PR   int
	Err  error
}

func (e *HostError) Error() string {
	if e.PR > 0 {
		return fmt.Sprintf("%s %s#%d: %v", e.Op, e.Repo, e.PR, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Repo, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// ReviewEvent is the verdict submitted with a review.
type ReviewEvent string

// Review events, using the Gitea API names.
const (
	ReviewApprove        ReviewEvent = "APPROVED"
	ReviewRequestChanges ReviewEvent = "REQUEST_CHANGES"
	ReviewComment        ReviewEvent = "COMMENT"
)

// PullRequest represents a pull request. Field names are normalized across hosts.
//
//nolint:govet // Logical field grouping preferred over memory optimization
type PullRequest struct {
	Number     int        `json:"number"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	State      string     `json:"state"` // open, closed
	HeadBranch string     `json:"head_branch"`
	BaseBranch string     `json:"base_branch"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`
	Merged     bool       `json:"merged"`
	Mergeable  bool       `json:"mergeable"`
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.Merged || pr.MergedAt != nil
}

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	// Title is required.
	Title string
	Body  string
	// Head is the source branch (required).
	Head string
	// Base is the target branch (defaults to "main").
	Base string
}

// MergeOptions contains options for merging a pull request.
type MergeOptions struct {
	// Method is "merge", "squash" or "rebase". Default is "squash".
	Method        string
	CommitMessage string
	DeleteBranch  bool
}

// File is content committed to a branch.
type File struct {
	Path    string
	Content string
}

// ChangedFile is one entry of a PR change-set.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"` // added, modified, deleted
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Review is a submitted review.
type Review struct {
	Reviewer string      `json:"reviewer"`
	Event    ReviewEvent `json:"event"`
	Body     string      `json:"body"`
}

// Status is the aggregate state of a PR.
type Status struct {
	State     string   `json:"state"`
	Mergeable bool     `json:"mergeable"`
	Merged    bool     `json:"merged"`
	Reviews   []Review `json:"reviews"`
}

// Approvals counts APPROVED reviews.
func (s *Status) Approvals() int {
	n := 0
	for _, r := range s.Reviews {
		if r.Event == ReviewApprove {
			n++
		}
	}
	return n
}

// ChangesRequested reports whether any review requested changes.
func (s *Status) ChangesRequested() bool {
	for _, r := range s.Reviews {
		if r.Event == ReviewRequestChanges {
			return true
		}
	}
	return false
}

// Host is the repository host consumed by the work executor and review pipeline.
// Failed calls return a *HostError wrapping one of the sentinel errors where one applies.
type Host interface {
	Provider() Provider

	CreateBranch(ctx context.Context, repo, branch, base string) error
	CommitFiles(ctx context.Context, repo, branch, message string, files []File) error
	CreatePR(ctx context.Context, repo string, opts PRCreateOptions) (*PullRequest, error)

	GetChangedFiles(ctx context.Context, repo string, pr int) ([]ChangedFile, error)
	SubmitReview(ctx context.Context, repo string, pr int, review Review) error
	GetStatus(ctx context.Context, repo string, pr int) (*Status, error)
	Merge(ctx context.Context, repo string, pr int, opts MergeOptions) error
}
