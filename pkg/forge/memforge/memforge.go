// Package memforge is an in-memory forge.Host for demo runs and tests.
package memforge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devteam/pkg/forge"
)

type repository struct {
	branches map[string]map[string]string // branch -> path -> content
	prs      map[int]*pullRequest
	nextPR   int
}

type pullRequest struct {
	pr      forge.PullRequest
	files   []forge.ChangedFile
	reviews []forge.Review
}

// Host is a thread-safe in-memory repository host. Repositories are created on first use
// with a "main" branch. A second merge of the same PR fails with forge.ErrAlreadyMerged.
type Host struct {
	mu         sync.Mutex
	repos      map[string]*repository
	mergeCalls map[string]int
	now        func() time.Time
}

// New returns an empty host.
func New() *Host {
	return &Host{
		repos:      make(map[string]*repository),
		mergeCalls: make(map[string]int),
		now:        time.Now,
	}
}

func key(repo string, pr int) string {
	return fmt.Sprintf("%s#%d", repo, pr)
}

// repoLocked returns repo, creating it if needed. Caller holds h.mu.
func (h *Host) repoLocked(name string) *repository {
	r, ok := h.repos[name]
	if !ok {
		r = &repository{
			branches: map[string]map[string]string{"main": {}},
			prs:      make(map[int]*pullRequest),
			nextPR:   1,
		}
		h.repos[name] = r
	}
	return r
}

func (h *Host) prLocked(op, repo string, number int) (*pullRequest, error) {
	r, ok := h.repos[repo]
	if !ok {
		return nil, &forge.HostError{Op: op, Repo: repo, PR: number, Err: forge.ErrNotFound}
	}
	p, ok := r.prs[number]
	if !ok {
		return nil, &forge.HostError{Op: op, Repo: repo, PR: number, Err: forge.ErrNotFound}
	}
	return p, nil
}

func (h *Host) Provider() forge.Provider {
	return forge.ProviderMemory
}

func (h *Host) CreateBranch(_ context.Context, repo, branch, base string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if base == "" {
		base = "main"
	}
	r := h.repoLocked(repo)
	src, ok := r.branches[base]
	if !ok {
		return &forge.HostError{Op: "create branch", Repo: repo, Err: fmt.Errorf("%w: branch %s", forge.ErrNotFound, base)}
	}
	if _, exists := r.branches[branch]; exists {
		return nil
	}
	files := make(map[string]string, len(src))
	for p, c := range src {
		files[p] = c
	}
	r.branches[branch] = files
	return nil
}

func (h *Host) CommitFiles(_ context.Context, repo, branch, _ string, files []forge.File) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.repoLocked(repo)
	b, ok := r.branches[branch]
	if !ok {
		return &forge.HostError{Op: "commit files", Repo: repo, Err: fmt.Errorf("%w: branch %s", forge.ErrNotFound, branch)}
	}
	for _, f := range files {
		b[f.Path] = f.Content
	}
	return nil
}

func (h *Host) CreatePR(_ context.Context, repo string, opts forge.PRCreateOptions) (*forge.PullRequest, error) {
	if opts.Head == "" || opts.Title == "" {
		return nil, fmt.Errorf("head branch and title are required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.repoLocked(repo)
	head, ok := r.branches[opts.Head]
	if !ok {
		return nil, &forge.HostError{Op: "create PR", Repo: repo, Err: fmt.Errorf("%w: branch %s", forge.ErrNotFound, opts.Head)}
	}
	base := opts.Base
	if base == "" {
		base = "main"
	}

	p := &pullRequest{pr: forge.PullRequest{
		Number:     r.nextPR,
		URL:        fmt.Sprintf("memory://%s/pulls/%d", repo, r.nextPR),
		Title:      opts.Title,
		Body:       opts.Body,
		State:      "open",
		HeadBranch: opts.Head,
		BaseBranch: base,
		Mergeable:  true,
	}}
	p.files = diff(r.branches[base], head)
	r.prs[p.pr.Number] = p
	r.nextPR++

	out := p.pr
	return &out, nil
}

func diff(base, head map[string]string) []forge.ChangedFile {
	var out []forge.ChangedFile
	for path, content := range head {
		prev, existed := base[path]
		switch {
		case !existed:
			out = append(out, forge.ChangedFile{Filename: path, Status: "added", Additions: lines(content), Patch: content})
		case prev != content:
			out = append(out, forge.ChangedFile{Filename: path, Status: "modified", Additions: lines(content), Deletions: lines(prev), Patch: content})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func lines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

// AddPR seeds an open PR with the given change-set, for tests and chat-driven demos.
func (h *Host) AddPR(repo string, number int, title string, files []forge.ChangedFile) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.repoLocked(repo)
	r.prs[number] = &pullRequest{
		pr: forge.PullRequest{
			Number: number, Title: title, State: "open",
			HeadBranch: fmt.Sprintf("pr-%d", number), BaseBranch: "main", Mergeable: true,
		},
		files: append([]forge.ChangedFile(nil), files...),
	}
	if number >= r.nextPR {
		r.nextPR = number + 1
	}
}

// SetMergeable flips the host's mergeable flag for a PR.
func (h *Host) SetMergeable(repo string, number int, mergeable bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.prLocked("set mergeable", repo, number)
	if err != nil {
		return err
	}
	p.pr.Mergeable = mergeable
	return nil
}

func (h *Host) GetChangedFiles(_ context.Context, repo string, number int) ([]forge.ChangedFile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.prLocked("get changed files", repo, number)
	if err != nil {
		return nil, err
	}
	return append([]forge.ChangedFile(nil), p.files...), nil
}

func (h *Host) SubmitReview(_ context.Context, repo string, number int, review forge.Review) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.prLocked("submit review", repo, number)
	if err != nil {
		return err
	}
	p.reviews = append(p.reviews, review)
	return nil
}

func (h *Host) GetStatus(_ context.Context, repo string, number int) (*forge.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.prLocked("get status", repo, number)
	if err != nil {
		return nil, err
	}
	return &forge.Status{
		State:     p.pr.State,
		Mergeable: p.pr.Mergeable && !p.pr.Merged,
		Merged:    p.pr.Merged,
		Reviews:   append([]forge.Review(nil), p.reviews...),
	}, nil
}

func (h *Host) Merge(_ context.Context, repo string, number int, opts forge.MergeOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mergeCalls[key(repo, number)]++

	p, err := h.prLocked("merge", repo, number)
	if err != nil {
		return err
	}
	if p.pr.Merged {
		return &forge.HostError{Op: "merge", Repo: repo, PR: number, Err: forge.ErrAlreadyMerged}
	}
	if !p.pr.Mergeable {
		return &forge.HostError{Op: "merge", Repo: repo, PR: number, Err: forge.ErrNotMergeable}
	}

	r := h.repos[repo]
	base := r.branches[p.pr.BaseBranch]
	if base == nil {
		base = make(map[string]string)
		r.branches[p.pr.BaseBranch] = base
	}
	for path, content := range r.branches[p.pr.HeadBranch] {
		base[path] = content
	}
	if opts.DeleteBranch {
		delete(r.branches, p.pr.HeadBranch)
	}

	now := h.now()
	p.pr.Merged = true
	p.pr.MergedAt = &now
	p.pr.State = "closed"
	return nil
}

// MergeCalls returns how many times Merge was called for a PR, successful or not.
func (h *Host) MergeCalls(repo string, number int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mergeCalls[key(repo, number)]
}

// PR returns a copy of a PR record.
func (h *Host) PR(repo string, number int) (forge.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, err := h.prLocked("get PR", repo, number)
	if err != nil {
		return forge.PullRequest{}, err
	}
	return p.pr, nil
}

// File returns the content of path on branch.
func (h *Host) File(repo, branch, path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.repos[repo]
	if !ok {
		return "", false
	}
	c, ok := r.branches[branch][path]
	return c, ok
}
