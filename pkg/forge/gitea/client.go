package gitea

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devteam/pkg/forge"
	"devteam/pkg/logx"
)

// Client implements forge.Host against the Gitea API v1.
type Client struct {
	baseURL string
	token   string
	owner   string
	logger  *logx.Logger
	client  *http.Client
}

// NewClient creates a new Gitea API client for repositories owned by owner.
func NewClient(baseURL, token, owner string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		owner:   owner,
		logger:  logx.NewLogger("gitea-client"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Provider returns the forge provider type.
func (c *Client) Provider() forge.Provider {
	return forge.ProviderGitea
}

// Owner returns the repository owner.
func (c *Client) Owner() string {
	return c.owner
}

// BaseURL returns the base URL of the Gitea instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CloneURL returns the HTTP clone URL for repo.
func (c *Client) CloneURL(repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", c.baseURL, c.owner, repo)
}

// apiURL constructs a full API URL.
func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", c.baseURL, path)
}

func (c *Client) repoPath(repo, suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", c.owner, repo, suffix)
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.apiURL(path)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("%s %s", method, url)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// call runs a request, maps failure status codes to forge errors and decodes
// the response into out when out is non-nil.
func (c *Client) call(ctx context.Context, op, repo string, pr int, method, path string, body, out interface{}, ok ...int) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return &forge.HostError{Op: op, Repo: repo, PR: pr, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	for _, code := range ok {
		if resp.StatusCode == code {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return &forge.HostError{Op: op, Repo: repo, PR: pr, Err: fmt.Errorf("failed to decode response: %w", err)}
			}
			return nil
		}
	}
	return &forge.HostError{Op: op, Repo: repo, PR: pr, Err: statusError(resp.StatusCode, data)}
}

// statusError maps a Gitea failure response to a forge sentinel.
func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", forge.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", forge.ErrPermissionDenied, msg)
	case http.StatusMethodNotAllowed:
		if strings.Contains(strings.ToLower(msg), "already merged") {
			return fmt.Errorf("%w: %s", forge.ErrAlreadyMerged, msg)
		}
		return fmt.Errorf("%w: %s", forge.ErrNotMergeable, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", forge.ErrNotMergeable, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, msg)
	}
}

// Gitea API response structures.
type giteaPR struct {
	Number    int      `json:"number"`
	HTMLURL   string   `json:"html_url"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     string   `json:"state"` // open, closed
	Merged    bool     `json:"merged"`
	MergedAt  *string  `json:"merged_at"`
	Mergeable bool     `json:"mergeable"`
	Head      giteaRef `json:"head"`
	Base      giteaRef `json:"base"`
}

type giteaRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type giteaReview struct {
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	State string `json:"state"`
	Body  string `json:"body"`
}

type giteaChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// convertPR converts a Gitea PR to forge.PullRequest.
func convertPR(gpr *giteaPR) *forge.PullRequest {
	pr := &forge.PullRequest{
		Number:     gpr.Number,
		URL:        gpr.HTMLURL,
		Title:      gpr.Title,
		Body:       gpr.Body,
		State:      gpr.State,
		HeadBranch: gpr.Head.Ref,
		BaseBranch: gpr.Base.Ref,
		Merged:     gpr.Merged,
		Mergeable:  gpr.Mergeable,
	}

	if gpr.MergedAt != nil && *gpr.MergedAt != "" {
		if t, err := time.Parse(time.RFC3339, *gpr.MergedAt); err == nil {
			pr.MergedAt = &t
		}
	}

	return pr
}

// CreateBranch creates branch from base.
func (c *Client) CreateBranch(ctx context.Context, repo, branch, base string) error {
	if base == "" {
		base = "main"
	}
	payload := map[string]interface{}{
		"new_branch_name": branch,
		"old_branch_name": base,
	}
	if err := c.call(ctx, "create branch", repo, 0, http.MethodPost, c.repoPath(repo, "/branches"), payload, nil, http.StatusCreated); err != nil {
		return err
	}
	c.logger.Info("Created branch %s from %s in %s", branch, base, repo)
	return nil
}

// CommitFiles creates or updates files on branch in a single commit.
func (c *Client) CommitFiles(ctx context.Context, repo, branch, message string, files []forge.File) error {
	if len(files) == 0 {
		return nil
	}
	ops := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		ops = append(ops, map[string]interface{}{
			"operation": "create",
			"path":      f.Path,
			"content":   base64.StdEncoding.EncodeToString([]byte(f.Content)),
		})
	}
	payload := map[string]interface{}{
		"branch":  branch,
		"message": message,
		"files":   ops,
	}
	if err := c.call(ctx, "commit files", repo, 0, http.MethodPost, c.repoPath(repo, "/contents"), payload, nil, http.StatusCreated); err != nil {
		return err
	}
	c.logger.Info("Committed %d files to %s/%s", len(files), repo, branch)
	return nil
}

// CreatePR creates a new pull request.
func (c *Client) CreatePR(ctx context.Context, repo string, opts forge.PRCreateOptions) (*forge.PullRequest, error) {
	if opts.Head == "" {
		return nil, fmt.Errorf("head branch is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	base := opts.Base
	if base == "" {
		base = "main"
	}

	payload := map[string]interface{}{
		"title": opts.Title,
		"head":  opts.Head,
		"base":  base,
	}
	if opts.Body != "" {
		payload["body"] = opts.Body
	}

	var gpr giteaPR
	if err := c.call(ctx, "create PR", repo, 0, http.MethodPost, c.repoPath(repo, "/pulls"), payload, &gpr, http.StatusCreated); err != nil {
		return nil, err
	}

	c.logger.Info("Created PR #%d: %s", gpr.Number, gpr.Title)
	return convertPR(&gpr), nil
}

// GetPR retrieves a pull request by number.
func (c *Client) GetPR(ctx context.Context, repo string, number int) (*forge.PullRequest, error) {
	var gpr giteaPR
	path := c.repoPath(repo, fmt.Sprintf("/pulls/%d", number))
	if err := c.call(ctx, "get PR", repo, number, http.MethodGet, path, nil, &gpr, http.StatusOK); err != nil {
		return nil, err
	}
	return convertPR(&gpr), nil
}

// GetChangedFiles lists the files touched by a PR.
func (c *Client) GetChangedFiles(ctx context.Context, repo string, pr int) ([]forge.ChangedFile, error) {
	var files []giteaChangedFile
	path := c.repoPath(repo, fmt.Sprintf("/pulls/%d/files", pr))
	if err := c.call(ctx, "get changed files", repo, pr, http.MethodGet, path, nil, &files, http.StatusOK); err != nil {
		return nil, err
	}

	result := make([]forge.ChangedFile, 0, len(files))
	for _, f := range files {
		result = append(result, forge.ChangedFile{
			Filename:  f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
		})
	}
	return result, nil
}

// SubmitReview posts a review. Gitea attributes it to the token owner, so the
// reviewer name is prefixed to the body.
func (c *Client) SubmitReview(ctx context.Context, repo string, pr int, review forge.Review) error {
	body := review.Body
	if review.Reviewer != "" {
		body = fmt.Sprintf("**%s**: %s", review.Reviewer, review.Body)
	}
	payload := map[string]interface{}{
		"event": string(review.Event),
		"body":  body,
	}
	path := c.repoPath(repo, fmt.Sprintf("/pulls/%d/reviews", pr))
	if err := c.call(ctx, "submit review", repo, pr, http.MethodPost, path, payload, nil, http.StatusOK, http.StatusCreated); err != nil {
		return err
	}
	c.logger.Info("Submitted %s review on %s#%d", review.Event, repo, pr)
	return nil
}

// GetStatus combines the PR record with its reviews.
func (c *Client) GetStatus(ctx context.Context, repo string, pr int) (*forge.Status, error) {
	p, err := c.GetPR(ctx, repo, pr)
	if err != nil {
		return nil, err
	}

	var reviews []giteaReview
	path := c.repoPath(repo, fmt.Sprintf("/pulls/%d/reviews", pr))
	if err := c.call(ctx, "list reviews", repo, pr, http.MethodGet, path, nil, &reviews, http.StatusOK); err != nil {
		return nil, err
	}

	status := &forge.Status{
		State:     p.State,
		Mergeable: p.Mergeable && !p.IsMerged(),
		Merged:    p.IsMerged(),
	}
	for _, r := range reviews {
		status.Reviews = append(status.Reviews, forge.Review{
			Reviewer: r.User.Login,
			Event:    forge.ReviewEvent(r.State),
			Body:     r.Body,
		})
	}
	return status, nil
}

// Merge merges a pull request. Gitea answers 405 for a PR that is already
// merged or cannot be merged; both surface as forge sentinels.
func (c *Client) Merge(ctx context.Context, repo string, pr int, opts forge.MergeOptions) error {
	var method string
	switch opts.Method {
	case forge.MergeMerge, forge.MergeRebase:
		method = opts.Method
	default:
		method = forge.MergeSquash
	}

	payload := map[string]interface{}{
		"Do":                        method,
		"delete_branch_after_merge": opts.DeleteBranch,
	}
	if opts.CommitMessage != "" {
		payload["merge_commit_message"] = opts.CommitMessage
	}

	path := c.repoPath(repo, fmt.Sprintf("/pulls/%d/merge", pr))
	if err := c.call(ctx, "merge", repo, pr, http.MethodPost, path, payload, nil, http.StatusOK, http.StatusNoContent); err != nil {
		return err
	}
	c.logger.Info("Merged PR #%d in %s (%s)", pr, repo, method)
	return nil
}
