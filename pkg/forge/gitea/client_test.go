package gitea

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/forge"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-token", "team")
}

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3000/", "test-token", "team")
	if client.Provider() != forge.ProviderGitea {
		t.Errorf("Provider should be gitea, got %s", client.Provider())
	}
	if client.CloneURL("shop") != "http://localhost:3000/team/shop.git" {
		t.Errorf("unexpected clone URL %s", client.CloneURL("shop"))
	}
}

func TestCreateBranch(t *testing.T) {
	var got map[string]string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/repos/team/shop/branches", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.CreateBranch(context.Background(), "shop", "task/login", ""))
	assert.Equal(t, "task/login", got["new_branch_name"])
	assert.Equal(t, "main", got["old_branch_name"])
}

func TestCommitFiles(t *testing.T) {
	var got struct {
		Branch string `json:"branch"`
		Files  []struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		} `json:"files"`
	}
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/team/shop/contents", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})

	err := client.CommitFiles(context.Background(), "shop", "task/login", "add login", []forge.File{{Path: "login.go", Content: "package login"}})
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	decoded, _ := base64.StdEncoding.DecodeString(got.Files[0].Content)
	assert.Equal(t, "package login", string(decoded))
	assert.Equal(t, "task/login", got.Branch)
}

func TestCreatePR(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/team/shop/pulls", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(giteaPR{
			Number: 7, Title: "Login form", State: "open",
			Head: giteaRef{Ref: "task/login"}, Base: giteaRef{Ref: "main"},
		})
	})

	pr, err := client.CreatePR(context.Background(), "shop", forge.PRCreateOptions{Title: "Login form", Head: "task/login"})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "task/login", pr.HeadBranch)

	_, err = client.CreatePR(context.Background(), "shop", forge.PRCreateOptions{Title: "x"})
	assert.Error(t, err)
}

func TestGetStatusCombinesReviews(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/repos/team/shop/pulls/42":
			_ = json.NewEncoder(w).Encode(giteaPR{Number: 42, State: "open", Mergeable: true})
		case "/api/v1/repos/team/shop/pulls/42/reviews":
			_, _ = w.Write([]byte(`[{"user":{"login":"qa"},"state":"APPROVED","body":"lgtm"},
				{"user":{"login":"developer"},"state":"REQUEST_CHANGES","body":"fix"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	status, err := client.GetStatus(context.Background(), "shop", 42)
	require.NoError(t, err)
	assert.True(t, status.Mergeable)
	assert.Equal(t, 1, status.Approvals())
	assert.True(t, status.ChangesRequested())
	assert.Equal(t, "qa", status.Reviews[0].Reviewer)
}

func TestGetChangedFiles(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/team/shop/pulls/3/files", r.URL.Path)
		_, _ = w.Write([]byte(`[{"filename":"a.go","status":"added","additions":10,"deletions":0}]`))
	})

	files, err := client.GetChangedFiles(context.Background(), "shop", 3)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].Filename)
	assert.Equal(t, 10, files[0].Additions)
}

func TestSubmitReviewPrefixesReviewer(t *testing.T) {
	var got map[string]string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	err := client.SubmitReview(context.Background(), "shop", 3, forge.Review{Reviewer: "qa", Event: forge.ReviewApprove, Body: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", got["event"])
	assert.Equal(t, "**qa**: ok", got["body"])
}

func TestMergeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"ok", http.StatusOK, "", nil},
		{"already merged", http.StatusMethodNotAllowed, `{"message":"The PR is already merged"}`, forge.ErrAlreadyMerged},
		{"not mergeable", http.StatusMethodNotAllowed, `{"message":"Please try again later"}`, forge.ErrNotMergeable},
		{"conflict", http.StatusConflict, "", forge.ErrNotMergeable},
		{"missing", http.StatusNotFound, "", forge.ErrNotFound},
		{"forbidden", http.StatusForbidden, "", forge.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var do string
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				var payload map[string]interface{}
				_ = json.NewDecoder(r.Body).Decode(&payload)
				do, _ = payload["Do"].(string)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.Merge(context.Background(), "shop", 9, forge.MergeOptions{})
			assert.Equal(t, "squash", do)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			var hostErr *forge.HostError
			require.True(t, errors.As(err, &hostErr))
			assert.Equal(t, 9, hostErr.PR)
			assert.Equal(t, "merge", hostErr.Op)
		})
	}
}

func TestUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad", "team")
	_, err := client.GetChangedFiles(context.Background(), "shop", 1)
	if !errors.Is(err, forge.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
