package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTasks() []Task {
	return []Task{
		{ID: "docs", Title: "Write docs", Type: TypeDocumentation, Dependencies: []string{"api"}, Assignee: "analyst"},
		{ID: "reqs", Title: "Gather requirements", Assignee: "manager"},
		{ID: "api", Title: "Build API", Dependencies: []string{"reqs"}, Assignee: "developer", Priority: PriorityHigh},
		{ID: "ui", Title: "Design UI", Type: TypeDesign, Dependencies: []string{"reqs"}, Assignee: "designer"},
	}
}

func TestNewGraphDefaultsAndOrder(t *testing.T) {
	g, err := NewGraph(sampleTasks())
	require.NoError(t, err)

	assert.Equal(t, []string{"reqs", "api", "docs", "ui"}, g.TopologicalOrder())

	reqs, err := g.Task("reqs")
	require.NoError(t, err)
	assert.Equal(t, TypeFeature, reqs.Type)
	assert.Equal(t, PriorityMedium, reqs.Priority)
	assert.Equal(t, StatusTodo, reqs.Status)
}

func TestNewGraphRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		tasks []Task
		want  error
	}{
		{"missing id", []Task{{Title: "x"}}, ErrInvalidTask},
		{"duplicate", []Task{{ID: "a"}, {ID: "a"}}, ErrInvalidTask},
		{"unknown dep", []Task{{ID: "a", Dependencies: []string{"zzz"}}}, ErrInvalidTask},
		{"bad type", []Task{{ID: "a", Type: "chore"}}, ErrInvalidTask},
		{"self loop", []Task{{ID: "a", Dependencies: []string{"a"}}}, ErrCycle},
		{"cycle", []Task{
			{ID: "a", Dependencies: []string{"c"}},
			{ID: "b", Dependencies: []string{"a"}},
			{ID: "c", Dependencies: []string{"b"}},
		}, ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.tasks)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadyFollowsDependencies(t *testing.T) {
	g, err := NewGraph(sampleTasks())
	require.NoError(t, err)

	ids := func(ts []Task) []string {
		var out []string
		for _, t := range ts {
			out = append(out, t.ID)
		}
		return out
	}

	assert.Equal(t, []string{"reqs"}, ids(g.Ready()))

	require.NoError(t, g.SetStatus("reqs", StatusInProgress))
	assert.Empty(t, g.Ready())

	require.NoError(t, g.SetStatus("reqs", StatusDone))
	assert.Equal(t, []string{"api", "ui"}, ids(g.Ready()))

	done, err := g.DependenciesDone("docs")
	require.NoError(t, err)
	assert.False(t, done)

	pending, err := g.PendingDependencies("docs")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Build API", pending[0].Title)
}

func TestSetStatusErrors(t *testing.T) {
	g, err := NewGraph(sampleTasks())
	require.NoError(t, err)

	var nf *NotFoundError
	assert.True(t, errors.As(g.SetStatus("nope", StatusDone), &nf))
	assert.ErrorIs(t, g.SetStatus("api", "blocked"), ErrInvalidTask)
	assert.Equal(t, 4, g.Counts()[StatusTodo])
}

func TestRegistryAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: shop
name: Shop
repository: shop-web
tasks:
  - id: login
    title: Login form
    type: feature
    priority: high
    assignee: developer
  - id: login-tests
    title: Login tests
    type: test
    dependencies: [login]
    assignee: qa
`), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shop-web", p.Repository)
	require.Len(t, p.Tasks, 2)

	reg := NewRegistry()
	g, err := reg.Register(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "login-tests"}, g.TopologicalOrder())

	task, err := reg.Task("shop", "login-tests")
	require.NoError(t, err)
	assert.Equal(t, TypeTest, task.Type)

	stored, _, err := reg.Project("shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop", stored.Name)

	_, err = reg.Graph("other")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, []string{"shop"}, reg.IDs())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("id: x\nowner: bob\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("name: no id\n"))
	assert.ErrorIs(t, err, ErrInvalidTask)
}
