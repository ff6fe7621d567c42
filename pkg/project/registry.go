package project

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry maps project ids to their project record and task graph.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*entry
}

type entry struct {
	project Project
	graph   *Graph
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[string]*entry)}
}

// Register validates p's tasks and stores the project. Re-registering an id replaces it.
func (r *Registry) Register(p Project) (*Graph, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidTask)
	}
	g, err := NewGraph(p.Tasks)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", p.ID, err)
	}
	p.Tasks = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = &entry{project: p, graph: g}
	return g, nil
}

// Project returns the project record (without tasks) and its graph.
func (r *Registry) Project(id string) (Project, *Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.projects[id]
	if !ok {
		return Project{}, nil, &NotFoundError{Kind: "project", ID: id}
	}
	return e.project, e.graph, nil
}

// Graph returns the task graph of project id.
func (r *Registry) Graph(id string) (*Graph, error) {
	_, g, err := r.Project(id)
	return g, err
}

// Task looks up a task inside a project.
func (r *Registry) Task(projectID, taskID string) (Task, error) {
	g, err := r.Graph(projectID)
	if err != nil {
		return Task{}, err
	}
	return g.Task(taskID)
}

// IDs returns the registered project ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Parse decodes a project from YAML. Unknown fields are rejected.
func Parse(data []byte) (Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Project{}, fmt.Errorf("failed to parse project YAML: %w", err)
	}
	if p.ID == "" {
		return Project{}, fmt.Errorf("%w: project id is required", ErrInvalidTask)
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	return p, nil
}

// LoadFile reads a project task graph from a YAML file.
func LoadFile(path string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("failed to read project file %s: %w", path, err)
	}
	return Parse(data)
}
