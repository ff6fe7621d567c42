package project

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrCycle is returned when task dependencies do not form a DAG.
	ErrCycle = errors.New("dependency cycle")
	// ErrInvalidTask is returned for malformed task records.
	ErrInvalidTask = errors.New("invalid task")
)

// Graph is a validated task DAG. Only task status changes after construction.
type Graph struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // topological, ties by input order
}

// NewGraph validates tasks and builds the graph. Missing type, priority and status
// fall back to feature, medium and todo.
func NewGraph(tasks []Task) (*Graph, error) {
	g := &Graph{tasks: make(map[string]*Task, len(tasks))}
	input := make([]string, 0, len(tasks))

	for i := range tasks {
		t := tasks[i].clone()
		if t.ID == "" {
			return nil, fmt.Errorf("%w: task %d has no id", ErrInvalidTask, i)
		}
		if _, dup := g.tasks[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidTask, t.ID)
		}
		if t.Type == "" {
			t.Type = TypeFeature
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if t.Status == "" {
			t.Status = StatusTodo
		}
		if !t.Type.IsValid() || !t.Priority.IsValid() || !t.Status.IsValid() {
			return nil, fmt.Errorf("%w: %s has type=%q priority=%q status=%q", ErrInvalidTask, t.ID, t.Type, t.Priority, t.Status)
		}
		g.tasks[t.ID] = &t
		input = append(input, t.ID)
	}

	for _, id := range input {
		for _, dep := range g.tasks[id].Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on unknown task %s", ErrInvalidTask, id, dep)
			}
			if dep == id {
				return nil, fmt.Errorf("%w: %s depends on itself", ErrCycle, id)
			}
		}
	}

	order, err := topoSort(g.tasks, input)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topoSort is Kahn's algorithm; ready tasks are emitted in input order.
func topoSort(tasks map[string]*Task, input []string) ([]string, error) {
	position := make(map[string]int, len(input))
	for i, id := range input {
		position[id] = i
	}
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, id := range input {
		for _, dep := range tasks[id].Dependencies {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for _, id := range input {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(input))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				sort.SliceStable(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
			}
		}
	}

	if len(order) != len(input) {
		var stuck []string
		for _, id := range input {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w among tasks %v", ErrCycle, stuck)
	}
	return order, nil
}

// Task returns a copy of the task with id.
func (g *Graph) Task(id string) (Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, &NotFoundError{Kind: "task", ID: id}
	}
	return t.clone(), nil
}

// Tasks returns all tasks in topological order.
func (g *Graph) Tasks() []Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].clone())
	}
	return out
}

// TopologicalOrder returns task ids so every dependency precedes its dependents.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// SetStatus updates a task's lifecycle status.
func (g *Graph) SetStatus(id string, status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidTask, status)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return &NotFoundError{Kind: "task", ID: id}
	}
	t.Status = status
	return nil
}

// DependenciesDone reports whether every dependency of id is done.
func (g *Graph) DependenciesDone(id string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return false, &NotFoundError{Kind: "task", ID: id}
	}
	return g.depsDoneLocked(t), nil
}

func (g *Graph) depsDoneLocked(t *Task) bool {
	for _, dep := range t.Dependencies {
		if g.tasks[dep].Status != StatusDone {
			return false
		}
	}
	return true
}

// PendingDependencies returns the dependencies of id that are not done yet.
func (g *Graph) PendingDependencies(id string) ([]Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, &NotFoundError{Kind: "task", ID: id}
	}
	var out []Task
	for _, dep := range t.Dependencies {
		if d := g.tasks[dep]; d.Status != StatusDone {
			out = append(out, d.clone())
		}
	}
	return out, nil
}

// Ready returns todo tasks whose dependencies are all done, in topological order.
func (g *Graph) Ready() []Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == StatusTodo && g.depsDoneLocked(t) {
			out = append(out, t.clone())
		}
	}
	return out
}

// Counts returns the number of tasks per status.
func (g *Graph) Counts() map[Status]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[Status]int, 4)
	for _, t := range g.tasks {
		out[t.Status]++
	}
	return out
}
