package work

import (
	"fmt"

	"devteam/pkg/project"
	"devteam/pkg/team"
)

// CheckDependencies names what the agent is waiting on for task: explicit dependencies
// that are not done yet, plus role-based hand-offs. Advisory only; scheduling is gated
// on the task graph before enqueue.
func CheckDependencies(agent team.Agent, task project.Task, graph *project.Graph) []string {
	var deps []string
	if graph != nil {
		if pending, err := graph.PendingDependencies(task.ID); err == nil {
			for _, p := range pending {
				deps = append(deps, fmt.Sprintf("%s (%s)", p.Title, p.Status))
			}
		}
	}

	switch {
	case task.Type == project.TypeDesign && agent.Role == team.RoleDesigner:
		deps = append(deps, "requirements from the manager")
	case task.Type == project.TypeTest && agent.Role == team.RoleQA:
		deps = append(deps, "a build from the developer")
	case task.Type == project.TypeDocumentation && agent.Role == team.RoleAnalyst:
		deps = append(deps, "feature list from the manager")
	}
	return deps
}
