// Package review selects reviewers for a pull request, collects their verdicts and
// decides when an approved pull request is merged.
package review

import (
	"devteam/pkg/project"
	"devteam/pkg/team"
)

// AgentLister is the part of team.Directory reviewer selection needs.
type AgentLister interface {
	ByRole(role team.Role) []team.Agent
}

// SelectReviewers applies the reviewer policy to a task authored by author. Rules are
// evaluated in order and are additive:
//
//  1. feature or bug, author not qa: the qa agent
//  2. high priority, author not manager: the manager agent
//  3. design, author not designer: the designer agent
//  4. junior author: one developer other than the author
//  5. nobody added so far, author not a developer: the developer agent
//
// The result is not deduplicated.
func SelectReviewers(author team.Agent, task project.Task, dir AgentLister) []team.Agent {
	var out []team.Agent
	add := func(role team.Role) {
		if a, ok := firstOther(dir.ByRole(role), author.ID); ok {
			out = append(out, a)
		}
	}

	if (task.Type == project.TypeFeature || task.Type == project.TypeBug) && author.Role != team.RoleQA {
		add(team.RoleQA)
	}
	if task.Priority == project.PriorityHigh && author.Role != team.RoleManager {
		add(team.RoleManager)
	}
	if task.Type == project.TypeDesign && author.Role != team.RoleDesigner {
		add(team.RoleDesigner)
	}
	if author.IsJunior() {
		add(team.RoleDeveloper)
	}
	if len(out) == 0 && author.Role != team.RoleDeveloper {
		add(team.RoleDeveloper)
	}
	return out
}

func firstOther(agents []team.Agent, authorID string) (team.Agent, bool) {
	for _, a := range agents {
		if a.ID != authorID {
			return a, true
		}
	}
	return team.Agent{}, false
}

// ChatReviewers is the fixed reviewer list for reviews requested from chat: qa, then developer.
func ChatReviewers(dir AgentLister) []team.Agent {
	var out []team.Agent
	for _, role := range []team.Role{team.RoleQA, team.RoleDeveloper} {
		if agents := dir.ByRole(role); len(agents) > 0 {
			out = append(out, agents[0])
		}
	}
	return out
}
