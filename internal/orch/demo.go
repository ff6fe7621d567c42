package orch

import (
	"devteam/pkg/forge"
	"devteam/pkg/forge/memforge"
	"devteam/pkg/project"
)

// DemoPRNumber is the pull request seeded for chat-driven reviews in demo mode.
const DemoPRNumber = 42

// DemoProject is a small landing-page project that exercises every role.
func DemoProject(repository string) project.Project {
	return project.Project{
		ID:         "landing",
		Name:       "Landing page",
		Repository: repository,
		Tasks: []project.Task{
			{
				ID: "requirements", Title: "Gather landing page requirements",
				Type: project.TypeDocumentation, Priority: project.PriorityHigh,
				EstimatedHours: 2, Assignee: "analyst", Status: project.StatusTodo,
			},
			{
				ID: "mockups", Title: "Design landing page mockups",
				Type: project.TypeDesign, Priority: project.PriorityMedium,
				EstimatedHours: 4, Assignee: "designer", Status: project.StatusTodo,
				Dependencies: []string{"requirements"},
			},
			{
				ID: "signup-form", Title: "Build signup form",
				Type: project.TypeFeature, Priority: project.PriorityHigh,
				EstimatedHours: 6, Assignee: "developer", Status: project.StatusTodo,
				Dependencies: []string{"mockups"},
			},
			{
				ID: "signup-tests", Title: "Test signup flow",
				Type: project.TypeTest, Priority: project.PriorityMedium,
				EstimatedHours: 3, Assignee: "qa", Status: project.StatusTodo,
				Dependencies: []string{"signup-form"},
			},
		},
	}
}

// SeedDemo opens DemoPRNumber on an in-memory host so "review #42" has something to
// look at. Other hosts are left alone.
func SeedDemo(host forge.Host, repository string) bool {
	mem, ok := host.(*memforge.Host)
	if !ok {
		return false
	}
	mem.AddPR(repository, DemoPRNumber, "Fix typo in README", []forge.ChangedFile{{
		Filename:  "README.md",
		Status:    "modified",
		Additions: 1,
		Deletions: 1,
		Patch:     "-Welcome to teh app\n+Welcome to the app\n",
	}})
	return true
}
