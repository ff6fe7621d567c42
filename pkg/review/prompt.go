package review

import (
	"fmt"
	"strings"

	"devteam/pkg/forge"
	"devteam/pkg/team"
)

// buildPrompt describes the change set from reviewer's point of view. Patches are
// added in order while they fit the token budget; the rest are listed by name.
func (p *Pipeline) buildPrompt(req Request, reviewer team.Agent, files []forge.ChangedFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, the team's %s. %s\n", reviewer.Name, reviewer.Role, reviewer.Personality)
	if len(reviewer.Expertise) > 0 {
		fmt.Fprintf(&sb, "Your expertise: %s.\n", strings.Join(reviewer.Expertise, ", "))
	}
	fmt.Fprintf(&sb, "\nReview pull request #%d in %s", req.PRNumber, req.Repository)
	if req.Title != "" {
		fmt.Fprintf(&sb, ": %s", req.Title)
	}
	sb.WriteString(".\n")
	if req.Author.ID != "" {
		fmt.Fprintf(&sb, "Author: %s\n", authorName(req.Author))
	}
	fmt.Fprintf(&sb, "\nChanged files (%d):\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "- %s (%s, +%d/-%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
	}

	omitted := 0
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		section := fmt.Sprintf("\n--- %s ---\n%s\n", f.Filename, f.Patch)
		if p.budget != nil && !p.budget.Fits(sb.String()+section) {
			omitted++
			continue
		}
		sb.WriteString(section)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n(%d patches omitted to fit the review budget)\n", omitted)
	}
	return sb.String()
}

func authorName(a team.Agent) string {
	if a.IsHuman() {
		return a.Name + " (human)"
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Role)
}
