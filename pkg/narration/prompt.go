package narration

import (
	"fmt"
	"strings"

	"devteam/pkg/team"
)

func systemPrompt(agent team.Agent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, the %s on a small software team. %s\n", agent.Name, agent.Role, agent.Personality)
	if len(agent.Expertise) > 0 {
		fmt.Fprintf(&sb, "You know a lot about %s.\n", strings.Join(agent.Expertise, ", "))
	}
	ctx := agent.Context
	fmt.Fprintf(&sb, "Right now you are %s and feeling %s.", ctx.WorkStatus, ctx.Mood)
	if ctx.CurrentTask != "" {
		fmt.Fprintf(&sb, " You are working on %q.", ctx.CurrentTask)
	}
	if len(ctx.RecentEvents) > 0 {
		sb.WriteString("\nRecently:")
		for _, e := range ctx.RecentEvents {
			fmt.Fprintf(&sb, "\n- %s", e.Summary)
		}
	}
	sb.WriteString("\n\nWrite one short first-person chat message (at most two sentences) to your team. " +
		"Keep every number, name and PR reference exactly as given. No quotes, no hashtags.")
	return sb.String()
}

func eventPrompt(ev Event, fact string) string {
	return fmt.Sprintf("Event: %s\nWhat happened: %s", ev.Kind, fact)
}
