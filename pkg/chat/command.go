package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultRepository is used by "review #N" when no repository is configured.
const DefaultRepository = "main-app"

// Command is a parsed chat command: ReviewRequest or StatusQuery.
type Command interface {
	Kind() string
}

// ReviewRequest asks the team to review a pull request.
type ReviewRequest struct {
	PRNumber   int
	Repository string
}

func (ReviewRequest) Kind() string { return "review" }

// StatusQuery asks for the review status of a pull request.
type StatusQuery struct {
	PRNumber int
}

func (StatusQuery) Kind() string { return "status" }

type rule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string, defaultRepo string) (Command, bool)
}

//nolint:gochecknoglobals // ordered command table
var rules = []rule{
	{
		name:    "review-in-repo",
		pattern: regexp.MustCompile(`(?i)review\s+PR\s*#?(\d+)\s+(?:in|on)?\s*([a-zA-Z0-9_-]+)`),
		build: func(m []string, _ string) (Command, bool) {
			n, ok := prNumber(m[1])
			return ReviewRequest{PRNumber: n, Repository: m[2]}, ok
		},
	},
	{
		name:    "review",
		pattern: regexp.MustCompile(`(?i)review\s+#?(\d+)`),
		build: func(m []string, defaultRepo string) (Command, bool) {
			n, ok := prNumber(m[1])
			return ReviewRequest{PRNumber: n, Repository: defaultRepo}, ok
		},
	},
	{
		name:    "status",
		pattern: regexp.MustCompile(`(?i)status\s+(?:of\s+)?PR\s*#?(\d+)`),
		build: func(m []string, _ string) (Command, bool) {
			n, ok := prNumber(m[1])
			return StatusQuery{PRNumber: n}, ok
		},
	},
}

func prNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil && n > 0
}

// Grammar parses chat text into commands. Rules are tried in order and the first
// match wins.
type Grammar struct {
	defaultRepo string
}

// NewGrammar returns a grammar resolving "review #N" to defaultRepo.
func NewGrammar(defaultRepo string) *Grammar {
	if strings.TrimSpace(defaultRepo) == "" {
		defaultRepo = DefaultRepository
	}
	return &Grammar{defaultRepo: defaultRepo}
}

// Parse returns the command in text, if any.
func (g *Grammar) Parse(text string) (Command, bool) {
	cmd, _, ok := g.match(text)
	return cmd, ok
}

// match also returns the name of the rule that matched.
func (g *Grammar) match(text string) (Command, string, bool) {
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if cmd, ok := r.build(m, g.defaultRepo); ok {
			return cmd, r.name, true
		}
	}
	return nil, "", false
}

// Parse parses text with the default repository.
func Parse(text string) (Command, bool) {
	return NewGrammar(DefaultRepository).Parse(text)
}
