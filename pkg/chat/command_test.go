package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text   string
		want   Command
		wantOK bool
	}{
		{"review PR #42 in my-repo", ReviewRequest{PRNumber: 42, Repository: "my-repo"}, true},
		{"Could you REVIEW pr 7 on web_app please", ReviewRequest{PRNumber: 7, Repository: "web_app"}, true},
		{"review PR#3 api-server", ReviewRequest{PRNumber: 3, Repository: "api-server"}, true},
		{"please review #15", ReviewRequest{PRNumber: 15, Repository: DefaultRepository}, true},
		{"review 8", ReviewRequest{PRNumber: 8, Repository: DefaultRepository}, true},
		{"status of PR #42", StatusQuery{PRNumber: 42}, true},
		{"what's the Status PR 9?", StatusQuery{PRNumber: 9}, true},
		{"review PR #0 in repo", nil, false},
		{"status of #42", nil, false},
		{"hello team", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Parse(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFirstMatchWins(t *testing.T) {
	// Both review rules match; the repository-qualified one comes first.
	cmd, ok := Parse("review PR #5 in billing, then review #6")
	assert.True(t, ok)
	assert.Equal(t, ReviewRequest{PRNumber: 5, Repository: "billing"}, cmd)

	// A review request outranks a status query in the same message.
	cmd, ok = Parse("status of PR #1 and review #2")
	assert.True(t, ok)
	assert.Equal(t, ReviewRequest{PRNumber: 2, Repository: DefaultRepository}, cmd)
}

func TestGrammarDefaultRepository(t *testing.T) {
	cmd, ok := NewGrammar("storefront").Parse("review #11")
	assert.True(t, ok)
	assert.Equal(t, ReviewRequest{PRNumber: 11, Repository: "storefront"}, cmd)

	cmd, _ = NewGrammar("  ").Parse("review #11")
	assert.Equal(t, DefaultRepository, cmd.(ReviewRequest).Repository)
}
