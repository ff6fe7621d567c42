package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerdictNonJSONFallsBack(t *testing.T) {
	client := NewScripted("Sure! I reviewed it and it's fine.")
	g := NewGenerator(client)

	v, err := g.GenerateVerdict(context.Background(), "review this")

	assert.Error(t, err)
	assert.True(t, v.Approved)
	assert.False(t, v.ChangesRequested)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, PurposeVerdict, calls[0].Purpose)
	assert.Contains(t, calls[0].System, "JSON")
}

func TestGenerateVerdictClientErrorFallsBack(t *testing.T) {
	client := NewScripted(`{"approved": false}`).FailWith(errors.New("status code: 503 unavailable"))
	g := NewGenerator(client)

	v, err := g.GenerateVerdict(context.Background(), "review this")
	require.Error(t, err)
	assert.True(t, v.Fallback)
	assert.Equal(t, ErrorTypeTransient, TypeOf(err))

	v, err = g.GenerateVerdict(context.Background(), "review this")
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.True(t, v.ChangesRequested)
}

func TestGenerateNarration(t *testing.T) {
	g := NewGenerator(NewScripted(`  "Starting on the login form now!"  `, "   "))

	text, err := g.GenerateNarration(context.Background(), "persona", "event")
	require.NoError(t, err)
	assert.Equal(t, "Starting on the login form now!", text)

	_, err = g.GenerateNarration(context.Background(), "persona", "event")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateCodeStripsFence(t *testing.T) {
	g := NewGenerator(NewScripted("```go\npackage login\n```"))

	code, err := g.GenerateCode(context.Background(), "write login.go")
	require.NoError(t, err)
	assert.Equal(t, "package login\n", code)
}

func TestBudgetTruncatesPrompt(t *testing.T) {
	budget, err := NewTokenBudget(50)
	require.NoError(t, err)
	client := NewScripted(`{"approved": true}`)
	g := NewGenerator(client, WithBudget(budget))

	long := strings.Repeat("func handler() { return nil }\n", 200)
	_, err = g.GenerateVerdict(context.Background(), long)
	require.NoError(t, err)

	sent := client.Calls()[0].Messages[0].Content
	assert.Less(t, len(sent), len(long))
	assert.Contains(t, sent, "(truncated)")
	assert.True(t, budget.Fits("short"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	budget, err := NewTokenBudget(50)
	require.NoError(t, err)

	text := strings.Repeat("日本語のレビュー 🚀 ", 100)
	for limit := 1; limit <= 40; limit++ {
		out := budget.Truncate(text, limit)
		require.True(t, utf8.ValidString(out), "limit %d", limit)
		assert.True(t, strings.HasSuffix(out, "\n... (truncated)"))
	}
}

func TestOfflineClient(t *testing.T) {
	g := NewGenerator(NewOffline())

	v, err := g.GenerateVerdict(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.False(t, v.Fallback)

	_, err = g.GenerateNarration(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrOffline)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTypeAuth, Classify(errors.New("POST: status code: 401 Unauthorized")).Type)
	assert.Equal(t, ErrorTypeRateLimit, Classify(errors.New("HTTP 429 too many")).Type)
	assert.Equal(t, ErrorTypeTransient, Classify(errors.New("dial tcp: connection refused")).Type)
	assert.Equal(t, ErrorTypeTransient, Classify(context.DeadlineExceeded).Type)
	assert.Equal(t, ErrorTypeUnknown, Classify(errors.New("weird")).Type)
	assert.Nil(t, Classify(nil))
}
