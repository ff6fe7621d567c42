package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/llm"
)

func TestComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/responses"), r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"resp_1","object":"response","created_at":1700000000,"status":"completed","model":"gpt-5",
			"output":[{"type":"message","id":"msg_1","status":"completed","role":"assistant",
				"content":[{"type":"output_text","text":"Shipping it.","annotations":[]}]}]}`))
	}))
	defer server.Close()

	client := New("test-key", "gpt-5", option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	resp, err := client.Complete(context.Background(), llm.NewUserRequest(llm.PurposeNarration, "You are Alex.", "Announce", 50, 0.7))
	require.NoError(t, err)

	assert.Equal(t, "Shipping it.", resp.Content)
	assert.Equal(t, "completed", resp.StopReason)
	assert.Equal(t, "System: You are Alex.\n\nAnnounce", body["input"])
}
