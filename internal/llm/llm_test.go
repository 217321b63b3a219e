package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("internal", func(t *testing.T) {
		system := buildSystemPrompt(models.SearchModeInternal)
		assert.Contains(t, system, "Jira")
		assert.Contains(t, system, "Confluence")
		assert.Contains(t, system, `"summary"`)
		assert.Contains(t, system, `"sources"`)
	})

	t.Run("external", func(t *testing.T) {
		system := buildSystemPrompt(models.SearchModeExternal)
		assert.Contains(t, system, "conversation")
		assert.Contains(t, system, `"web"`)
	})
}

func TestBuildMessages(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		msgs := buildMessages("reset password", nil)
		require.Len(t, msgs, 1)
		assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
		assert.Equal(t, "reset password", msgs[0].Content[0].OfText.Text)
	})

	t.Run("history replayed in order", func(t *testing.T) {
		history := []models.Message{
			{Role: models.RoleUser, Content: "what is go"},
			{Role: models.RoleAssistant, Content: "a language"},
		}
		msgs := buildMessages("who made it", history)
		require.Len(t, msgs, 3)
		assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
		assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
		assert.Equal(t, "a language", msgs[1].Content[0].OfText.Text)
		assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
		assert.Equal(t, "who made it", msgs[2].Content[0].OfText.Text)
	})
}

func TestParseResult(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		res, err := parseResult(`{"summary":"Use the portal.","sources":[{"title":"RP-1","url":"https://jira/RP-1","type":"jira"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "Use the portal.", res.Summary)
		require.Len(t, res.Sources, 1)
		assert.Equal(t, models.SourceTypeJira, res.Sources[0].Type)
	})

	t.Run("fenced JSON", func(t *testing.T) {
		res, err := parseResult("```json\n{\"summary\":\"ok\",\"sources\":[]}\n```")
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Summary)
		assert.NotNil(t, res.Sources)
		assert.Empty(t, res.Sources)
	})

	t.Run("missing sources become empty", func(t *testing.T) {
		res, err := parseResult(`{"summary":"ok"}`)
		require.NoError(t, err)
		assert.NotNil(t, res.Sources)
	})

	t.Run("unknown types map to web", func(t *testing.T) {
		res, err := parseResult(`{"summary":"x","sources":[{"title":"a","url":"u","type":"sharepoint"},{"title":"b","url":"v","type":"Confluence"}]}`)
		require.NoError(t, err)
		require.Len(t, res.Sources, 2)
		assert.Equal(t, models.SourceTypeWeb, res.Sources[0].Type)
		assert.Equal(t, models.SourceTypeConfluence, res.Sources[1].Type)
	})

	t.Run("not JSON", func(t *testing.T) {
		_, err := parseResult("I could not find anything.")
		require.Error(t, err)
		assert.Equal(t, "The search service returned a malformed response.", search.Message(err))
	})
}

func fakeMessagesServer(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func messageJSON(t *testing.T, text string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         DefaultModel,
		"stop_reason":   "end_turn",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		"stop_sequence": nil,
	})
	require.NoError(t, err)
	return string(b)
}

func TestClientSearch(t *testing.T) {
	var body map[string]any
	srv := fakeMessagesServer(t, http.StatusOK,
		messageJSON(t, `{"summary":"Go is a language.","sources":[{"title":"go.dev","url":"https://go.dev","type":"web"}]}`),
		&body)

	c := NewClient("test-key", "", nil, option.WithBaseURL(srv.URL))
	history := []models.Message{
		{Role: models.RoleUser, Content: "what is go"},
		{Role: models.RoleAssistant, Content: "a language"},
	}
	res, err := c.Search(context.Background(), models.SearchModeExternal, "more", history)
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", res.Summary)
	require.Len(t, res.Sources, 1)

	assert.Equal(t, DefaultModel, body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
}

func TestClientSearch_APIError(t *testing.T) {
	srv := fakeMessagesServer(t, http.StatusTooManyRequests,
		`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, nil)

	c := NewClient("test-key", "claude-test", nil, option.WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), models.SearchModeInternal, "q", nil)
	require.Error(t, err)

	var se *search.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.Equal(t, "Request failed with status 429", search.Message(err))
}

func TestClientSearch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient("test-key", "", nil, option.WithBaseURL(url))
	_, err := c.Search(context.Background(), models.SearchModeInternal, "q", nil)
	require.Error(t, err)
	assert.Equal(t, search.ConnectErrorMessage, search.Message(err))
}
