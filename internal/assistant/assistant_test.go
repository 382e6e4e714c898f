package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/httputil"
)

func TestNewNotConfigured(t *testing.T) {
	_, err := New(config.AssistantConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPrompt(t *testing.T) {
	p, err := Prompt(CountyBrief{FIPS: "48201", County: "Harris", Risk: 0.42, Question: " should we stock water? "})
	require.NoError(t, err)
	assert.Contains(t, p, "County data:\n{")
	assert.Contains(t, p, `"fips": "48201"`)
	assert.Contains(t, p, "Explain what is happening and recommend actions.")
	assert.Contains(t, p, "\nUser question: should we stock water?")

	p, err = Prompt(CountyBrief{FIPS: "01001"})
	require.NoError(t, err)
	assert.NotContains(t, p, "User question")

	p, err = Prompt(CountyBrief{FIPS: "01001", Question: strings.Repeat("why ", 300)})
	require.NoError(t, err)
	_, q, ok := strings.Cut(p, "\nUser question: ")
	require.True(t, ok)
	assert.Len(t, []rune(q), maxQuestionLength)
	assert.True(t, strings.HasSuffix(q, "..."))
}

func TestCountySummary(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_completion_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Risk is moderate. Charge phones.  "}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	a, err := New(config.AssistantConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	text, err := a.CountySummary(context.Background(), CountyBrief{FIPS: "48201", Risk: 0.4})
	require.NoError(t, err)
	assert.Equal(t, "Risk is moderate. Charge phones.", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 800, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPrompt, got.Messages[0].Content)
	assert.Contains(t, got.Messages[1].Content, "48201")
}

func TestCountySummaryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	a, err := New(config.AssistantConfig{APIKey: "nope", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.CountySummary(context.Background(), CountyBrief{FIPS: "48201"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httputil.ErrUpstream))
}
