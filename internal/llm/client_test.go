package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestRegistryResolveOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	claude := &MockClient{ProviderName: "claude"}
	gemini := &MockClient{ProviderName: "gemini"}

	reg.Register("claude", claude)
	reg.Register("gemini", gemini)
	reg.Alias("sonnet", "claude")
	reg.SetFallback("gemini")

	c, err := reg.Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, claude, c)

	c, err = reg.Resolve("sonnet")
	require.NoError(t, err)
	assert.Equal(t, claude, c)

	c, err = reg.Resolve("anything-else")
	require.NoError(t, err)
	assert.Equal(t, gemini, c)
}

func TestRegistryResolveNoProvider(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Resolve("sonnet")
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register("claude", &MockClient{ProviderName: "claude"})
	reg.Register("ollama", &MockClient{ProviderName: "ollama"})
	assert.ElementsMatch(t, []string{"claude", "ollama"}, reg.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg := NewRegistryFromConfig(config.LLMConfig{
		Provider:       "claude",
		APIKey:         "sk-test",
		Model:          "claude-sonnet",
		TimeoutSeconds: 5,
	}, testLogger())

	c, err := reg.Resolve("sonnet")
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())
}

func TestNewRegistryFromConfigMissingKey(t *testing.T) {
	reg := NewRegistryFromConfig(config.LLMConfig{
		Provider: "claude",
		Model:    "claude-sonnet",
	}, testLogger())

	_, err := reg.Resolve("claude")
	assert.Error(t, err, "claude without an API key registers nothing")
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "claude", Code: 429, Message: "rate limited"}
	assert.Equal(t, "claude: 429 rate limited", err.Error())

	err = &ProviderError{Provider: "ollama", Message: "connection refused"}
	assert.Equal(t, "ollama: connection refused", err.Error())
}

func TestClaudeAPIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet", body["model"])
		assert.NotEmpty(t, body["system"])

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": "hello there"}},
			"model":       "claude-sonnet",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	c := NewClaudeAPIClient("sk-test", "claude-sonnet", 5*time.Second)
	c.baseURL = srv.URL

	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:   "be helpful",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestClaudeAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClaudeAPIClient("sk-test", "claude-sonnet", 5*time.Second)
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusServiceUnavailable, perr.Code)
}

func TestGeminiAPIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-pro:generateContent")
		assert.Equal(t, "gkey", r.URL.Query().Get("key"))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content":      map[string]any{"parts": []map[string]string{{"text": "namaste"}}},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 7, "candidatesTokenCount": 3},
		})
	}))
	defer srv.Close()

	g := NewGeminiAPIClient("gkey", "gemini-pro", 5*time.Second)
	g.baseURL = srv.URL

	resp, err := g.Complete(context.Background(), CompletionRequest{
		System:   "persona",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "namaste", resp.Content)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, 7, resp.Usage.InputTokens)
}

func TestOllamaAPIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])

		json.NewEncoder(w).Encode(map[string]any{
			"model":    "llama3",
			"response": "local reply",
			"done":     true,
		})
	}))
	defer srv.Close()

	o := NewOllamaAPIClient(srv.URL, "llama3", 5*time.Second)

	resp, err := o.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local reply", resp.Content)
}

func TestMockClientDefault(t *testing.T) {
	m := &MockClient{}
	resp, err := m.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Equal(t, "mock", m.Name())
}
