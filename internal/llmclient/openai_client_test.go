package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/feedpilot/internal/config"
)

const chatCompletionReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"steps\": []}"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

// setupOpenAIClient points an OpenAIClient at a mock chat completions server.
func setupOpenAIClient(t *testing.T, provider config.LLMProvider, handler http.HandlerFunc) (*OpenAIClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	cfg := getValidLLMConfig(provider)
	cfg.Endpoint = server.URL

	client, err := NewOpenAIClient(cfg, zap.New(loggerCore))
	require.NoError(t, err)
	client.policy = fastPolicy()
	return client, observedLogs
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	cfg := getValidLLMConfig(config.ProviderOpenAI)
	cfg.APIKey = ""
	_, err := NewOpenAIClient(cfg, setupTestLogger(t))
	assert.ErrorContains(t, err, "API key is required")

	cfg = getValidLLMConfig(config.ProviderOpenRouter)
	cfg.Model = ""
	_, err = NewOpenAIClient(cfg, setupTestLogger(t))
	assert.ErrorContains(t, err, "model name is required")
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	var captured map[string]interface{}
	client, observedLogs := setupOpenAIClient(t, config.ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatCompletionReply)
	})

	out, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, `{"steps": []}`, out)

	assert.Equal(t, "test-model", captured["model"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	system := messages[0].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "Respond with JSON matching this shape")
	format := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_object", format["type"])

	require.Equal(t, 1, observedLogs.FilterMessage("LLM generation complete").Len())
}

func TestOpenAIClient_Generate_RetriesTransient(t *testing.T) {
	var calls int32
	client, _ := setupOpenAIClient(t, config.ProviderOpenRouter, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
			return
		}
		_, _ = io.WriteString(w, chatCompletionReply)
	})

	out, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_Generate_PermanentError(t *testing.T) {
	var calls int32
	client, _ := setupOpenAIClient(t, config.ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "bad model", "type": "invalid_request_error"}}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx responses are not retried")
}
