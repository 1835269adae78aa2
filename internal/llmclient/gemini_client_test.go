package llmclient

import (
	"context"
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

const geminiReply = `{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "{\"items\": []}"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
}`

// setupGeminiClient rigs up a GeminiClient pointed at a mock HTTP server.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	cfg := getValidLLMConfig(config.ProviderGemini)
	cfg.Endpoint = server.URL + "/"

	client, err := NewGeminiClient(context.Background(), cfg, zap.New(loggerCore))
	require.NoError(t, err, "NewGeminiClient initialization failed")
	client.policy = fastPolicy()
	return client, observedLogs
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	cfg := getValidLLMConfig(config.ProviderGemini)
	cfg.APIKey = ""
	_, err := NewGeminiClient(context.Background(), cfg, setupTestLogger(t))
	assert.ErrorContains(t, err, "API key is required")
}

func TestGeminiClient_Generate_Success(t *testing.T) {
	var body string
	client, observedLogs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "test-model:generateContent")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiReply)
	})

	out, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, `{"items": []}`, out)
	assert.Contains(t, body, "User query.")
	assert.Contains(t, body, "application/json")
	assert.True(t, strings.Contains(body, "Respond with JSON matching this shape"), "schema hint is sent with the system instruction")
	assert.Equal(t, 1, observedLogs.FilterMessage("LLM generation complete (Gemini)").Len())
}

func TestGeminiClient_Generate_RetriesTransient(t *testing.T) {
	var calls int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error": {"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}}`)
			return
		}
		_, _ = io.WriteString(w, geminiReply)
	})

	_, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeminiClient_Generate_PermanentError(t *testing.T) {
	var calls int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeminiClient_Generate_NoCandidates(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates": []}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	assert.ErrorContains(t, err, "no candidates")
}
