// internal/oracle/gemini_test.go
package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

func geminiTestConfig(endpoint string) config.OracleConfig {
	return config.OracleConfig{
		Provider:          "gemini",
		Model:             "gemini-2.5-flash",
		APIKey:            "test-key",
		Endpoint:          endpoint,
		APITimeout:        5 * time.Second,
		MaxTokens:         256,
		RequestsPerMinute: 100000,
	}
}

const geminiOKBody = `{
  "candidates": [
    {"content": {"parts": [{"text": "{\"selectedLocalId\":\"ux-1\",\"action\":\"click\"}"}], "role": "model"}, "finishReason": "STOP"}
  ],
  "usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
}`

func TestGeminiGenerateResponse(t *testing.T) {
	var gotKey, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(geminiOKBody))
	}))
	defer server.Close()

	client, err := NewGeminiClient(geminiTestConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "pick one",
		UserPrompt:   "candidates",
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	})

	require.NoError(t, err)
	assert.Contains(t, resp, "ux-1")
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "application/json", gotContentType)
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(geminiOKBody))
	}))
	defer server.Close()

	client, err := NewGeminiClient(geminiTestConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGeminiDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid payload"}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(geminiTestConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses are permanent failures")
}

func TestGeminiEmptyCandidatesIsPermanent(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(geminiTestConfig(server.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	cfg := geminiTestConfig("")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewClientFactory(t *testing.T) {
	logger := zap.NewNop()

	// No API key: nil client, no error, fallback policy takes over.
	client, err := NewClient(config.OracleConfig{}, logger)
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = NewClient(geminiTestConfig(""), logger)
	require.NoError(t, err)
	assert.NotNil(t, client)

	cfg := geminiTestConfig("")
	cfg.Provider = "davinci"
	_, err = NewClient(cfg, logger)
	assert.Error(t, err)
}
