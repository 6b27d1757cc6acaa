package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestGeminiClient_Reason(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "{\"recommendations\": []}"}]},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-1.5-flash",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	text, err := client.Reason(context.Background(), "system", "user")
	require.NoError(t, err)

	assert.Equal(t, `{"recommendations": []}`, text)
	assert.True(t, strings.Contains(path, "gemini-1.5-flash:generateContent"), path)
	assert.Equal(t, "gemini-1.5-flash", client.Model())
}

func TestGeminiClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Reason(context.Background(), "system", "user")

	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.StatusCode)
	assert.True(t, llmErr.IsRetryable())
}
