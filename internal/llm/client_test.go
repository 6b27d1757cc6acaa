//nolint:goconst // Test files use repeated strings for clarity
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		wantError     bool
		wantRetryable bool
	}{
		{
			name:       "Successful response",
			statusCode: http.StatusOK,
			responseBody: `{
				"id": "test-123",
				"model": "gpt-4o-mini",
				"choices": [{
					"message": {
						"role": "assistant",
						"content": "{\"recommendations\": []}"
					}
				}],
				"usage": {"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150}
			}`,
		},
		{
			name:          "Rate limit error (retryable)",
			statusCode:    http.StatusTooManyRequests,
			responseBody:  `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`,
			wantError:     true,
			wantRetryable: true,
		},
		{
			name:          "Server error (retryable)",
			statusCode:    http.StatusBadGateway,
			responseBody:  `upstream unavailable`,
			wantError:     true,
			wantRetryable: true,
		},
		{
			name:          "Bad request (non-retryable)",
			statusCode:    http.StatusBadRequest,
			responseBody:  `{"error": {"message": "Invalid request format", "type": "invalid_request_error"}}`,
			wantError:     true,
			wantRetryable: false,
		},
		{
			name:          "Unauthorized (non-retryable)",
			statusCode:    http.StatusUnauthorized,
			responseBody:  `{"error": {"message": "Invalid API key", "type": "authentication_error"}}`,
			wantError:     true,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{
				Endpoint: server.URL,
				APIKey:   "test-key",
				Timeout:  5 * time.Second,
			})

			resp, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "Test message"}})

			if !tt.wantError {
				require.NoError(t, err)
				require.NotNil(t, resp)
				return
			}

			var llmErr *LLMError
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.statusCode, llmErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, llmErr.IsRetryable())
		})
	}
}

func TestClient_RequestShape(t *testing.T) {
	var got ChatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint: server.URL,
		APIKey:   "secret",
		Model:    "advisor-model",
		JSONMode: true,
	})

	text, err := client.Reason(context.Background(), "system text", "user text")
	require.NoError(t, err)

	assert.Equal(t, "ok", text)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "advisor-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	_, err := client.Reason(context.Background(), "s", "u")

	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Reason(ctx, "s", "u")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Goal string `json:"goal"`
	}

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain json", content: `{"goal": "a"}`, want: "a"},
		{name: "json fence", content: "Here you go:\n```json\n{\"goal\": \"b\"}\n```\nThanks", want: "b"},
		{name: "bare fence", content: "```\n{\"goal\": \"c\"}\n```", want: "c"},
		{name: "unterminated fence", content: "```json\n{\"goal\": \"d\"}", want: "d"},
		{name: "not json", content: "I cannot help with that", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := ParseJSONResponse(tt.content, &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Goal)
		})
	}
}

func TestLLMError_IsRetryable(t *testing.T) {
	assert.True(t, classifyHTTPError(http.StatusTooManyRequests, "").IsRetryable())
	assert.True(t, classifyHTTPError(http.StatusRequestTimeout, "").IsRetryable())
	assert.True(t, classifyHTTPError(http.StatusServiceUnavailable, "").IsRetryable())
	assert.False(t, classifyHTTPError(http.StatusForbidden, "").IsRetryable())
	assert.Equal(t, "LLM API error (status 404): Not Found", classifyHTTPError(http.StatusNotFound, "").Error())
}
