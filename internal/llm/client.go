package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to an OpenAI-compatible chat completions gateway
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	jsonMode    bool
	httpClient  *http.Client
}

// ClientConfig contains configuration for the LLM client
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// JSONMode requests a JSON object response from gateways that support it
	JSONMode bool
}

// NewClient creates a new LLM client
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1500
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		timeout:     config.Timeout,
		jsonMode:    config.JSONMode,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete sends a chat completion request to the LLM
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.jsonMode {
		request.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Str("model", c.model).
		Int("message_count", len(messages)).
		Msg("Sending LLM request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, classifyHTTPError(resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, classifyHTTPError(resp.StatusCode, errResp.Error.Message)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	log.Debug().
		Str("model", chatResp.Model).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", duration).
		Msg("LLM request completed")

	return &chatResp, nil
}

// CompleteWithSystem sends a request with a system message and user message
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	resp, err := c.Complete(ctx, messages)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// Reason implements Reasoner
func (c *Client) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// ParseJSONResponse parses a JSON response from the LLM, tolerating markdown code fences
func ParseJSONResponse(content string, target interface{}) error {
	content = extractJSONFromMarkdown(content)

	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return nil
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(content string) string {
	// Look for ```json ... ``` or ``` ... ```
	start := -1

	contentBytes := []byte(content)
	if idx := bytes.Index(contentBytes, []byte("```json")); idx >= 0 {
		start = idx + 7
	} else if idx := bytes.Index(contentBytes, []byte("```")); idx >= 0 {
		start = idx + 3
	}

	if start >= 0 {
		// Find closing ```
		if idx := bytes.Index(contentBytes[start:], []byte("```")); idx >= 0 {
			content = content[start : start+idx]
		} else {
			content = content[start:]
		}
	}

	return string(bytes.TrimSpace([]byte(content)))
}
