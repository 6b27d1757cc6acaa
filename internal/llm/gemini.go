package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// GeminiClient reasons through the Gemini API
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	jsonMode    bool
}

// GeminiConfig configures a GeminiClient
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// BaseURL overrides the API endpoint
	BaseURL  string
	JSONMode bool
}

// NewGeminiClient creates a Gemini API client
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
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

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       config.Model,
		temperature: float32(config.Temperature),
		maxTokens:   int32(config.MaxTokens),
		timeout:     config.Timeout,
		jsonMode:    config.JSONMode,
	}, nil
}

// Model returns the configured model name
func (g *GeminiClient) Model() string {
	return g.model
}

// Reason implements Reasoner
func (g *GeminiClient) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: g.maxTokens,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{
			{Text: systemPrompt},
		}},
	}
	if g.jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", convertGeminiError(err)
	}

	text := resp.Text()
	log.Debug().
		Str("model", g.model).
		Int("response_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Gemini request completed")

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// convertGeminiError maps API errors onto LLMError so retry decisions
// work the same for every backend.
func convertGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPError(apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyHTTPError(apiErrPtr.Code, apiErrPtr.Message)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
