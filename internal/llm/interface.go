package llm

import "context"

// Reasoner produces a free-text answer for a system + user prompt pair.
// Implementations return *LLMError for API failures so callers can tell
// retryable errors from permanent ones.
type Reasoner interface {
	Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Ensure Client implements Reasoner
var _ Reasoner = (*Client)(nil)

// Ensure GeminiClient implements Reasoner
var _ Reasoner = (*GeminiClient)(nil)

// Ensure FallbackClient implements Reasoner
var _ Reasoner = (*FallbackClient)(nil)
