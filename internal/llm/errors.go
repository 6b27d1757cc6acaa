package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when the model produced no content
var ErrEmptyResponse = errors.New("empty LLM response")

// LLMError is an API-level failure with the HTTP status that caused it
type LLMError struct {
	StatusCode int
	Message    string
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("LLM API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the same request may succeed later:
// rate limits, timeouts and server-side failures.
func (e *LLMError) IsRetryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func classifyHTTPError(statusCode int, message string) *LLMError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &LLMError{StatusCode: statusCode, Message: message}
}
