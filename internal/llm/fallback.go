package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FallbackClient fails over between reasoners in order of preference.
// A model that keeps failing is skipped for a cool-down period.
type FallbackClient struct {
	reasoners []Reasoner
	circuits  *ModelCircuits
}

// ModelCircuitConfig configures per-model failure tracking
type ModelCircuitConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a model's circuit
	FailureThreshold int
	// Cooldown is how long an open circuit skips the model
	Cooldown time.Duration
}

// DefaultModelCircuitConfig returns sensible defaults
func DefaultModelCircuitConfig() ModelCircuitConfig {
	return ModelCircuitConfig{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
	}
}

// NewFallbackClient creates a client that tries primary first, then each fallback
func NewFallbackClient(config ModelCircuitConfig, primary Reasoner, fallbacks ...Reasoner) *FallbackClient {
	if config.FailureThreshold <= 0 {
		config = DefaultModelCircuitConfig()
	}
	reasoners := append([]Reasoner{primary}, fallbacks...)
	return &FallbackClient{
		reasoners: reasoners,
		circuits:  NewModelCircuits(len(reasoners), config),
	}
}

// Model lists the models in failover order
func (fc *FallbackClient) Model() string {
	names := make([]string, len(fc.reasoners))
	for i, r := range fc.reasoners {
		names[i] = r.Model()
	}
	return strings.Join(names, ",")
}

// Reason tries each model in order and returns the first success. The
// returned error wraps the last model's error, so an all-permanent failure
// stays non-retryable for the caller.
func (fc *FallbackClient) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error

	for i, r := range fc.reasoners {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		model := r.Model()

		if fc.circuits.IsOpen(i) {
			log.Warn().
				Str("model", model).
				Msg("Model circuit open, skipping model")
			continue
		}

		start := time.Now()
		text, err := r.Reason(ctx, systemPrompt, userPrompt)
		duration := time.Since(start)

		if err == nil {
			fc.circuits.RecordSuccess(i)
			if i > 0 {
				log.Info().
					Str("model", model).
					Int("attempt", i+1).
					Dur("duration", duration).
					Msg("LLM fallback model succeeded")
			}
			return text, nil
		}

		fc.circuits.RecordFailure(i)
		lastErr = err

		log.Warn().
			Err(err).
			Str("model", model).
			Int("attempt", i+1).
			Dur("duration", duration).
			Msg("LLM completion failed, trying fallback")
	}

	if lastErr == nil {
		return "", &LLMError{StatusCode: http.StatusServiceUnavailable, Message: "all model circuits open"}
	}
	return "", fmt.Errorf("all models failed, last error: %w", lastErr)
}

// ModelCircuits tracks consecutive failures per model
type ModelCircuits struct {
	mu       sync.Mutex
	config   ModelCircuitConfig
	failures []int
	openedAt []time.Time
}

// NewModelCircuits creates failure tracking for n models
func NewModelCircuits(n int, config ModelCircuitConfig) *ModelCircuits {
	return &ModelCircuits{
		config:   config,
		failures: make([]int, n),
		openedAt: make([]time.Time, n),
	}
}

// IsOpen reports whether model i is cooling down. Once the cool-down has
// passed the model gets one trial request.
func (mc *ModelCircuits) IsOpen(i int) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if i < 0 || i >= len(mc.failures) {
		return true
	}
	if mc.openedAt[i].IsZero() {
		return false
	}
	if time.Since(mc.openedAt[i]) >= mc.config.Cooldown {
		mc.openedAt[i] = time.Time{}
		mc.failures[i] = mc.config.FailureThreshold - 1
		return false
	}
	return true
}

// RecordSuccess closes model i's circuit
func (mc *ModelCircuits) RecordSuccess(i int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if i < 0 || i >= len(mc.failures) {
		return
	}
	mc.failures[i] = 0
	mc.openedAt[i] = time.Time{}
}

// RecordFailure counts a failure and opens the circuit at the threshold
func (mc *ModelCircuits) RecordFailure(i int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if i < 0 || i >= len(mc.failures) {
		return
	}
	mc.failures[i]++
	if mc.failures[i] >= mc.config.FailureThreshold && mc.openedAt[i].IsZero() {
		mc.openedAt[i] = time.Now()
		log.Warn().
			Int("model_index", i).
			Int("consecutive_failures", mc.failures[i]).
			Msg("Model circuit opened due to failures")
	}
}
