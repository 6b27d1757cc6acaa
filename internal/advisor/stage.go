package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/llm"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// StageName identifies the advisor stage in status maps and metrics
const StageName = "advisor"

// MaxRecommendations caps how many reasoning results are kept
const MaxRecommendations = 10

var (
	// ErrNoReasoner is returned when no reasoning backend is configured
	ErrNoReasoner = errors.New("no reasoning backend configured")
	// ErrInvalidResponse is returned when the reasoning output has no usable goal
	ErrInvalidResponse = errors.New("invalid advisor response")
)

// Advisor holds the reasoning backend shared by every run
type Advisor struct {
	reasoner llm.Reasoner
	logger   zerolog.Logger
}

// New creates an advisor. A nil reasoner makes every stage fall back.
func New(reasoner llm.Reasoner) *Advisor {
	return &Advisor{
		reasoner: reasoner,
		logger:   config.NewLogger("advisor"),
	}
}

// Model names the reasoning backend, or "none"
func (a *Advisor) Model() string {
	if a.reasoner == nil {
		return "none"
	}
	return a.reasoner.Model()
}

// Stage binds the advisor to one run's input. It implements
// stage.External[[]portfolio.Recommendation].
func (a *Advisor) Stage(in Input) *Stage {
	return &Stage{advisor: a, input: in, prompt: BuildPrompt(in)}
}

// Stage is the advisor for a single run
type Stage struct {
	advisor *Advisor
	input   Input
	prompt  string
}

// Prompt returns the user prompt sent to the reasoning backend
func (s *Stage) Prompt() string { return s.prompt }

// Name implements stage.External
func (s *Stage) Name() string { return StageName }

type response struct {
	Recommendations []struct {
		Goal      string `json:"goal"`
		Rationale string `json:"rationale"`
		Action    string `json:"action"`
	} `json:"recommendations"`
}

// Fetch performs the reasoning call and validates the response shape
func (s *Stage) Fetch(ctx context.Context) ([]portfolio.Recommendation, error) {
	if s.advisor.reasoner == nil {
		return nil, ErrNoReasoner
	}

	start := time.Now()
	text, err := s.advisor.reasoner.Reason(ctx, SystemPrompt, s.prompt)
	if err != nil {
		return nil, err
	}

	recs, err := parseRecommendations(text)
	if err != nil {
		s.advisor.logger.Warn().
			Err(err).
			Str("model", s.advisor.reasoner.Model()).
			Int("response_length", len(text)).
			Msg("Advisor response rejected")
		return nil, err
	}

	s.advisor.logger.Debug().
		Str("model", s.advisor.reasoner.Model()).
		Int("recommendations", len(recs)).
		Dur("duration", time.Since(start)).
		Msg("Advisor recommendations generated")

	return recs, nil
}

func parseRecommendations(text string) ([]portfolio.Recommendation, error) {
	var resp response
	if err := llm.ParseJSONResponse(text, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	recs := make([]portfolio.Recommendation, 0, len(resp.Recommendations))
	for _, r := range resp.Recommendations {
		goal := strings.TrimSpace(r.Goal)
		if goal == "" {
			continue
		}
		recs = append(recs, portfolio.Recommendation{
			Goal:      goal,
			Rationale: strings.TrimSpace(r.Rationale),
			Action:    strings.TrimSpace(r.Action),
			Source:    portfolio.SourceAdvisor,
		})
		if len(recs) == MaxRecommendations {
			break
		}
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no recommendation with a goal", ErrInvalidResponse)
	}
	return recs, nil
}

// Fallback implements stage.External
func (s *Stage) Fallback() []portfolio.Recommendation {
	return DefaultRecommendations(s.input)
}
