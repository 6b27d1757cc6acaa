// Package risk scores the investor questionnaire into a risk category and
// owns the circuit breakers that guard external stages.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

// StageName identifies the risk stage in status maps and metrics
const StageName = "risk"

// ErrInvalidInput matches every questionnaire validation failure
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError describes which answer was rejected
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) match
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Choice is one allowed answer and the points it carries
type Choice struct {
	Value  string `json:"value"`
	Points int    `json:"points"`
}

// Question is a single questionnaire entry
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []Choice `json:"choices"`
}

// Category breakpoints on the total score
const (
	ConservativeMax = 3
	ModerateMax     = 7
)

var questionnaire = []Question{
	{
		ID:     "age_group",
		Prompt: "Which age group are you in?",
		Choices: []Choice{
			{Value: "60_plus", Points: 0},
			{Value: "45_60", Points: 1},
			{Value: "30_45", Points: 2},
			{Value: "under_30", Points: 3},
		},
	},
	{
		ID:     "time_horizon",
		Prompt: "How long do you plan to stay invested?",
		Choices: []Choice{
			{Value: "under_3_years", Points: 0},
			{Value: "3_5_years", Points: 1},
			{Value: "5_10_years", Points: 2},
			{Value: "over_10_years", Points: 3},
		},
	},
	{
		ID:     "loss_tolerance",
		Prompt: "What temporary loss could you sit through without selling?",
		Choices: []Choice{
			{Value: "none", Points: 0},
			{Value: "up_to_10_pct", Points: 1},
			{Value: "10_20_pct", Points: 2},
			{Value: "over_20_pct", Points: 3},
		},
	},
	{
		ID:     "investment_experience",
		Prompt: "How long have you been investing?",
		Choices: []Choice{
			{Value: "none", Points: 0},
			{Value: "1_3_years", Points: 1},
			{Value: "over_3_years", Points: 2},
		},
	},
	{
		ID:     "income_stability",
		Prompt: "How stable is your income?",
		Choices: []Choice{
			{Value: "unstable", Points: 0},
			{Value: "stable", Points: 1},
		},
	},
}

// Questionnaire returns a copy of the ordered questions
func Questionnaire() []Question {
	out := make([]Question, len(questionnaire))
	for i, q := range questionnaire {
		out[i] = q
		out[i].Choices = append([]Choice(nil), q.Choices...)
	}
	return out
}

// Score maps ordered answers to a risk profile. Answers match choices
// case-insensitively; a missing or unknown answer is rejected.
func Score(answers []string) (portfolio.RiskProfile, error) {
	if len(answers) != len(questionnaire) {
		return portfolio.RiskProfile{}, &InvalidInputError{
			Reason: fmt.Sprintf("expected %d answers, got %d", len(questionnaire), len(answers)),
		}
	}

	total := 0
	for i, q := range questionnaire {
		points, ok := q.points(answers[i])
		if !ok {
			return portfolio.RiskProfile{}, &InvalidInputError{
				Field:  q.ID,
				Reason: fmt.Sprintf("unknown choice %q", answers[i]),
			}
		}
		total += points
	}

	return portfolio.RiskProfile{Category: Categorize(total), Score: total}, nil
}

// AnswersFromMap orders answers keyed by question ID
func AnswersFromMap(answers map[string]string) ([]string, error) {
	ordered := make([]string, len(questionnaire))
	for i, q := range questionnaire {
		v, ok := answers[q.ID]
		if !ok {
			return nil, &InvalidInputError{Field: q.ID, Reason: "missing answer"}
		}
		ordered[i] = v
	}
	if len(answers) > len(questionnaire) {
		for k := range answers {
			if !knownQuestion(k) {
				return nil, &InvalidInputError{Field: k, Reason: "unknown question"}
			}
		}
	}
	return ordered, nil
}

// Categorize applies the fixed breakpoints to a total score
func Categorize(score int) portfolio.RiskCategory {
	switch {
	case score <= ConservativeMax:
		return portfolio.RiskConservative
	case score <= ModerateMax:
		return portfolio.RiskModerate
	default:
		return portfolio.RiskAggressive
	}
}

func (q Question) points(answer string) (int, bool) {
	answer = strings.TrimSpace(answer)
	for _, c := range q.Choices {
		if strings.EqualFold(c.Value, answer) {
			return c.Points, true
		}
	}
	return 0, false
}

func knownQuestion(id string) bool {
	for _, q := range questionnaire {
		if q.ID == id {
			return true
		}
	}
	return false
}
