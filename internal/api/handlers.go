package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/finadvisor/internal/db"
	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/orchestrator"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
	"github.com/ajitpratap0/finadvisor/internal/risk"
)

// Response status values
const (
	StatusOK               = "ok"
	StatusPasswordRequired = "password_required"
	StatusParseError       = "parse_error"
	StatusInvalidInput     = "invalid_input"
	StatusCanceled         = "canceled"
	StatusError            = "error"
)

var startTime = time.Now()

// analyzeRequest is the body of POST /api/v1/analyze. Answers are either an
// ordered array or an object keyed by question ID.
type analyzeRequest struct {
	Portfolio *portfolio.Portfolio `json:"portfolio"`
	Answers   json.RawMessage      `json:"answers"`
}

// riskRequest is the body of POST /api/v1/risk-assessment
type riskRequest struct {
	Answers json.RawMessage `json:"answers"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "FinAdvisor API",
		"version": s.version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   s.version,
		"uptime":    time.Since(startTime).Seconds(),
		"timestamp": time.Now().UTC(),
	})
}

// handleUpload extracts a statement without running the pipeline
func (s *Server) handleUpload(c *gin.Context) {
	doc, err := s.readDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := s.extractor.Extract(c.Request.Context(), doc)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       StatusOK,
		"portfolio":    p,
		"top_holdings": p.TopHoldings(orchestrator.TopHoldingsCount),
	})
}

// handleAnalyze runs the pipeline from an already extracted portfolio
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": StatusInvalidInput,
			"detail": "Invalid request format: " + err.Error(),
		})
		return
	}
	if req.Portfolio == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": StatusInvalidInput, "detail": "portfolio is required"})
		return
	}
	if err := validateHoldings(req.Portfolio); err != nil {
		writeError(c, err)
		return
	}
	answers, err := decodeAnswers(req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.pipeline.Execute(c.Request.Context(), orchestrator.Request{
		Portfolio: req.Portfolio,
		Answers:   answers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handlePlan uploads a statement and runs the whole pipeline in one request
func (s *Server) handlePlan(c *gin.Context) {
	doc, err := s.readDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	answers, err := formAnswers(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.pipeline.Execute(c.Request.Context(), orchestrator.Request{
		Document: &doc,
		Answers:  answers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleQuestionnaire(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"questions": risk.Questionnaire(),
		"categories": gin.H{
			"conservative": fmt.Sprintf("0-%d", risk.ConservativeMax),
			"moderate":     fmt.Sprintf("%d-%d", risk.ConservativeMax+1, risk.ModerateMax),
			"aggressive":   fmt.Sprintf("%d+", risk.ModerateMax+1),
		},
	})
}

func (s *Server) handleRiskAssessment(c *gin.Context) {
	var req riskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": StatusInvalidInput,
			"detail": "Invalid request format: " + err.Error(),
		})
		return
	}
	answers, err := decodeAnswers(req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	profile, err := risk.Score(answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": StatusOK, "risk_profile": profile})
}

func (s *Server) handleMarketOutlook(c *gin.Context) {
	out := s.pipeline.FetchOutlook(c.Request.Context())

	body := gin.H{
		"market_outlook": out.Value,
		"status":         out.Status,
	}
	if out.Err != nil {
		body["detail"] = out.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

type stageView struct {
	orchestrator.StageInfo
	Breaker string `json:"breaker_state,omitempty"`
}

func (s *Server) handleStages(c *gin.Context) {
	var states map[string]string
	if s.breakers != nil {
		states = s.breakers.States()
	}

	stages := s.pipeline.Describe()
	views := make([]stageView, 0, len(stages))
	for _, info := range stages {
		view := stageView{StageInfo: info}
		switch info.Name {
		case orchestrator.StageMarket:
			view.Breaker = states[risk.BreakerMarket]
		case orchestrator.StageAdvisor:
			view.Breaker = states[risk.BreakerLLM]
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"stages": views, "count": len(views)})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run history is not enabled"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run history is not enabled"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return
	}

	run, err := s.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// decodeAnswers accepts an ordered array or an object keyed by question ID
func decodeAnswers(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &risk.InvalidInputError{Field: "answers", Reason: "answers are required"}
	}

	if raw[0] == '{' {
		var byID map[string]string
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, &risk.InvalidInputError{Field: "answers", Reason: "answers must map question IDs to choices"}
		}
		return risk.AnswersFromMap(byID)
	}

	var ordered []string
	if err := json.Unmarshal(raw, &ordered); err != nil {
		return nil, &risk.InvalidInputError{Field: "answers", Reason: "answers must be an array of choices"}
	}
	return ordered, nil
}

// validateHoldings rejects holdings a statement could never produce
func validateHoldings(p *portfolio.Portfolio) error {
	for i, h := range p.Holdings {
		field := fmt.Sprintf("portfolio.holdings[%d]", i)
		switch {
		case !h.Category.Valid():
			return &risk.InvalidInputError{Field: field, Reason: fmt.Sprintf("unknown category %q", h.Category)}
		case h.Identifier == "":
			return &risk.InvalidInputError{Field: field, Reason: "identifier is required"}
		case h.CurrentValue.IsNegative():
			return &risk.InvalidInputError{Field: field, Reason: "current_value must not be negative"}
		}
	}
	return nil
}

// writeError maps pipeline and request errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	var reqErr *requestError
	var invalid *risk.InvalidInputError

	switch {
	case errors.As(err, &reqErr):
		c.JSON(reqErr.status, gin.H{"status": StatusInvalidInput, "detail": reqErr.msg})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"status": StatusInvalidInput, "field": invalid.Field, "detail": invalid.Reason})
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"status": StatusInvalidInput, "detail": err.Error()})
	case errors.Is(err, extractor.ErrPasswordRequired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": StatusPasswordRequired})
	case extractor.IsParseError(err):
		var pe *extractor.ParseError
		errors.As(err, &pe)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": StatusParseError, "detail": pe.Error()})
	case errors.Is(err, orchestrator.ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": StatusCanceled})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": StatusError})
	}
}
