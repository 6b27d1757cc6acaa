// Package orchestrator sequences the analysis stages of one run through a
// single-use state machine. Extraction is the only stage that can fail a run;
// every later stage degrades to a deterministic fallback and records why.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/finadvisor/internal/advisor"
	"github.com/ajitpratap0/finadvisor/internal/config"
	"github.com/ajitpratap0/finadvisor/internal/db"
	"github.com/ajitpratap0/finadvisor/internal/extractor"
	"github.com/ajitpratap0/finadvisor/internal/metrics"
	"github.com/ajitpratap0/finadvisor/internal/portfolio"
	"github.com/ajitpratap0/finadvisor/internal/risk"
	"github.com/ajitpratap0/finadvisor/internal/stage"
)

// TopHoldingsCount is the number of holdings summarized in a result
const TopHoldingsCount = 5

var (
	// ErrRunConsumed is returned when Execute is called twice on one Run
	ErrRunConsumed = errors.New("run already executed")
	// ErrCanceled is returned when the caller cancels a run; no result is produced
	ErrCanceled = errors.New("run canceled")
	// ErrPipelineFailed wraps the extraction error that failed a run
	ErrPipelineFailed = errors.New("pipeline failed")
	// ErrInvalidRequest is returned for a request without exactly one input
	ErrInvalidRequest = errors.New("invalid run request")
)

// Extractor turns a statement into a portfolio
type Extractor interface {
	Extract(ctx context.Context, doc extractor.Document) (*portfolio.Portfolio, error)
}

// AuditStore persists run summaries
type AuditStore interface {
	SaveRun(ctx context.Context, s db.RunSummary) error
}

// Config holds the immutable per-pipeline settings
type Config struct {
	MarketPolicy  stage.Policy
	AdvisorPolicy stage.Policy
	// RunTimeout bounds a whole run; zero disables it
	RunTimeout time.Duration
	// AuditTimeout bounds the best-effort summary write
	AuditTimeout time.Duration
}

// Dependencies are the stage implementations a pipeline sequences
type Dependencies struct {
	Extractor Extractor
	Analyzer  *portfolio.Analyzer
	Market    stage.External[portfolio.MarketOutlook]
	Advisor   *advisor.Advisor
	// Audit is optional
	Audit AuditStore
	// AuditBreaker is optional and wraps audit writes
	AuditBreaker *gobreaker.CircuitBreaker
}

// Pipeline builds runs that share configuration and stage implementations
type Pipeline struct {
	cfg  Config
	deps Dependencies
	log  zerolog.Logger
}

// New creates a pipeline. Missing stages get inert defaults; the market stage
// then always falls back and the advisor runs without a reasoner.
func New(cfg Config, deps Dependencies) *Pipeline {
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(extractor.RulePAN)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = portfolio.NewAnalyzer(nil, portfolio.DefaultThresholds())
	}
	if deps.Market == nil {
		deps.Market = stage.Funcs[portfolio.MarketOutlook]{
			StageName: StageMarket,
			FetchFunc: func(context.Context) (portfolio.MarketOutlook, error) {
				return portfolio.MarketOutlook{}, errors.New("no market source configured")
			},
			FallbackFunc: portfolio.NeutralOutlook,
		}
	}
	if deps.Advisor == nil {
		deps.Advisor = advisor.New(nil)
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = 2 * time.Second
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  config.NewLogger("orchestrator"),
	}
}

// Request is the input of one run. Exactly one of Document and Portfolio is set.
type Request struct {
	Document  *extractor.Document
	Portfolio *portfolio.Portfolio
	Answers   []string
}

// Validate checks the request shape and the questionnaire answers
func (r Request) Validate() error {
	if (r.Document == nil) == (r.Portfolio == nil) {
		return fmt.Errorf("%w: exactly one of document or portfolio is required", ErrInvalidRequest)
	}
	if _, err := risk.Score(r.Answers); err != nil {
		return err
	}
	return nil
}

// Result is the aggregate produced by a completed run
type Result struct {
	RunID           string                        `json:"run_id"`
	State           State                         `json:"state"`
	Portfolio       *portfolio.Portfolio          `json:"portfolio"`
	TopHoldings     []portfolio.Holding           `json:"top_holdings"`
	Allocation      portfolio.AllocationBreakdown `json:"allocation"`
	Sectors         portfolio.SectorBreakdown     `json:"sector_breakdown"`
	Outlook         portfolio.MarketOutlook       `json:"market_outlook"`
	Risk            portfolio.RiskProfile         `json:"risk_profile"`
	Recommendations []portfolio.Recommendation    `json:"recommendations"`
	StageStatus     map[string]stage.Status       `json:"stage_status"`
	StageErrors     map[string]string             `json:"stage_errors,omitempty"`
	CompletedStages []string                      `json:"completed_stages"`
	Progress        float64                       `json:"progress"`
	Duration        time.Duration                 `json:"duration_ns"`
}

// Degraded reports whether any stage fell back
func (r *Result) Degraded() bool {
	for _, s := range r.StageStatus {
		if s != stage.StatusSuccess {
			return true
		}
	}
	return false
}

// Run is a single-use execution of the pipeline
type Run struct {
	id       string
	pipeline *Pipeline
	rc       *RunContext
	log      zerolog.Logger
	consumed atomic.Bool

	mu      sync.RWMutex
	state   State
	planned int
}

// NewRun creates a run with a fresh context and ID
func (p *Pipeline) NewRun() *Run {
	id := uuid.New().String()
	return &Run{
		id:       id,
		pipeline: p,
		rc:       NewRunContext(id),
		log:      config.NewRunLogger(id),
		state:    StateIdle,
	}
}

// Execute runs a fresh Run for req
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	return p.NewRun().Execute(ctx, req)
}

// ID returns the run ID
func (r *Run) ID() string { return r.id }

// State returns the current state
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Progress returns the percentage of planned stages that have resolved
func (r *Run) Progress() float64 {
	r.mu.RLock()
	planned := r.planned
	r.mu.RUnlock()
	if planned == 0 {
		return 0
	}
	return float64(len(r.rc.Completed())) * 100 / float64(planned)
}

func (r *Run) transition(to State) {
	r.mu.Lock()
	from := r.state
	if !CanTransition(from, to) {
		r.mu.Unlock()
		// Every call site follows the transition table.
		panic(&TransitionError{From: from, To: to})
	}
	r.state = to
	r.mu.Unlock()

	r.log.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("State transition")
}

// Execute drives the run to Complete or Failed. It returns ErrRunConsumed on
// a second call, ErrCanceled (wrapping the context error) when the caller
// cancels, and an error wrapping ErrPipelineFailed when extraction fails.
func (r *Run) Execute(ctx context.Context, req Request) (*Result, error) {
	if !r.consumed.CompareAndSwap(false, true) {
		return nil, ErrRunConsumed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := r.pipeline
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	r.mu.Lock()
	r.planned = 4
	if req.Document != nil {
		r.planned = 5
	}
	r.mu.Unlock()

	r.log.Info().
		Bool("from_document", req.Document != nil).
		Msg("Run started")

	pf, err := r.obtainPortfolio(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.cancel(ctx, start)
		}
		r.transition(StateFailed)
		r.finish(ctx, start, err)
		return nil, fmt.Errorf("%w: %w", ErrPipelineFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, r.cancel(ctx, start)
	}

	r.analyze(pf)
	if err := ctx.Err(); err != nil {
		return nil, r.cancel(ctx, start)
	}

	if err := r.gatherContext(ctx, req.Answers); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, r.cancel(ctx, start)
	}

	r.advise(ctx)
	if err := ctx.Err(); err != nil {
		return nil, r.cancel(ctx, start)
	}

	r.transition(StateComplete)
	result := r.result(time.Since(start))
	r.finish(ctx, start, nil)
	return result, nil
}

func (r *Run) obtainPortfolio(ctx context.Context, req Request) (*portfolio.Portfolio, error) {
	var pf *portfolio.Portfolio
	if req.Document != nil {
		r.transition(StateExtracting)
		stageStart := time.Now()

		extracted, err := r.pipeline.deps.Extractor.Extract(ctx, *req.Document)
		if err != nil {
			r.rc.Record(StageExtraction, stage.StatusFailed, err)
			metrics.RecordStage(StageExtraction, string(stage.StatusFailed), time.Since(stageStart))
			r.log.Warn().Err(err).Msg("Extraction failed")
			return nil, err
		}
		pf = extracted
		r.rc.Record(StageExtraction, stage.StatusSuccess, nil)
		metrics.RecordStage(StageExtraction, string(stage.StatusSuccess), time.Since(stageStart))
		metrics.RecordExtraction(countByCategory(pf), pf.SkippedRows)
	} else {
		pf = req.Portfolio.Recompute()
	}

	if err := r.rc.SetPortfolio(pf); err != nil {
		return nil, err
	}
	return pf, nil
}

func (r *Run) analyze(pf *portfolio.Portfolio) {
	r.transition(StateAnalyzing)
	stageStart := time.Now()

	analysis := r.pipeline.deps.Analyzer.Analyze(pf)
	if err := r.rc.SetAnalysis(analysis); err != nil {
		r.log.Error().Err(err).Msg("Analysis written twice")
	}

	r.rc.Record(StageAnalysis, stage.StatusSuccess, nil)
	metrics.RecordStage(StageAnalysis, string(stage.StatusSuccess), time.Since(stageStart))
}

// gatherContext runs the market and risk stages concurrently. Each goroutine
// returns its value; the context is written only after the join.
func (r *Run) gatherContext(ctx context.Context, answers []string) error {
	r.transition(StateGatheringContext)
	p := r.pipeline

	var (
		marketOut   stage.Outcome[portfolio.MarketOutlook]
		riskProfile portfolio.RiskProfile
		riskErr     error
		riskTook    time.Duration
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		marketOut = stage.FetchOrDefault(gctx, p.deps.Market, p.cfg.MarketPolicy)
		return nil
	})
	g.Go(func() error {
		riskStart := time.Now()
		riskProfile, riskErr = risk.Score(answers)
		riskTook = time.Since(riskStart)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.rc.SetOutlook(marketOut.Value); err != nil {
		r.log.Error().Err(err).Msg("Outlook written twice")
	}
	r.rc.Record(StageMarket, marketOut.Status, marketOut.Err)
	metrics.RecordStage(StageMarket, string(marketOut.Status), marketOut.Duration)

	riskStatus := stage.StatusSuccess
	if riskErr != nil {
		riskStatus = stage.StatusFailed
		riskProfile = portfolio.RiskProfile{Category: portfolio.RiskModerate}
	}
	if err := r.rc.SetRisk(riskProfile); err != nil {
		r.log.Error().Err(err).Msg("Risk written twice")
	}
	r.rc.Record(StageRisk, riskStatus, riskErr)
	metrics.RecordStage(StageRisk, string(riskStatus), riskTook)

	r.log.Info().
		Str("sentiment", string(marketOut.Value.Sentiment)).
		Str("market_status", string(marketOut.Status)).
		Str("risk_category", string(riskProfile.Category)).
		Msg("Context gathered")
	return nil
}

func (r *Run) advise(ctx context.Context) {
	r.transition(StateAdvising)
	p := r.pipeline

	in := advisor.Input{
		Portfolio:  r.rc.Portfolio,
		Allocation: r.rc.Allocation,
		Sectors:    r.rc.Sectors,
		Outlook:    r.rc.Outlook,
		Risk:       r.rc.Risk,
	}
	out := stage.FetchOrDefault[[]portfolio.Recommendation](ctx, p.deps.Advisor.Stage(in), p.cfg.AdvisorPolicy)

	if err := r.rc.AppendAdvice(out.Value); err != nil {
		r.log.Error().Err(err).Msg("Advice written twice")
	}
	r.rc.Record(StageAdvisor, out.Status, out.Err)
	metrics.RecordStage(StageAdvisor, string(out.Status), out.Duration)

	r.log.Info().
		Str("status", string(out.Status)).
		Int("recommendations", len(out.Value)).
		Str("model", p.deps.Advisor.Model()).
		Msg("Advice produced")
}

func (r *Run) result(took time.Duration) *Result {
	rc := r.rc
	return &Result{
		RunID:           r.id,
		State:           r.State(),
		Portfolio:       rc.Portfolio,
		TopHoldings:     rc.Portfolio.TopHoldings(TopHoldingsCount),
		Allocation:      rc.Allocation,
		Sectors:         rc.Sectors,
		Outlook:         rc.Outlook,
		Risk:            rc.Risk,
		Recommendations: rc.Recommendations,
		StageStatus:     rc.Status(),
		StageErrors:     rc.StageErrors(),
		CompletedStages: rc.Completed(),
		Progress:        r.Progress(),
		Duration:        took,
	}
}

// cancel ends a run abandoned by the caller. The state is left where the
// run stopped; no result is produced.
func (r *Run) cancel(ctx context.Context, start time.Time) error {
	cause := ctx.Err()
	r.log.Warn().
		Err(cause).
		Str("state", string(r.State())).
		Msg("Run canceled")
	metrics.RecordRun("canceled", time.Since(start))
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// finish records metrics and writes the audit summary for a terminal run
func (r *Run) finish(ctx context.Context, start time.Time, runErr error) {
	took := time.Since(start)
	state := r.State()
	metrics.RecordRun(string(state), took)

	summary := r.summary(start, took, runErr)
	if runErr != nil {
		metrics.RecordRunFailure(summary.FailureReason)
		r.log.Error().
			Err(runErr).
			Str("reason", summary.FailureReason).
			Dur("duration", took).
			Msg("Run failed")
	} else {
		for _, rec := range r.rc.Recommendations {
			metrics.RecordRecommendation(string(rec.Source))
		}
		r.log.Info().
			Dur("duration", took).
			Int("recommendations", len(r.rc.Recommendations)).
			Interface("stage_status", r.rc.Status()).
			Msg("Run complete")
	}

	r.audit(ctx, summary)
}

func (r *Run) summary(start time.Time, took time.Duration, runErr error) db.RunSummary {
	status := make(map[string]string)
	for name, s := range r.rc.Status() {
		status[name] = string(s)
	}

	s := db.RunSummary{
		State:               string(r.State()),
		StageStatus:         status,
		RecommendationCount: len(r.rc.Recommendations),
		RiskCategory:        string(r.rc.Risk.Category),
		RiskScore:           r.rc.Risk.Score,
		Sentiment:           string(r.rc.Outlook.Sentiment),
		StartedAt:           start.UTC(),
		CompletedAt:         start.Add(took).UTC(),
	}
	if id, err := uuid.Parse(r.id); err == nil {
		s.RunID = id
	}
	if pf := r.rc.Portfolio; pf != nil {
		s.HoldingsCount = len(pf.Holdings)
		s.SkippedRows = pf.SkippedRows
		s.TotalValue = pf.TotalValue
	}
	if runErr != nil {
		s.FailureReason = metrics.NormalizeFailure(runErr,
			metrics.IsClassifier(extractor.ErrPasswordRequired, metrics.FailurePasswordRequired),
			func(err error) (string, bool) {
				return metrics.FailureParse, extractor.IsParseError(err)
			},
		)
	}
	return s
}

// audit writes the summary best effort; failures are logged and counted only
func (r *Run) audit(ctx context.Context, s db.RunSummary) {
	deps := r.pipeline.deps
	if deps.Audit == nil {
		return
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.pipeline.cfg.AuditTimeout)
	defer cancel()

	write := func() (interface{}, error) {
		return nil, deps.Audit.SaveRun(auditCtx, s)
	}

	var err error
	if deps.AuditBreaker != nil {
		_, err = deps.AuditBreaker.Execute(write)
	} else {
		_, err = write()
	}

	metrics.RecordAuditWrite(err == nil)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to write run summary")
	}
}

func countByCategory(pf *portfolio.Portfolio) map[string]int {
	counts := make(map[string]int)
	for _, h := range pf.Holdings {
		counts[string(h.Category)]++
	}
	return counts
}

// StageInfo describes one pipeline stage
type StageInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	External    bool   `json:"external"`
	Model       string `json:"model,omitempty"`
}

// Describe lists the stages in execution order
func (p *Pipeline) Describe() []StageInfo {
	return []StageInfo{
		{Name: StageExtraction, Description: "Decrypts the statement and extracts holdings"},
		{Name: StageAnalysis, Description: "Computes allocation and sector breakdowns and applies portfolio rules"},
		{Name: StageMarket, Description: "Summarizes current market sentiment and sectors to watch", External: true},
		{Name: StageRisk, Description: "Scores the risk questionnaire"},
		{Name: StageAdvisor, Description: "Generates personalized recommendations", External: true, Model: p.deps.Advisor.Model()},
	}
}

// FetchOutlook runs the market stage on its own under the pipeline's market policy
func (p *Pipeline) FetchOutlook(ctx context.Context) stage.Outcome[portfolio.MarketOutlook] {
	out := stage.FetchOrDefault(ctx, p.deps.Market, p.cfg.MarketPolicy)
	metrics.RecordStage(StageMarket, string(out.Status), out.Duration)
	return out
}
